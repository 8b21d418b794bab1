package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pixelstore/recharge-service/internal/config"
	"github.com/pixelstore/recharge-service/internal/gateway"
	"github.com/pixelstore/recharge-service/internal/logger"
	"github.com/pixelstore/recharge-service/internal/model"
	"github.com/pixelstore/recharge-service/internal/recharge"
	"github.com/pixelstore/recharge-service/internal/repo"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gateway.Fake) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.User{}, &model.PixPayment{}, &model.Transaction{}, &model.OutboxEvent{}))
	assert.NoError(t, db.Create(&model.User{ID: 1, Email: "u1@example.com", Balance: decimal.NewFromInt(100)}).Error)

	rdb, _ := redismock.NewClientMock()
	log := must(logger.NewLogger())
	rep := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	fake := gateway.NewFake()
	mgr := recharge.NewManager(recharge.Config{PollInterval: time.Minute, Expiry: time.Minute}, fake, rep, log)

	return NewRouter(mgr, rep, config.RateLimitConfig{RPS: 1000, Burst: 1000}, log), fake
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/v1/recharges", `{"user_id":1,"amount":"50.00"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	var snap recharge.Snapshot
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, recharge.StatePending, snap.Status)
	assert.NotEmpty(t, snap.TransactionID)
	assert.NotEmpty(t, snap.PixCode)
	assert.True(t, snap.Bonus.Equal(decimal.NewFromInt(5)))

	// lifecycle via the API: read then cancel
	w = doJSON(r, http.MethodGet, "/v1/recharges/"+snap.AttemptID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodDelete, "/v1/recharges/"+snap.AttemptID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/recharges/"+snap.AttemptID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, recharge.StateCancelled, snap.Status)
}

func TestStartEndpoint_Rejections(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/v1/recharges", `{"user_id":1,"amount":"25.00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/recharges", `{"user_id":1,"amount":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/v1/recharges", `{"amount":"50.00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartEndpoint_GatewayDown(t *testing.T) {
	r, fake := newTestRouter(t)
	fake.FailNextCreate(&gateway.GatewayError{HTTPStatus: 500, Body: "nope"})

	w := doJSON(r, http.MethodPost, "/v1/recharges", `{"user_id":1,"amount":"50.00"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSnapshotEndpoint_NotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/v1/recharges/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/v1/recharges/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPresetsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/v1/recharges/presets", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Presets []recharge.Preset `json:"presets"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Presets, 6)
}

func TestWebhookEndpoint(t *testing.T) {
	r, fake := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/v1/recharges", `{"user_id":1,"amount":"50.00","no_bonus":true}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	var snap recharge.Snapshot
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))

	fake.SetStatus(snap.TransactionID, model.StatusApproved)
	w = doJSON(r, http.MethodPost, "/v1/webhooks/gateway", fmt.Sprintf(`{"id":%q,"status":"APPROVED"}`, snap.TransactionID))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/users/1/balance", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "150")

	// unverifiable pushes are ignored, not failed
	w = doJSON(r, http.MethodPost, "/v1/webhooks/gateway", `{"id":"txn_ghost","status":"APPROVED"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/v1/users/1/balance", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "100")

	w = doJSON(r, http.MethodGet, "/v1/users/99/balance", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/users/abc/balance", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func must(l *zap.SugaredLogger, err error) *zap.SugaredLogger {
	if err != nil {
		panic(err)
	}
	return l
}
