package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pixelstore/recharge-service/internal/model"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]model.Status{
		"PENDING":         model.StatusPending,
		"pending":         model.StatusPending,
		"WAITING_PAYMENT": model.StatusPending,
		"APPROVED":        model.StatusApproved,
		"PAID":            model.StatusApproved,
		"REFUSED":         model.StatusCancelled,
		"CHARGEBACK":      model.StatusCancelled,
		"EXPIRED":         model.StatusExpired,
	}
	for raw, want := range cases {
		got, err := NormalizeStatus(raw)
		assert.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := NormalizeStatus("SOMETHING_NEW")
	assert.Error(t, err)
}

func TestGhostClient_CreateTransaction(t *testing.T) {
	var gotAuth string
	var gotBody purchaseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction.purchase", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(purchaseResponse{
			ID:        "txn_123",
			PixCode:   "00020126...",
			PixQRCode: "data:image/png;base64,abc",
			Status:    "PENDING",
		})
	}))
	defer srv.Close()

	c := NewGhostClient(srv.URL, "sk_test", 5*time.Second)
	res, err := c.CreateTransaction(context.Background(), decimal.NewFromInt(50), "Recarga de Saldo")
	assert.NoError(t, err)
	assert.Equal(t, "txn_123", res.TransactionID)
	assert.NotEmpty(t, res.PixCode)
	assert.NotEmpty(t, res.QRCode)

	assert.Equal(t, "sk_test", gotAuth)
	assert.Equal(t, int64(5000), gotBody.Amount) // centavos
	assert.Equal(t, "PIX", gotBody.PaymentMethod)
	assert.Len(t, gotBody.Items, 1)
	assert.Equal(t, "Recarga de Saldo", gotBody.Items[0].Title)
	assert.Equal(t, int64(5000), gotBody.Items[0].UnitPrice)
}

func TestGhostClient_CreateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewGhostClient(srv.URL, "bad", 5*time.Second)
	_, err := c.CreateTransaction(context.Background(), decimal.NewFromInt(50), "x")
	var gwErr *GatewayError
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnauthorized, gwErr.HTTPStatus)
}

func TestGhostClient_CheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction.getPaymentDetails", r.URL.Path)
		switch r.URL.Query().Get("id") {
		case "txn_ok":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(detailsResponse{ID: "txn_ok", Status: "APPROVED"})
		case "txn_down":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewGhostClient(srv.URL, "sk_test", 5*time.Second)

	res, err := c.CheckStatus(context.Background(), "txn_ok")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.Status)

	_, err = c.CheckStatus(context.Background(), "txn_down")
	assert.ErrorIs(t, err, ErrTransient)

	_, err = c.CheckStatus(context.Background(), "txn_missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestFake_ApproveAfterChecks(t *testing.T) {
	f := NewFake()
	f.ApproveAfter = 3
	ctx := context.Background()

	created, err := f.CreateTransaction(ctx, decimal.NewFromInt(50), "x")
	assert.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := f.CheckStatus(ctx, created.TransactionID)
		assert.NoError(t, err)
		assert.Equal(t, model.StatusPending, res.Status)
	}
	res, err := f.CheckStatus(ctx, created.TransactionID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusApproved, res.Status)

	_, err = f.CheckStatus(ctx, "unknown")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Equal(t, 1, f.CreateCalls())
}
