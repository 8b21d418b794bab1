package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pixelstore/recharge-service/internal/gateway"
	"github.com/pixelstore/recharge-service/internal/recharge"
	"github.com/pixelstore/recharge-service/internal/repo"
)

func RegisterHandlers(r *gin.Engine, mgr *recharge.Manager, rep repo.RepositoryInterface, log *zap.SugaredLogger) {
	v1 := r.Group("/v1")
	{
		v1.GET("/recharges/presets", presetsHandler())
		v1.POST("/recharges", startHandler(mgr))
		v1.GET("/recharges/:id", snapshotHandler(mgr))
		v1.DELETE("/recharges/:id", cancelHandler(mgr))
		v1.POST("/webhooks/gateway", webhookHandler(mgr, log))
		v1.GET("/users/:id/balance", balanceHandler(rep, log))
	}
}

type startReq struct {
	UserID  uint64 `json:"user_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	NoBonus bool   `json:"no_bonus"`
}

func startHandler(mgr *recharge.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		attempt, err := mgr.Start(c.Request.Context(), req.UserID, amt, req.NoBonus)
		if err != nil {
			var vErr *recharge.ValidationError
			var gwErr *gateway.GatewayError
			switch {
			case errors.As(err, &vErr):
				c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
			case errors.As(err, &gwErr), errors.Is(err, gateway.ErrTransient):
				c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable, try again"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start recharge, try again"})
			}
			return
		}
		c.JSON(http.StatusCreated, attempt.Snapshot())
	}
}

func snapshotHandler(mgr *recharge.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		attempt, ok := mgr.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "recharge attempt not found"})
			return
		}
		c.JSON(http.StatusOK, attempt.Snapshot())
	}
}

func cancelHandler(mgr *recharge.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := mgr.Cancel(c.Request.Context(), c.Param("id"))
		if errors.Is(err, recharge.ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recharge attempt not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}

func presetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"presets": recharge.Presets()})
	}
}

type webhookReq struct {
	ID     string `json:"id" binding:"required"`
	Status string `json:"status"`
}

// webhookHandler is the push supplement to polling. The reported status is
// only a hint; NotifyApproved re-verifies with the gateway before settling.
func webhookHandler(mgr *recharge.Manager, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req webhookReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := mgr.NotifyApproved(c.Request.Context(), req.ID); err != nil {
			if errors.Is(err, repo.ErrPaymentNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown transaction"})
				return
			}
			log.Warnf("webhook tx=%s: %v", req.ID, err)
			c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "settled"})
	}
}

func balanceHandler(rep repo.RepositoryInterface, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if bal, err := rep.GetCachedBalance(c.Request.Context(), id); err == nil {
			c.JSON(http.StatusOK, gin.H{"balance": bal})
			return
		}
		bal, err := rep.GetBalance(c.Request.Context(), id)
		if errors.Is(err, repo.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if cerr := rep.CacheBalance(c.Request.Context(), id, bal); cerr != nil {
			log.Warnf("cache balance user=%d: %v", id, cerr)
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}
