package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pixelstore/recharge-service/internal/config"
	"github.com/pixelstore/recharge-service/internal/recharge"
	"github.com/pixelstore/recharge-service/internal/repo"
)

func NewRouter(mgr *recharge.Manager, rep repo.RepositoryInterface, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterHandlers(r, mgr, rep, log)
	return r
}
