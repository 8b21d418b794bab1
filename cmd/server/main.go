package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelstore/recharge-service/internal/config"
	"github.com/pixelstore/recharge-service/internal/gateway"
	"github.com/pixelstore/recharge-service/internal/logger"
	"github.com/pixelstore/recharge-service/internal/model"
	"github.com/pixelstore/recharge-service/internal/recharge"
	"github.com/pixelstore/recharge-service/internal/repo"
	httptransport "github.com/pixelstore/recharge-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(&model.User{}, &model.PixPayment{}, &model.Transaction{}, &model.OutboxEvent{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. gateway client (falls back to the in-memory fake without a key)
	var gw gateway.Gateway
	if cfg.Gateway.SecretKey == "" {
		log.Warn("no gateway secret configured, using in-memory fake gateway")
		fake := gateway.NewFake()
		fake.ApproveAfter = 30
		gw = fake
	} else {
		gw = gateway.NewGhostClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout())
	}

	// 7. repo & orchestrator
	repository := repo.NewRepository(gdb, rdb, kw, log)
	mgr := recharge.NewManager(recharge.Config{
		MinAmount:    cfg.Recharge.Min(),
		MaxAmount:    cfg.Recharge.Max(),
		Expiry:       cfg.Recharge.Expiry(),
		PollInterval: cfg.Recharge.PollInterval(),
	}, gw, repository, log)

	// 8. gin router
	router := httptransport.NewRouter(mgr, repository, cfg.RateLimit, log)

	// 9. serve, stop pollers on shutdown
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Infof("recharge-server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	if err := mgr.Shutdown(ctx); err != nil {
		log.Errorf("orchestrator shutdown: %v", err)
	}
}
