package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/app"
	httpapi "github.com/radieske/stock-bet-settlement/internal/settlement/http"
	"github.com/radieske/stock-bet-settlement/internal/settlement/stream"
	"github.com/radieske/stock-bet-settlement/internal/shared/config"
	"github.com/radieske/stock-bet-settlement/internal/shared/logger"
	"github.com/radieske/stock-bet-settlement/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.LoadFor("settlement-service")

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	a, err := app.New(cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer a.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// WebSocket de desfechos alimentado pelo broadcast do Redis
	hub := stream.NewHub(func(r *http.Request) bool { return true }, a.Broadcaster.Last, logger.Component(log, "stream"))
	stream.StartRedisSubscriber(ctx, a.Redis, cfg.RedisPubSubChannel, hub, log)

	api := &httpapi.API{
		Log:     logger.Component(log, "http"),
		Settler: a.Engine,
		Bets:    a.Repo,
		Stream:  http.HandlerFunc(hub.HandleWS),
	}

	// métricas e health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, a.Health)
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("settlement-service stopped")
}
