package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/app"
	"github.com/radieske/stock-bet-settlement/internal/settlement/engine"
	"github.com/radieske/stock-bet-settlement/internal/shared/config"
	"github.com/radieske/stock-bet-settlement/internal/shared/logger"
	"github.com/radieske/stock-bet-settlement/internal/shared/metrics"
)

func main() {
	cfg := config.LoadFor("settlement-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	a, err := app.New(cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer a.Close()

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, a.Health)
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))
	defer msrv.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("settlement-worker started",
		zap.Duration("interval", cfg.SweepInterval),
		zap.Int("pageSize", cfg.SweepPageSize),
	)
	run(ctx, a.Engine, cfg.SweepInterval, cfg.SweepPageSize, log)
	log.Info("settlement-worker stopped")
}

// run executa um sweep completo na partida e depois a cada intervalo.
// No shutdown a página em andamento termina (SweepAll não a cancela) e as seguintes não começam.
func run(ctx context.Context, e *engine.Engine, interval time.Duration, pageSize int, log *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := e.SweepAll(ctx, pageSize)
		if err != nil && ctx.Err() == nil {
			log.Warn("sweep failed", zap.Error(err))
		} else if err == nil {
			log.Info("sweep finished",
				zap.Int("scanned", res.Scanned),
				zap.Int("settled", res.Settled),
				zap.Int("pending", res.Pending),
				zap.Int("errors", res.Errors),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
