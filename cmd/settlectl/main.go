package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/app"
	"github.com/radieske/stock-bet-settlement/internal/shared/config"
	"github.com/radieske/stock-bet-settlement/internal/shared/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadFor("settlectl")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	connect := func() (Settler, func(), error) {
		a, err := app.New(cfg, log, nil)
		if err != nil {
			return nil, nil, err
		}
		return a.Engine, a.Close, nil
	}

	root := newRootCmd(ctx, connect, cfg.SweepPageSize)
	if err := root.Execute(); err != nil {
		log.Debug("command failed", zap.Error(err))
		os.Exit(1)
	}
}
