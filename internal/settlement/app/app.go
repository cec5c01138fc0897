// Package app monta as dependências compartilhadas pelos binários de liquidação.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/stock-bet-settlement/internal/settlement/calendar"
	"github.com/radieske/stock-bet-settlement/internal/settlement/engine"
	"github.com/radieske/stock-bet-settlement/internal/settlement/marketdata"
	"github.com/radieske/stock-bet-settlement/internal/settlement/notify"
	"github.com/radieske/stock-bet-settlement/internal/settlement/repo"
	"github.com/radieske/stock-bet-settlement/internal/shared/cache"
	"github.com/radieske/stock-bet-settlement/internal/shared/config"
	"github.com/radieske/stock-bet-settlement/internal/shared/db"
	"github.com/radieske/stock-bet-settlement/internal/shared/kafka"
	"github.com/radieske/stock-bet-settlement/internal/shared/logger"
	"github.com/radieske/stock-bet-settlement/internal/shared/metrics"
)

type App struct {
	Log         *zap.Logger
	DB          *sql.DB
	Redis       *redis.Client
	Writer      *kafka.Writer
	Repo        *repo.Postgres
	Quotes      *marketdata.Client
	Broadcaster *notify.RedisBroadcaster
	Engine      *engine.Engine
	Metrics     *metrics.Settlement
}

// New conecta Postgres, Redis e Kafka e liga o motor às métricas e notificações.
// reg pode ser nil (sem métricas registradas, ex.: settlectl).
func New(cfg config.Config, log *zap.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{Log: log}

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.DB = pg
	log.Info("postgres connected")

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Redis = rdb
	log.Info("redis connected")

	a.Writer = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	log.Info("kafka writer ready", zap.String("topic", cfg.TopicWagerSettled))

	cal, err := calendar.New()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Metrics = metrics.NewSettlement(reg)
	a.Repo = repo.NewPostgres(pg)
	a.Quotes = marketdata.New(cfg.MarketDataBaseURL, logger.Component(log, "marketdata"),
		marketdata.WithHTTPClient(&http.Client{Timeout: cfg.MarketDataTimeout}),
		marketdata.WithMaxAttempts(cfg.MarketDataMaxAttempts),
		marketdata.WithRetryBase(cfg.MarketDataRetryBase),
		marketdata.WithRateLimit(cfg.MarketDataRPS),
		marketdata.WithLocation(cal.Location()),
	)
	a.Quotes.OnRequest = a.Metrics.ObserveQuoteRequest

	a.Broadcaster = notify.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel, cfg.SettlementEventTTL)

	a.Engine = engine.New(a.Repo, a.Quotes, cal, logger.Component(log, "engine"))
	a.Engine.Notifier = notify.Fanout{notify.NewKafkaPublisher(a.Writer), a.Broadcaster}
	a.Engine.OnOutcome = a.Metrics.ObserveOutcome
	a.Engine.OnSweep = a.Metrics.ObserveSweep

	return a, nil
}

// Health valida as dependências críticas (usado pelo /healthz)
func (a *App) Health(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres not healthy: %w", err)
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis not healthy: %w", err)
	}
	return nil
}

func (a *App) Close() {
	var errs []error
	if a.Writer != nil {
		errs = append(errs, a.Writer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn("shutdown close failed", zap.Error(err))
	}
}
