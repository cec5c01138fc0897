package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-service")

	cfg := Load()

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "8084", cfg.HTTPPort)
	assert.Equal(t, "9100", cfg.MetricsPort)
	assert.Equal(t, "wager_settled", cfg.TopicWagerSettled)
	assert.Equal(t, 3, cfg.MarketDataMaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.MarketDataRetryBase)
	assert.Equal(t, 100, cfg.SweepPageSize)
	assert.Equal(t, 24*time.Hour, cfg.SettlementEventTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("SWEEP_PAGE_SIZE", "25")
	t.Setenv("MARKETDATA_RPS", "2.5")
	t.Setenv("MARKETDATA_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "", cfg.HTTPPort)
	assert.Equal(t, "9101", cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 25, cfg.SweepPageSize)
	assert.Equal(t, 2.5, cfg.MarketDataRPS)
	assert.Equal(t, 3, cfg.MarketDataMaxAttempts)
}

func TestLoadFor_DefaultService(t *testing.T) {
	prev, had := os.LookupEnv("SERVICE_NAME")
	os.Unsetenv("SERVICE_NAME")
	t.Cleanup(func() {
		if had {
			os.Setenv("SERVICE_NAME", prev)
		}
	})

	cfg := LoadFor("settlement-worker")

	assert.Equal(t, "settlement-worker", cfg.ServiceName)
	assert.Equal(t, "9101", cfg.MetricsPort)

	t.Setenv("SERVICE_NAME", "settlement-service")
	assert.Equal(t, "9100", LoadFor("settlement-worker").MetricsPort)
}
