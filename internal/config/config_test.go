package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 30*time.Second, cfg.SnipeWindow)
	assert.Equal(t, 120*time.Second, cfg.SnipeExtension)
	assert.Equal(t, 10*time.Second, cfg.SettleInterval)
	assert.Equal(t, 5*time.Second, cfg.BotInterval)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("COMMISSION_RATE", "0.075")
	t.Setenv("SNIPE_WINDOW", "45s")
	t.Setenv("SNIPE_EXTENSION", "3m")
	t.Setenv("BID_RATE_PER_SEC", "25")
	t.Setenv("BID_RATE_BURST", "40")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.075")))
	assert.Equal(t, 45*time.Second, cfg.SnipeWindow)
	assert.Equal(t, 3*time.Minute, cfg.SnipeExtension)
	assert.Equal(t, float64(25), cfg.BidRatePerSec)
	assert.Equal(t, 40, cfg.BidRateBurst)
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("TEST_BAD_INT", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("TEST_BAD_INT", 7))

	t.Setenv("TEST_BAD_DURATION", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("TEST_BAD_DURATION", time.Minute))

	t.Setenv("TEST_BAD_DECIMAL", "lots")
	assert.True(t, GetEnvDecimal("TEST_BAD_DECIMAL", "0.05").Equal(decimal.RequireFromString("0.05")))

	t.Setenv("TEST_EMPTY", "")
	assert.Equal(t, "fallback", GetEnv("TEST_EMPTY", "fallback"))
}
