package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGetters(t *testing.T) {
	t.Setenv("SETTLR_INT", "42")
	t.Setenv("SETTLR_BAD_INT", "x")
	t.Setenv("SETTLR_BOOL", "true")
	t.Setenv("SETTLR_DUR", "90s")
	t.Setenv("SETTLR_DEC", "2.5")

	assert.Equal(t, 42, GetIntEnv("SETTLR_INT", 1))
	assert.Equal(t, 1, GetIntEnv("SETTLR_BAD_INT", 1))
	assert.True(t, GetBoolEnv("SETTLR_BOOL", false))
	assert.Equal(t, 90*time.Second, GetDurationEnv("SETTLR_DUR", time.Second))
	assert.True(t, decimal.RequireFromString("2.5").Equal(GetDecimalEnv("SETTLR_DEC", decimal.Zero)))
	assert.Equal(t, "fallback", GetEnv("SETTLR_UNSET", "fallback"))
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.True(t, cfg.Fees.GatewayPercent.Equal(decimal.RequireFromString("2.2")))
	assert.True(t, cfg.Fees.ManualFlat.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.Limits.MinDeposit.Equal(decimal.NewFromInt(100)))
	assert.False(t, cfg.SandboxMode)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
}
