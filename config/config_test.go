package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("DATABASE_URL", "")

	cfg, err := load()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "accept", cfg.AmortizationResidualMode)
	assert.Equal(t, "last", cfg.RateTieBreak)
	assert.Equal(t, time.Hour, cfg.MaturitySweepInterval)
	assert.Equal(t, 30000, cfg.OTelExportIntervalMS)
	assert.False(t, cfg.NATSEnabled)
	assert.True(t, cfg.SavingsMinimumBalance.IsZero())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "postgres://ledger:secret@db:5432")
	t.Setenv("DATABASE_NAME", "coop")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("MATURITY_SWEEP_INTERVAL", "15m")
	t.Setenv("AMORTIZATION_RESIDUAL_MODE", "FLUSH")
	t.Setenv("RATE_TIE_BREAK", "highest")
	t.Setenv("SAVINGS_MINIMUM_BALANCE", "500.00")

	cfg, err := load()
	require.NoError(t, err)

	assert.True(t, cfg.NATSEnabled)
	assert.Equal(t, 15*time.Minute, cfg.MaturitySweepInterval)
	assert.Equal(t, "flush", cfg.AmortizationResidualMode)
	assert.Equal(t, "highest", cfg.RateTieBreak)
	assert.True(t, decimal.NewFromInt(500).Equal(cfg.SavingsMinimumBalance))
	assert.Equal(t, "postgres://ledger:secret@db:5432/coop?sslmode=disable", cfg.GetDatabaseURL())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad residual mode", "AMORTIZATION_RESIDUAL_MODE", "round"},
		{"bad tie break", "RATE_TIE_BREAK", "first"},
		{"bad sweep interval", "MATURITY_SWEEP_INTERVAL", "soon"},
		{"negative minimum balance", "SAVINGS_MINIMUM_BALANCE", "-1"},
		{"bad exporter", "OTEL_EXPORTER_TYPE", "jaeger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENVIRONMENT", "test")
			t.Setenv(tt.key, tt.value)

			_, err := load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RequiresDatabaseURLOutsideTests(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "")

	_, err := load()
	assert.EqualError(t, err, "DATABASE_URL is required")
}

func TestSetTestConfig(t *testing.T) {
	t.Cleanup(ResetConfig)

	cfg := NewTestConfig()
	cfg.RateTieBreak = "highest"
	SetTestConfig(cfg)

	assert.Same(t, cfg, Get())
}
