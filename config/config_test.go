package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default(domain.Pair{From: "XRP", To: "PHP"})
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum to one", func(c *Config) { c.QualityWeights.Confidence = 0.5 }},
		{"negative weight", func(c *Config) {
			c.QualityWeights.Confidence = -0.1
			c.QualityWeights.RiskReward = 0.85
		}},
		{"zero ideal risk reward", func(c *Config) { c.IdealRiskReward = 0 }},
		{"min quality above one", func(c *Config) { c.MinSignalQuality = 1.5 }},
		{"risk level out of range", func(c *Config) { c.MaxRiskLevel = 11 }},
		{"zero price tolerance", func(c *Config) { c.PriceTolerance = 0 }},
		{"zero trades per day", func(c *Config) { c.MaxTradesPerDay = 0 }},
		{"unknown daily window", func(c *Config) { c.DailyWindow = "weekly" }},
		{"zero base amount", func(c *Config) { c.BaseAmount = decimal.Zero }},
		{"min multiplier above max", func(c *Config) {
			c.MinPositionMultiplier = 2.5
			c.MaxPositionMultiplier = 2.0
		}},
		{"negative hold", func(c *Config) { c.MinHoldMinutes = -1 }},
		{"negative degradation", func(c *Config) { c.DegradationThreshold = -0.1 }},
		{"zero time exit", func(c *Config) { c.TimeExitHours = 0 }},
		{"positive emergency threshold", func(c *Config) { c.EmergencyTrendThreshold = 0.05 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(domain.Pair{From: "XRP", To: "PHP"})
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	yaml := `
platform: coinsph
pair: XRP_PHP
sizing_strategy: momentum
base_amount: "500"
max_trades_per_day: 3
daily_window: calendar
min_hold_minutes: 15
poll_interval: 5m
listen_addr: ":9000"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "coinsph", cfg.Platform)
	assert.Equal(t, domain.Pair{From: "XRP", To: "PHP"}, cfg.Pair)
	assert.Equal(t, "momentum", cfg.SizingStrategy)
	assert.True(t, cfg.BaseAmount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 3, cfg.MaxTradesPerDay)
	assert.Equal(t, DailyWindowCalendar, cfg.DailyWindow)
	assert.Equal(t, 15, cfg.MinHoldMinutes)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, ":9000", cfg.ListenAddr)

	// untouched fields keep their defaults
	assert.Equal(t, 8, cfg.MaxRiskLevel)
	assert.InDelta(t, 0.3, cfg.MinSignalQuality, 1e-9)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing pair", "platform: binance\n"},
		{"malformed pair", "pair: XRPPHP\n"},
		{"bad base amount", "pair: XRP_PHP\nbase_amount: \"lots\"\n"},
		{"bad weights", "pair: XRP_PHP\nquality_weights:\n  confidence: 0.9\n  risk_reward: 0.9\n  alignment: 0.1\n  volatility: 0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
