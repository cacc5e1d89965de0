// Package config loads and validates the bot configuration from YAML.
// Invalid configuration is fatal at load time: the engine refuses to start
// rather than silently clamping values.
package config

import (
	"flag"
	"math"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

const weightSumEpsilon = 1e-9

// QualityWeights are the weights of the four quality sub-scores.
// They must sum to 1.0.
type QualityWeights struct {
	Confidence float64 `yaml:"confidence"`
	RiskReward float64 `yaml:"risk_reward"`
	Alignment  float64 `yaml:"alignment"`
	Volatility float64 `yaml:"volatility"`
}

// DailyWindow selects how the daily trade counter resets.
type DailyWindow string

const (
	// DailyWindowRolling counts trades in the trailing 24 hours.
	DailyWindowRolling DailyWindow = "rolling"
	// DailyWindowCalendar resets the counter at local midnight.
	DailyWindowCalendar DailyWindow = "calendar"
)

// Config is the full bot configuration.
type Config struct {
	Platform string
	Pair     domain.Pair

	// Quality scoring.
	QualityWeights       QualityWeights
	IdealRiskReward      float64
	MinSignalQuality     float64
	HighQualityThreshold float64

	// Gate.
	MaxRiskLevel    int
	PriceTolerance  float64
	MaxTradesPerDay int
	DailyWindow     DailyWindow

	// Sizing.
	SizingStrategy        string
	BaseAmount            decimal.Decimal
	MinPositionMultiplier float64
	MaxPositionMultiplier float64

	// Position lifecycle.
	MinHoldMinutes          int
	DegradationThreshold    float64
	TimeExitHours           int
	EmergencyTrendThreshold float64
	TrendLookbackHours      int
	PollInterval            time.Duration

	// Collaborators.
	ListenAddr string
	WALDir     string
	TradesDB   string
}

type configYAML struct {
	Platform string `yaml:"platform"`
	Pair     string `yaml:"pair"`

	QualityWeights       *QualityWeights `yaml:"quality_weights,omitempty"`
	IdealRiskReward      *float64        `yaml:"ideal_risk_reward,omitempty"`
	MinSignalQuality     *float64        `yaml:"min_signal_quality,omitempty"`
	HighQualityThreshold *float64        `yaml:"high_quality_threshold,omitempty"`

	MaxRiskLevel    *int     `yaml:"max_risk_level,omitempty"`
	PriceTolerance  *float64 `yaml:"price_tolerance,omitempty"`
	MaxTradesPerDay *int     `yaml:"max_trades_per_day,omitempty"`
	DailyWindow     string   `yaml:"daily_window,omitempty"`

	SizingStrategy        string   `yaml:"sizing_strategy,omitempty"`
	BaseAmount            string   `yaml:"base_amount,omitempty"`
	MinPositionMultiplier *float64 `yaml:"min_position_multiplier,omitempty"`
	MaxPositionMultiplier *float64 `yaml:"max_position_multiplier,omitempty"`

	MinHoldMinutes          *int     `yaml:"min_hold_minutes,omitempty"`
	DegradationThreshold    *float64 `yaml:"degradation_threshold,omitempty"`
	TimeExitHours           *int     `yaml:"time_exit_hours,omitempty"`
	EmergencyTrendThreshold *float64 `yaml:"emergency_trend_threshold,omitempty"`
	TrendLookbackHours      *int     `yaml:"trend_lookback_hours,omitempty"`
	PollInterval            string   `yaml:"poll_interval,omitempty"`

	ListenAddr string `yaml:"listen_addr,omitempty"`
	WALDir     string `yaml:"wal_dir,omitempty"`
	TradesDB   string `yaml:"trades_db,omitempty"`
}

// Default returns the documented default configuration for a pair.
func Default(pair domain.Pair) Config {
	return Config{
		Platform: "binance",
		Pair:     pair,
		QualityWeights: QualityWeights{
			Confidence: 0.35,
			RiskReward: 0.25,
			Alignment:  0.25,
			Volatility: 0.15,
		},
		IdealRiskReward:         2.0,
		MinSignalQuality:        0.3,
		HighQualityThreshold:    0.7,
		MaxRiskLevel:            8,
		PriceTolerance:          0.03,
		MaxTradesPerDay:         8,
		DailyWindow:             DailyWindowRolling,
		SizingStrategy:          "adaptive",
		BaseAmount:              decimal.NewFromInt(200),
		MinPositionMultiplier:   0.3,
		MaxPositionMultiplier:   2.0,
		MinHoldMinutes:          30,
		DegradationThreshold:    0.2,
		TimeExitHours:           24,
		EmergencyTrendThreshold: -0.05,
		TrendLookbackHours:      12,
		PollInterval:            15 * time.Minute,
		ListenAddr:              ":8000",
		WALDir:                  "./wal/decisions",
		TradesDB:                "./trades.db",
	}
}

// Get loads configuration from the path given by the -config flag.
func Get() (Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load reads, parses and validates a YAML config file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}

	var y configYAML
	if err := yaml.Unmarshal(raw, &y); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse yaml config")
	}

	pair, err := pairFromString(y.Pair)
	if err != nil {
		return Config{}, err
	}

	cfg := Default(pair)
	if y.Platform != "" {
		cfg.Platform = y.Platform
	}
	if y.QualityWeights != nil {
		cfg.QualityWeights = *y.QualityWeights
	}
	if y.IdealRiskReward != nil {
		cfg.IdealRiskReward = *y.IdealRiskReward
	}
	if y.MinSignalQuality != nil {
		cfg.MinSignalQuality = *y.MinSignalQuality
	}
	if y.HighQualityThreshold != nil {
		cfg.HighQualityThreshold = *y.HighQualityThreshold
	}
	if y.MaxRiskLevel != nil {
		cfg.MaxRiskLevel = *y.MaxRiskLevel
	}
	if y.PriceTolerance != nil {
		cfg.PriceTolerance = *y.PriceTolerance
	}
	if y.MaxTradesPerDay != nil {
		cfg.MaxTradesPerDay = *y.MaxTradesPerDay
	}
	if y.DailyWindow != "" {
		cfg.DailyWindow = DailyWindow(y.DailyWindow)
	}
	if y.SizingStrategy != "" {
		cfg.SizingStrategy = y.SizingStrategy
	}
	if y.BaseAmount != "" {
		base, err := decimal.NewFromString(y.BaseAmount)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'base_amount' param in yaml config: %s", y.BaseAmount)
		}
		cfg.BaseAmount = base
	}
	if y.MinPositionMultiplier != nil {
		cfg.MinPositionMultiplier = *y.MinPositionMultiplier
	}
	if y.MaxPositionMultiplier != nil {
		cfg.MaxPositionMultiplier = *y.MaxPositionMultiplier
	}
	if y.MinHoldMinutes != nil {
		cfg.MinHoldMinutes = *y.MinHoldMinutes
	}
	if y.DegradationThreshold != nil {
		cfg.DegradationThreshold = *y.DegradationThreshold
	}
	if y.TimeExitHours != nil {
		cfg.TimeExitHours = *y.TimeExitHours
	}
	if y.EmergencyTrendThreshold != nil {
		cfg.EmergencyTrendThreshold = *y.EmergencyTrendThreshold
	}
	if y.TrendLookbackHours != nil {
		cfg.TrendLookbackHours = *y.TrendLookbackHours
	}
	if y.PollInterval != "" {
		interval, err := time.ParseDuration(y.PollInterval)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect 'poll_interval' param in yaml config: %s", y.PollInterval)
		}
		cfg.PollInterval = interval
	}
	if y.ListenAddr != "" {
		cfg.ListenAddr = y.ListenAddr
	}
	if y.WALDir != "" {
		cfg.WALDir = y.WALDir
	}
	if y.TradesDB != "" {
		cfg.TradesDB = y.TradesDB
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks numeric invariants. Any violation is fatal.
func (c Config) Validate() error {
	w := c.QualityWeights
	if w.Confidence < 0 || w.RiskReward < 0 || w.Alignment < 0 || w.Volatility < 0 {
		return errors.New("quality weights must be non-negative")
	}
	sum := w.Confidence + w.RiskReward + w.Alignment + w.Volatility
	if math.Abs(sum-1.0) > weightSumEpsilon {
		return errors.Errorf("quality weights must sum to 1.0, got %v", sum)
	}
	if c.IdealRiskReward <= 0 {
		return errors.New("ideal_risk_reward must be positive")
	}
	if c.MinSignalQuality < 0 || c.MinSignalQuality > 1 {
		return errors.Errorf("min_signal_quality must be in [0,1], got %v", c.MinSignalQuality)
	}
	if c.HighQualityThreshold < 0 || c.HighQualityThreshold > 1 {
		return errors.Errorf("high_quality_threshold must be in [0,1], got %v", c.HighQualityThreshold)
	}
	if c.MaxRiskLevel < 1 || c.MaxRiskLevel > 10 {
		return errors.Errorf("max_risk_level must be in [1,10], got %d", c.MaxRiskLevel)
	}
	if c.PriceTolerance <= 0 {
		return errors.New("price_tolerance must be positive")
	}
	if c.MaxTradesPerDay < 1 {
		return errors.Errorf("max_trades_per_day must be at least 1, got %d", c.MaxTradesPerDay)
	}
	if c.DailyWindow != DailyWindowRolling && c.DailyWindow != DailyWindowCalendar {
		return errors.Errorf("daily_window must be %q or %q, got %q", DailyWindowRolling, DailyWindowCalendar, c.DailyWindow)
	}
	if c.BaseAmount.LessThanOrEqual(decimal.Zero) {
		return errors.New("base_amount must be positive")
	}
	if c.MinPositionMultiplier <= 0 {
		return errors.New("min_position_multiplier must be positive")
	}
	if c.MinPositionMultiplier > c.MaxPositionMultiplier {
		return errors.Errorf("min_position_multiplier %v exceeds max_position_multiplier %v",
			c.MinPositionMultiplier, c.MaxPositionMultiplier)
	}
	if c.MinHoldMinutes < 0 {
		return errors.New("min_hold_minutes must be non-negative")
	}
	if c.DegradationThreshold < 0 {
		return errors.New("degradation_threshold must be non-negative")
	}
	if c.TimeExitHours <= 0 {
		return errors.New("time_exit_hours must be positive")
	}
	if c.EmergencyTrendThreshold >= 0 {
		return errors.New("emergency_trend_threshold must be negative")
	}
	if c.TrendLookbackHours <= 0 {
		return errors.New("trend_lookback_hours must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	return nil
}

func pairFromString(pairStr string) (domain.Pair, error) {
	parts := strings.Split(pairStr, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domain.Pair{}, errors.Errorf("invalid 'pair' param in yaml config: %q", pairStr)
	}
	return domain.Pair{From: parts[0], To: parts[1]}, nil
}
