// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/algo-engine/internal/engine"
	"github.com/tathienbao/algo-engine/internal/match"
	"github.com/tathienbao/algo-engine/internal/monitor"
	"github.com/tathienbao/algo-engine/internal/risk"
	"github.com/tathienbao/algo-engine/internal/types"
	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Engine    EngineConfig    `yaml:"engine"`
	Execution ExecutionConfig `yaml:"execution"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Risk      RiskConfig      `yaml:"risk"`
	Data      DataConfig      `yaml:"data"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Broker    BrokerConfig    `yaml:"broker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig holds account-level settings.
type AccountConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
}

// EngineConfig holds execution coordinator policy settings.
type EngineConfig struct {
	PyramidingEnabled     bool    `yaml:"pyramiding_enabled"`
	MaxPyramidEntries     int     `yaml:"max_pyramid_entries"`
	ReversalPolicy        string  `yaml:"reversal_policy"` // net_out | square_then_open
	DefaultStopPct        float64 `yaml:"default_stop_pct"`
	DefaultTargetPct      float64 `yaml:"default_target_pct"`
	CancelOpenOrdersAtEOD bool    `yaml:"cancel_open_orders_at_eod"`
}

// ExecutionConfig selects slippage and commission models.
type ExecutionConfig struct {
	Slippage   SlippageConfig   `yaml:"slippage"`
	Commission CommissionConfig `yaml:"commission"`
}

// SlippageConfig parameterizes the slippage model.
type SlippageConfig struct {
	Model      string  `yaml:"model"` // none | percent | per_unit | stochastic
	Percent    float64 `yaml:"percent"`
	Amount     float64 `yaml:"amount"`
	MaxPercent float64 `yaml:"max_percent"`
	Seed       int64   `yaml:"seed"`
}

// CommissionConfig parameterizes the commission model.
type CommissionConfig struct {
	Model   string       `yaml:"model"` // none | percent | per_unit | tiered
	Percent float64      `yaml:"percent"`
	Amount  float64      `yaml:"amount"`
	Minimum float64      `yaml:"minimum"`
	Tiers   []TierConfig `yaml:"tiers"`
}

// TierConfig is one band of a tiered commission schedule.
type TierConfig struct {
	UpToNotional float64 `yaml:"up_to_notional"` // zero = unbounded
	Percent      float64 `yaml:"percent"`
}

// MonitorConfig holds target/stop monitor settings.
type MonitorConfig struct {
	TargetFirst    bool   `yaml:"target_first"`
	FillAtNextOpen bool   `yaml:"fill_at_next_open"`
	EODEnabled     bool   `yaml:"eod_enabled"`
	EODCutoff      string `yaml:"eod_cutoff"` // "15:15"
}

// RiskConfig holds risk validator settings.
type RiskConfig struct {
	MaxOrderQuantity int64   `yaml:"max_order_quantity"`
	MaxExposurePct   float64 `yaml:"max_exposure_pct"`
	MaxDrawdownPct   float64 `yaml:"max_drawdown_pct"`
	RequireCash      bool    `yaml:"require_cash"`
}

// DataConfig holds data source settings.
type DataConfig struct {
	CSVPath    string `yaml:"csv_path"`
	Instrument string `yaml:"instrument"`
	Start      string `yaml:"start"` // RFC 3339 or "2006-01-02"
	End        string `yaml:"end"`
}

// StrategyConfig holds strategy settings.
type StrategyConfig struct {
	Name       string  `yaml:"name"` // sma_crossover
	FastPeriod int     `yaml:"fast_period"`
	SlowPeriod int     `yaml:"slow_period"`
	Quantity   int64   `yaml:"quantity"`
	TargetPct  float64 `yaml:"target_pct"`
	StopPct    float64 `yaml:"stop_pct"`
}

// JournalConfig holds trade journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // sqlite file
}

// MetricsConfig holds metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig holds a single alert channel configuration.
type ChannelConfig struct {
	Type       string `yaml:"type"` // console | webhook
	WebhookURL string `yaml:"webhook_url"`
}

// BrokerConfig holds broker adapter settings.
type BrokerConfig struct {
	Type               string `yaml:"type"` // paper
	MaxOrdersPerSecond int    `yaml:"max_orders_per_second"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load loads configuration from a YAML file. Environment variables in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	var errs []string

	if c.Account.InitialCapital <= 0 {
		errs = append(errs, "account.initial_capital must be positive")
	}

	switch c.Engine.ReversalPolicy {
	case "", "net_out", "square_then_open":
	default:
		errs = append(errs, fmt.Sprintf("engine.reversal_policy %q must be net_out or square_then_open",
			c.Engine.ReversalPolicy))
	}
	if c.Engine.MaxPyramidEntries < 0 {
		errs = append(errs, "engine.max_pyramid_entries must not be negative")
	}

	switch c.Execution.Slippage.Model {
	case "", "none", "percent", "per_unit", "stochastic":
	default:
		errs = append(errs, fmt.Sprintf("execution.slippage.model %q is not supported",
			c.Execution.Slippage.Model))
	}
	switch c.Execution.Commission.Model {
	case "", "none", "percent", "per_unit", "tiered":
	default:
		errs = append(errs, fmt.Sprintf("execution.commission.model %q is not supported",
			c.Execution.Commission.Model))
	}

	if c.Monitor.EODEnabled {
		if _, err := parseTimeOfDay(c.Monitor.EODCutoff); err != nil {
			errs = append(errs, fmt.Sprintf("monitor.eod_cutoff: %v", err))
		}
	}

	if c.Risk.MaxExposurePct < 0 || c.Risk.MaxExposurePct > 1 {
		errs = append(errs, "risk.max_exposure_pct must be between 0 and 1")
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDrawdownPct > 1 {
		errs = append(errs, "risk.max_drawdown_pct must be between 0 and 1")
	}

	if c.Strategy.Name != "" && c.Strategy.Name != "sma_crossover" {
		errs = append(errs, fmt.Sprintf("strategy.name %q is not supported", c.Strategy.Name))
	}
	if c.Strategy.Quantity < 0 {
		errs = append(errs, "strategy.quantity must not be negative")
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when journal is enabled")
	}

	switch c.Broker.Type {
	case "", "paper":
	default:
		errs = append(errs, fmt.Sprintf("broker.type %q is not supported", c.Broker.Type))
	}

	if c.Data.Start != "" {
		if _, err := parseTime(c.Data.Start); err != nil {
			errs = append(errs, fmt.Sprintf("data.start: %v", err))
		}
	}
	if c.Data.End != "" {
		if _, err := parseTime(c.Data.End); err != nil {
			errs = append(errs, fmt.Sprintf("data.end: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// InitialCapital returns starting capital as a decimal.
func (c *Config) InitialCapital() decimal.Decimal {
	return decimal.NewFromFloat(c.Account.InitialCapital)
}

// ToEngineConfig converts to the coordinator's config.
func (c *Config) ToEngineConfig(liveMode bool) engine.Config {
	reversal := engine.ReversalNetOut
	if c.Engine.ReversalPolicy == "square_then_open" {
		reversal = engine.ReversalSquareThenOpen
	}
	return engine.Config{
		PyramidingEnabled:     c.Engine.PyramidingEnabled,
		MaxPyramidEntries:     c.Engine.MaxPyramidEntries,
		Reversal:              reversal,
		DefaultStopPct:        decimal.NewFromFloat(c.Engine.DefaultStopPct),
		DefaultTargetPct:      decimal.NewFromFloat(c.Engine.DefaultTargetPct),
		CancelOpenOrdersAtEOD: c.Engine.CancelOpenOrdersAtEOD,
		LiveMode:              liveMode,
	}
}

// ToSlippageConfig converts to the matcher's slippage config.
func (c *Config) ToSlippageConfig() match.SlippageConfig {
	return match.SlippageConfig{
		Model:      c.Execution.Slippage.Model,
		Percent:    decimal.NewFromFloat(c.Execution.Slippage.Percent),
		Amount:     decimal.NewFromFloat(c.Execution.Slippage.Amount),
		MaxPercent: decimal.NewFromFloat(c.Execution.Slippage.MaxPercent),
		Seed:       c.Execution.Slippage.Seed,
	}
}

// ToCommissionConfig converts to the matcher's commission config.
func (c *Config) ToCommissionConfig() match.CommissionConfig {
	tiers := make([]match.Tier, 0, len(c.Execution.Commission.Tiers))
	for _, tier := range c.Execution.Commission.Tiers {
		tiers = append(tiers, match.Tier{
			UpToNotional: decimal.NewFromFloat(tier.UpToNotional),
			Percent:      decimal.NewFromFloat(tier.Percent),
		})
	}
	return match.CommissionConfig{
		Model:   c.Execution.Commission.Model,
		Percent: decimal.NewFromFloat(c.Execution.Commission.Percent),
		Amount:  decimal.NewFromFloat(c.Execution.Commission.Amount),
		Minimum: decimal.NewFromFloat(c.Execution.Commission.Minimum),
		Tiers:   tiers,
	}
}

// ToMonitorConfig converts to the monitor's config. Validate must have
// passed first; an unparsable cutoff disables EOD.
func (c *Config) ToMonitorConfig() monitor.Config {
	cfg := monitor.Config{
		TargetFirst:    c.Monitor.TargetFirst,
		FillAtNextOpen: c.Monitor.FillAtNextOpen,
	}
	if c.Monitor.EODEnabled {
		cutoff, err := parseTimeOfDay(c.Monitor.EODCutoff)
		if err == nil {
			cfg.EODEnabled = true
			cfg.EODCutoff = cutoff
		}
	}
	return cfg
}

// ToRiskConfig converts to the risk validator's config.
func (c *Config) ToRiskConfig() risk.Config {
	return risk.Config{
		MaxOrderQuantity: c.Risk.MaxOrderQuantity,
		MaxExposurePct:   decimal.NewFromFloat(c.Risk.MaxExposurePct),
		MaxDrawdownPct:   decimal.NewFromFloat(c.Risk.MaxDrawdownPct),
		RequireCash:      c.Risk.RequireCash,
	}
}

// DataWindow returns the configured backtest time bounds. Zero values
// mean unbounded.
func (c *Config) DataWindow() (start, end time.Time) {
	start, _ = parseTime(c.Data.Start)
	end, _ = parseTime(c.Data.End)
	return start, end
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, format := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable time %q", s)
}

func parseTimeOfDay(s string) (monitor.TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return monitor.TimeOfDay{}, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return monitor.TimeOfDay{}, fmt.Errorf("bad hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return monitor.TimeOfDay{}, fmt.Errorf("bad minute in %q", s)
	}
	return monitor.TimeOfDay{Hour: hour, Minute: minute}, nil
}
