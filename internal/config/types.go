package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the pipeline settings document (YAML or JSON).
//
// All durations are Go duration strings (e.g. "100ms", "1s", "5m").
// Unknown keys are rejected so typos surface at load time.
type Config struct {
	MarketData MarketDataConfig `json:"market_data"`
	Simulator  SimulatorConfig  `json:"simulator"`
	Analytics  AnalyticsConfig  `json:"analytics"`

	// MonitorInterval paces the periodic book/analytics health report.
	MonitorInterval string `json:"monitor_interval,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`

	// LogConfig points at the logging configuration document applied at
	// startup (and re-applied when it changes on disk).
	LogConfig string `json:"log_config"`
}

type MarketDataConfig struct {
	Symbols    []string `json:"symbols"`
	BufferSize int      `json:"buffer_size,omitempty"`
	MaxDepth   int      `json:"max_depth,omitempty"`

	// SequenceGapThreshold is the largest tolerated gap in feed sequence
	// numbers before the affected order book is reset.
	SequenceGapThreshold int `json:"sequence_gap_threshold,omitempty"`
}

type SimulatorConfig struct {
	// InitialPrices seeds the random walk per symbol. Symbols without an
	// entry start at 100.
	InitialPrices map[string]float64 `json:"initial_prices,omitempty"`

	// Volatility is the per-update standard deviation as a fraction of the
	// current price.
	Volatility float64 `json:"volatility,omitempty"`

	// UpdateInterval is the pacing between generated updates.
	UpdateInterval string `json:"update_interval,omitempty"`
}

type AnalyticsConfig struct {
	WindowSize      int    `json:"window_size,omitempty"`
	MetricsInterval string `json:"metrics_interval,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Driver values:
//   - "file": append-only JSONL files
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// Defaults applied by Normalize for omitted fields.
const (
	DefaultBufferSize      = 10000
	DefaultMaxDepth        = 10
	DefaultGapThreshold    = 10
	DefaultVolatility      = 0.001
	DefaultInitialPrice    = 100.0
	DefaultWindowSize      = 100
	DefaultUpdateInterval  = 100 * time.Millisecond
	DefaultMetricsInterval = time.Second
	DefaultMonitorInterval = 5 * time.Second
)

// Normalize fills defaults and validates the result. Call it once after
// decoding, before handing the config to components.
func (c *Config) Normalize() error {
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("market_data.symbols: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.MarketData.Symbols))
	for _, s := range c.MarketData.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("market_data.symbols: empty symbol")
		}
		if seen[s] {
			return fmt.Errorf("market_data.symbols: duplicate symbol %q", s)
		}
		seen[s] = true
	}
	if c.MarketData.BufferSize == 0 {
		c.MarketData.BufferSize = DefaultBufferSize
	}
	if c.MarketData.BufferSize < 0 {
		return fmt.Errorf("market_data.buffer_size: must be > 0")
	}
	if c.MarketData.MaxDepth == 0 {
		c.MarketData.MaxDepth = DefaultMaxDepth
	}
	if c.MarketData.MaxDepth < 0 {
		return fmt.Errorf("market_data.max_depth: must be > 0")
	}
	if c.MarketData.SequenceGapThreshold == 0 {
		c.MarketData.SequenceGapThreshold = DefaultGapThreshold
	}

	if c.Simulator.Volatility == 0 {
		c.Simulator.Volatility = DefaultVolatility
	}
	if c.Simulator.Volatility < 0 {
		return fmt.Errorf("simulator.volatility: must be > 0")
	}
	for sym, p := range c.Simulator.InitialPrices {
		if !seen[sym] {
			return fmt.Errorf("simulator.initial_prices: unknown symbol %q", sym)
		}
		if p <= 0 {
			return fmt.Errorf("simulator.initial_prices[%q]: must be > 0", sym)
		}
	}

	if c.Analytics.WindowSize == 0 {
		c.Analytics.WindowSize = DefaultWindowSize
	}
	if c.Analytics.WindowSize < 0 {
		return fmt.Errorf("analytics.window_size: must be > 0")
	}

	// Parse every duration field once so bad values fail here, not mid-run.
	if _, err := c.UpdateInterval(); err != nil {
		return err
	}
	if _, err := c.MetricsInterval(); err != nil {
		return err
	}
	if _, err := c.MonitorIntervalDur(); err != nil {
		return err
	}
	if c.Storage != nil {
		if _, err := c.Storage.BusyTimeoutDur(); err != nil {
			return err
		}
	}
	return nil
}

// InitialPrice returns the seed price for a symbol.
func (c *Config) InitialPrice(symbol string) float64 {
	if p, ok := c.Simulator.InitialPrices[symbol]; ok {
		return p
	}
	return DefaultInitialPrice
}

func (c *Config) UpdateInterval() (time.Duration, error) {
	return parseDurationOrDefault("simulator.update_interval", c.Simulator.UpdateInterval, DefaultUpdateInterval)
}

func (c *Config) MetricsInterval() (time.Duration, error) {
	return parseDurationOrDefault("analytics.metrics_interval", c.Analytics.MetricsInterval, DefaultMetricsInterval)
}

func (c *Config) MonitorIntervalDur() (time.Duration, error) {
	return parseDurationOrDefault("monitor_interval", c.MonitorInterval, DefaultMonitorInterval)
}

func (s *StorageConfig) BusyTimeoutDur() (time.Duration, error) {
	raw := strings.TrimSpace(s.BusyTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("storage.busy_timeout: invalid duration %q: %w", s.BusyTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("storage.busy_timeout: duration must be >= 0")
	}
	return d, nil
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be > 0", path)
	}
	return d, nil
}
