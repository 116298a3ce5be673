package pipeline

import (
	"fmt"
	"os"
	"strconv"
)

// Config controls the scheduler's work generation and the pipeline's worker
// pool sizing, the same Config-with-defaults pattern internal/rpc and
// internal/api use.
type Config struct {
	// FinalityWindow is how many blocks behind the tip a block is considered
	// finalized (default 30).
	FinalityWindow uint64

	// Concurrency sizes the worker pools: block workers = min(max(c,1),4),
	// tx workers = max(c,1) (default 8).
	Concurrency int

	// Bootstrap enables the rate limiter's scaled-up bootstrap mode.
	Bootstrap bool

	// StartHeight, if set, overrides the checkpoint's resume height.
	StartHeight *uint64

	// Limit, if set, stops the scheduler after emitting this many heights.
	Limit *uint64

	// AnalyticsEnabled runs the §4.10 aggregates inline at persist time
	// instead of leaving blocks analytics_pending for the offline backfill.
	AnalyticsEnabled bool
}

// NewConfigWithDefaults returns a Config with sensible production
// defaults, useful directly in tests.
func NewConfigWithDefaults() *Config {
	return &Config{
		FinalityWindow:   30,
		Concurrency:      8,
		Bootstrap:        false,
		AnalyticsEnabled: true,
	}
}

// NewConfig builds a Config from environment variables, falling back to
// NewConfigWithDefaults for anything unset.
func NewConfig() (*Config, error) {
	cfg := NewConfigWithDefaults()

	if v := os.Getenv("FINALITY_WINDOW"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FINALITY_WINDOW: %w", err)
		}
		cfg.FinalityWindow = n
	}

	if v := os.Getenv("INGEST_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid INGEST_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}

	if v := os.Getenv("BOOTSTRAP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BOOTSTRAP: %w", err)
		}
		cfg.Bootstrap = b
	}

	if v := os.Getenv("START_HEIGHT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid START_HEIGHT: %w", err)
		}
		cfg.StartHeight = &n
	}

	if v := os.Getenv("LIMIT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LIMIT: %w", err)
		}
		cfg.Limit = &n
	}

	return cfg, cfg.Validate()
}

// Validate range-checks the configuration.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	return nil
}

// BlockWorkers returns the block worker pool size per §5: min(max(c,1), 4).
func (c *Config) BlockWorkers() int {
	n := c.Concurrency
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	return n
}

// TxWorkers returns the transaction worker pool size per §5: max(c,1).
func (c *Config) TxWorkers() int {
	if c.Concurrency < 1 {
		return 1
	}
	return c.Concurrency
}
