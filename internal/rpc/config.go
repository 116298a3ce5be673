package rpc

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the daemon RPC client.
type Config struct {
	// RPCURL is the daemon's JSON-RPC/REST base URL (from RPC_URL environment variable)
	RPCURL string

	// ConnectionTimeout is the timeout for establishing RPC connections (default: 10s)
	ConnectionTimeout time.Duration

	// RequestTimeout is the timeout for individual RPC requests (default: 10s)
	RequestTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures (default: 5)
	MaxRetries int

	// RetryBaseDelay is the base delay for exponential backoff (default: 1s)
	RetryBaseDelay time.Duration

	// HeaderBatchSize is the bulk ranged-header fetch size used by the header fetcher (default: 200)
	HeaderBatchSize int
}

// NewConfig creates a new Config with default values.
// RPCURL is read from the RPC_URL environment variable.
func NewConfig() (*Config, error) {
	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC_URL environment variable not set")
	}

	cfg := NewConfigWithDefaults(rpcURL)

	if v := os.Getenv("RPC_REQUEST_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RPC_REQUEST_TIMEOUT_SECONDS value: %w", err)
		}
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

// NewConfigWithDefaults creates a Config with a provided URL and default timeout values.
// Useful for testing scenarios.
func NewConfigWithDefaults(rpcURL string) *Config {
	return &Config{
		RPCURL:            rpcURL,
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    10 * time.Second,
		MaxRetries:        5,
		RetryBaseDelay:    1 * time.Second,
		HeaderBatchSize:   200,
	}
}
