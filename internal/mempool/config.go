package mempool

import (
	"fmt"
	"os"
	"time"
)

// Config configures the mempool watcher using the same
// Config-with-defaults pattern the rest of this module's components use.
type Config struct {
	// ZMQURL is the daemon's publish/subscribe endpoint (from ZMQ_URL).
	ZMQURL string

	// RecvTimeout bounds each receive on the SUB socket; a timeout also
	// doubles as the periodic-refresh tick (default 5s).
	RecvTimeout time.Duration

	// ErrorBackoff is how long the watcher sleeps after a transport error
	// before retrying (default 1s).
	ErrorBackoff time.Duration
}

// NewConfigWithDefaults returns a Config with sensible production defaults
// for the given ZMQ endpoint.
func NewConfigWithDefaults(zmqURL string) *Config {
	return &Config{
		ZMQURL:       zmqURL,
		RecvTimeout:  5 * time.Second,
		ErrorBackoff: 1 * time.Second,
	}
}

// NewConfig builds a Config from the ZMQ_URL environment variable.
func NewConfig() (*Config, error) {
	url := os.Getenv("ZMQ_URL")
	if url == "" {
		return nil, fmt.Errorf("ZMQ_URL environment variable not set")
	}
	return NewConfigWithDefaults(url), nil
}

// Validate range-checks the configuration.
func (c *Config) Validate() error {
	if c.ZMQURL == "" {
		return fmt.Errorf("zmq url cannot be empty")
	}
	if c.RecvTimeout <= 0 {
		return fmt.Errorf("recv timeout must be > 0, got %v", c.RecvTimeout)
	}
	return nil
}
