package db

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the database connection
type Config struct {
	// Host is the database server hostname (from DB_HOST environment variable, default: localhost)
	Host string

	// Port is the database server port (from DB_PORT environment variable, default: 5432)
	Port int

	// Name is the database name (from DB_NAME environment variable, required)
	Name string

	// User is the database user (from DB_USER environment variable, required)
	User string

	// Password is the database password (from DB_PASSWORD environment variable, required)
	Password string

	// MaxConns is the maximum number of connections in the pool (from DB_MAX_CONNS environment variable, default: 20)
	MaxConns int

	// ConnTimeout is the timeout for establishing database connections (default: 5s)
	ConnTimeout time.Duration

	// IdleTimeout is the maximum time a connection can be idle (default: 5m)
	IdleTimeout time.Duration

	// ConnLifetime is the maximum lifetime of a connection (default: 30m)
	ConnLifetime time.Duration
}

// NewConfigFromURL builds a Config from a postgres:// DSN, the form
// cmd/ingestor's --database-url flag accepts. Pool tuning fields fall back
// to the same defaults NewConfig uses; they can be overridden afterward.
func NewConfigFromURL(rawURL string) (*Config, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return nil, fmt.Errorf("database url: unsupported scheme %q, want postgres://", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("database url: missing host")
	}

	port := 5432
	if p := parsed.Port(); p != "" {
		parsedPort, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("database url: invalid port %q: %w", p, err)
		}
		port = parsedPort
	}

	name := strings.TrimPrefix(parsed.Path, "/")
	if name == "" {
		return nil, fmt.Errorf("database url: missing database name")
	}

	user := parsed.User.Username()
	password, _ := parsed.User.Password()

	maxConns := 20
	if v := parsed.Query().Get("pool_max_conns"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("database url: invalid pool_max_conns %q: %w", v, err)
		}
		maxConns = n
	}

	return &Config{
		Host: host, Port: port, Name: name, User: user, Password: password,
		MaxConns: maxConns, ConnTimeout: 5 * time.Second, IdleTimeout: 5 * time.Minute,
		ConnLifetime: 30 * time.Minute,
	}, nil
}

// NewConfig creates a new Config from environment variables
// Required environment variables: DB_NAME, DB_USER, DB_PASSWORD
// Optional environment variables: DB_HOST (default: localhost), DB_PORT (default: 5432), DB_MAX_CONNS (default: 20)
func NewConfig() (*Config, error) {
	if rawURL := os.Getenv("DATABASE_URL"); rawURL != "" {
		return NewConfigFromURL(rawURL)
	}

	// Required fields
	name := os.Getenv("DB_NAME")
	if name == "" {
		return nil, fmt.Errorf("DB_NAME environment variable not set")
	}

	user := os.Getenv("DB_USER")
	if user == "" {
		return nil, fmt.Errorf("DB_USER environment variable not set")
	}

	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable not set")
	}

	// Optional fields with defaults
	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}

	port := 5432
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		parsedPort, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT value: %w", err)
		}
		if parsedPort < 1 || parsedPort > 65535 {
			return nil, fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", parsedPort)
		}
		port = parsedPort
	}

	maxConns := 20
	if maxConnsStr := os.Getenv("DB_MAX_CONNS"); maxConnsStr != "" {
		parsedMaxConns, err := strconv.Atoi(maxConnsStr)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_CONNS value: %w", err)
		}
		if parsedMaxConns < 1 {
			return nil, fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", parsedMaxConns)
		}
		maxConns = parsedMaxConns
	}

	return &Config{
		Host:         host,
		Port:         port,
		Name:         name,
		User:         user,
		Password:     password,
		MaxConns:     maxConns,
		ConnTimeout:  5 * time.Second,
		IdleTimeout:  5 * time.Minute,
		ConnLifetime: 30 * time.Minute,
	}, nil
}

// NewConfigWithDefaults creates a Config with provided values and default timeout settings
// Useful for testing scenarios
func NewConfigWithDefaults(host string, port int, name, user, password string, maxConns int) *Config {
	return &Config{
		Host:         host,
		Port:         port,
		Name:         name,
		User:         user,
		Password:     password,
		MaxConns:     maxConns,
		ConnTimeout:  5 * time.Second,
		IdleTimeout:  5 * time.Minute,
		ConnLifetime: 30 * time.Minute,
	}
}

// ConnectionString builds a PostgreSQL connection string
// Password is included but should never be logged
func (c *Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

// SafeString returns a string representation with the password masked
// Safe for logging
func (c *Config) SafeString() string {
	return fmt.Sprintf(
		"postgres://%s:***@%s:%d/%s (maxConns=%d)",
		c.User,
		c.Host,
		c.Port,
		c.Name,
		c.MaxConns,
	)
}
