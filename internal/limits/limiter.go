// Package limits provides the process-wide rate and concurrency limiter
// shared by every pipeline stage that issues daemon RPC calls.
package limits

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// BootstrapRateMultiplier scales the configured request rate during an
// initial backfill, where throughput matters more than daemon courtesy.
const BootstrapRateMultiplier = 2.5

// Config describes the limiter's steady-state configuration before any
// bootstrap scaling is applied.
type Config struct {
	// RequestsPerSecond is the steady-state token-bucket refill rate.
	RequestsPerSecond float64

	// Concurrency is the steady-state concurrency cap.
	Concurrency int

	// Bootstrap enables the scaled-up rate and concurrency ceiling used
	// during an initial catch-up backfill.
	Bootstrap bool
}

// Limiter is the single shared token-bucket + concurrency-cap gate every RPC
// call passes through, regardless of which pipeline stage issues it.
type Limiter struct {
	rateLimiter *rate.Limiter
	sem         chan struct{}

	effectiveRate        float64
	effectiveConcurrency int
}

// New builds a Limiter from cfg, applying bootstrap-mode scaling: in
// bootstrap mode the rate ceiling is multiplied by BootstrapRateMultiplier
// (rounded up), and the concurrency cap is doubled with a floor of
// Concurrency+4.
func New(cfg Config) (*Limiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %f", cfg.RequestsPerSecond)
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	effectiveRate := cfg.RequestsPerSecond
	effectiveConcurrency := cfg.Concurrency

	if cfg.Bootstrap {
		effectiveRate = math.Ceil(cfg.RequestsPerSecond * BootstrapRateMultiplier)
		doubled := cfg.Concurrency * 2
		floor := cfg.Concurrency + 4
		if doubled > floor {
			effectiveConcurrency = doubled
		} else {
			effectiveConcurrency = floor
		}
	}

	util.Info("rate limiter configured",
		"bootstrap", cfg.Bootstrap,
		"configured_rate", cfg.RequestsPerSecond,
		"effective_rate", effectiveRate,
		"configured_concurrency", cfg.Concurrency,
		"effective_concurrency", effectiveConcurrency,
	)

	return &Limiter{
		rateLimiter:          rate.NewLimiter(rate.Limit(effectiveRate), int(math.Ceil(effectiveRate))),
		sem:                  make(chan struct{}, effectiveConcurrency),
		effectiveRate:        effectiveRate,
		effectiveConcurrency: effectiveConcurrency,
	}, nil
}

// EffectiveRate returns the token-bucket refill rate actually in effect,
// after bootstrap scaling.
func (l *Limiter) EffectiveRate() float64 { return l.effectiveRate }

// EffectiveConcurrency returns the concurrency cap actually in effect, after
// bootstrap scaling.
func (l *Limiter) EffectiveConcurrency() int { return l.effectiveConcurrency }

// Acquire blocks until both a rate-limit token and a concurrency slot are
// available, or ctx is done. The caller must call the returned release
// function exactly once to free the concurrency slot.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-l.sem
	}, nil
}
