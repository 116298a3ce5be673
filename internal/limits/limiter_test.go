package limits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero rate", Config{RequestsPerSecond: 0, Concurrency: 4}},
		{"negative rate", Config{RequestsPerSecond: -1, Concurrency: 4}},
		{"zero concurrency", Config{RequestsPerSecond: 10, Concurrency: 0}},
		{"negative concurrency", Config{RequestsPerSecond: 10, Concurrency: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, l)
		})
	}
}

func TestNew_SteadyState(t *testing.T) {
	l, err := New(Config{RequestsPerSecond: 10, Concurrency: 8, Bootstrap: false})
	require.NoError(t, err)

	assert.Equal(t, 10.0, l.EffectiveRate())
	assert.Equal(t, 8, l.EffectiveConcurrency())
}

func TestNew_BootstrapScaling(t *testing.T) {
	tests := []struct {
		name               string
		rps                float64
		concurrency        int
		wantRate           float64
		wantConcurrency    int
	}{
		{"doubled concurrency exceeds floor", 10, 8, 25, 16},
		{"floor wins for small concurrency", 10, 2, 25, 6},
		{"fractional rate rounds up", 7, 4, 18, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(Config{RequestsPerSecond: tt.rps, Concurrency: tt.concurrency, Bootstrap: true})
			require.NoError(t, err)

			assert.Equal(t, tt.wantRate, l.EffectiveRate())
			assert.Equal(t, tt.wantConcurrency, l.EffectiveConcurrency())
		})
	}
}

func TestLimiter_AcquireRelease(t *testing.T) {
	l, err := New(Config{RequestsPerSecond: 1000, Concurrency: 2})
	require.NoError(t, err)

	ctx := context.Background()

	release1, err := l.Acquire(ctx)
	require.NoError(t, err)
	release2, err := l.Acquire(ctx)
	require.NoError(t, err)

	// Third acquire should block until a slot frees up.
	acquired := make(chan struct{})
	go func() {
		release3, err := l.Acquire(ctx)
		require.NoError(t, err)
		close(acquired)
		release3()
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should not have succeeded while both slots are held")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(1 * time.Second):
		t.Fatal("third acquire should have succeeded after a slot was released")
	}

	release2()
}

func TestLimiter_AcquireReleaseIdempotent(t *testing.T) {
	l, err := New(Config{RequestsPerSecond: 1000, Concurrency: 1})
	require.NoError(t, err)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	release()
	release() // calling twice must not double-free the semaphore

	// A fresh acquire should still succeed exactly once without deadlocking.
	release2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestLimiter_AcquireContextCancelled(t *testing.T) {
	l, err := New(Config{RequestsPerSecond: 1000, Concurrency: 1})
	require.NoError(t, err)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func BenchmarkLimiter_AcquireRelease(b *testing.B) {
	l, err := New(Config{RequestsPerSecond: 1_000_000, Concurrency: 64})
	if err != nil {
		b.Fatalf("failed to create limiter: %v", err)
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		release, err := l.Acquire(ctx)
		if err != nil {
			b.Fatalf("acquire failed: %v", err)
		}
		release()
	}
}
