//go:build integration

package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hieutt50/xmr-ingestor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationClient(t *testing.T, daemon *testutil.MockDaemon) *Client {
	cfg := NewConfigWithDefaults(daemon.URL())
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// TestRPCIntegration_RetryLogic tests retry with transient daemon failures.
func TestRPCIntegration_RetryLogic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 10)
	daemon.SetGlobalFailures(2)

	client := newIntegrationClient(t, daemon)

	hdr, err := client.HeaderByHeight(ctx, 1)
	require.NoError(t, err, "should succeed after transient failures are retried")
	assert.NotNil(t, hdr)
	assert.GreaterOrEqual(t, daemon.GetCallCount(), 3, "should have retried at least twice before succeeding")

	t.Log("RPC retry logic validated successfully")
}

// TestRPCIntegration_ExponentialBackoff tests retry timing against a flaky daemon.
func TestRPCIntegration_ExponentialBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 1)
	daemon.SetGlobalFailures(3)

	client := newIntegrationClient(t, daemon)

	startTime := time.Now()
	_, err := client.HeaderByHeight(ctx, 1)
	totalDuration := time.Since(startTime)

	require.NoError(t, err)
	t.Logf("Total time with retries: %v", totalDuration)

	// baseDelay defaults to 1s: 3 failed attempts back off 1s, 2s, 4s ~= 7s minimum.
	assert.GreaterOrEqual(t, totalDuration, 6*time.Second, "should respect backoff timing")
}

// TestRPCIntegration_PermanentError tests immediate failure with no retries.
func TestRPCIntegration_PermanentError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 10)
	daemon.SetPermanentError(5)

	client := newIntegrationClient(t, daemon)

	startTime := time.Now()
	_, err := client.HeaderByHeight(ctx, 5)
	duration := time.Since(startTime)

	assert.Error(t, err, "should return error for permanent failure")
	assert.Contains(t, err.Error(), "permanent", "error should indicate permanent failure")
	assert.Less(t, duration, 500*time.Millisecond, "should fail immediately without retries")

	t.Log("Permanent error handling validated")
}

// TestRPCIntegration_ContextCancellation tests timeout handling during retries.
func TestRPCIntegration_ContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 1)
	daemon.SetDelay(200 * time.Millisecond)
	daemon.SetGlobalFailures(100) // never succeeds within the window

	client := newIntegrationClient(t, daemon)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	startTime := time.Now()
	_, err := client.HeaderByHeight(ctx, 1)
	duration := time.Since(startTime)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "should surface context deadline")
	assert.Less(t, duration, 1*time.Second, "should stop on context cancellation")
}

// TestRPCIntegration_MaxRetriesExceeded tests the retry ceiling.
func TestRPCIntegration_MaxRetriesExceeded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 1)
	daemon.SetGlobalFailures(100)

	cfg := NewConfigWithDefaults(daemon.URL())
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = 10 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.HeaderByHeight(ctx, 1)
	assert.Error(t, err, "should still be failing after max retries")
	assert.Contains(t, err.Error(), "max retries exceeded")
}

// TestRPCIntegration_ConcurrentCalls tests thread safety of the shared client.
func TestRPCIntegration_ConcurrentCalls(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 100)

	client := newIntegrationClient(t, daemon)

	concurrency := 10
	errChan := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			for j := 0; j < 10; j++ {
				height := uint64(workerID*10 + j + 1)
				_, err := client.HeaderByHeight(ctx, height)
				if err != nil {
					errChan <- err
					return
				}
			}
			errChan <- nil
		}(i)
	}

	for i := 0; i < concurrency; i++ {
		err := <-errChan
		assert.NoError(t, err, "concurrent calls should succeed")
	}

	t.Logf("Handled %d concurrent RPC calls successfully", daemon.GetCallCount())
}

// TestRPCIntegration_ErrorClassification exercises error type detection over HTTP.
func TestRPCIntegration_ErrorClassification(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Run("transient_errors", func(t *testing.T) {
		for _, msg := range []string{"network timeout", "connection refused", "temporary failure"} {
			assert.Equal(t, ErrTransient, classifyError(errors.New(msg)))
		}
	})

	t.Run("permanent_errors", func(t *testing.T) {
		for _, msg := range []string{"invalid block height", "malformed request", "invalid parameters"} {
			assert.Equal(t, ErrPermanent, classifyError(errors.New(msg)))
		}
	})
}

// TestRPCIntegration_SlowNetwork tests behavior with slow daemon responses.
func TestRPCIntegration_SlowNetwork(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	daemon := testutil.NewMockDaemon(t)
	daemon.GenerateHeaders(1, 10)
	daemon.SetDelay(250 * time.Millisecond)

	client := newIntegrationClient(t, daemon)

	startTime := time.Now()
	var totalFetched int
	for h := uint64(1); h <= 10; h++ {
		_, err := client.HeaderByHeight(ctx, h)
		require.NoError(t, err, "should handle slow network")
		totalFetched++
	}
	duration := time.Since(startTime)

	t.Logf("Fetched %d headers in %v with slow network", totalFetched, duration)
	assert.Equal(t, 10, totalFetched)
	assert.Greater(t, duration, 2*time.Second, "should take time with slow network")
}
