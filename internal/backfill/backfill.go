// Package backfill implements the offline analytics-backfill command: it
// recomputes soft_facts for any block left analytics_pending by the inline
// ingest path and clears the flag, using only data already persisted in
// Postgres.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/hieutt50/xmr-ingestor/internal/analytics"
	"github.com/hieutt50/xmr-ingestor/internal/store"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// Store is the store surface the backfill needs.
type Store interface {
	AnalyticsPendingHeights(ctx context.Context, batch int) ([]int64, error)
	BlockTxsForAnalytics(ctx context.Context, height int64) ([]store.Transaction, map[string][]int, error)
	UpsertSoftFacts(ctx context.Context, sf store.SoftFacts) error
	MarkAnalyticsPending(ctx context.Context, height int64, pending bool) error
}

// Run repeatedly pulls up to batch analytics_pending heights and recomputes
// their soft facts until none remain, returning the total number of blocks
// processed. It runs until the store reports no more pending heights, not
// for a fixed number of passes, so callers can invoke it as a one-shot
// catch-up job.
func Run(ctx context.Context, s Store, batch int) (int, error) {
	start := time.Now()
	processed := 0

	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		heights, err := s.AnalyticsPendingHeights(ctx, batch)
		if err != nil {
			return processed, fmt.Errorf("backfill: list pending heights: %w", err)
		}
		if len(heights) == 0 {
			break
		}

		for _, height := range heights {
			if err := processHeight(ctx, s, height); err != nil {
				return processed, fmt.Errorf("backfill: height %d: %w", height, err)
			}
			processed++
		}

		util.Info("analytics backfill progress", "processed", processed, "batch_size", len(heights))
	}

	util.RecordBackfillDuration(time.Since(start).Seconds())
	util.Info("analytics backfill complete", "processed", processed, "elapsed", time.Since(start).String())
	return processed, nil
}

func processHeight(ctx context.Context, s Store, height int64) error {
	txs, ringSizes, err := s.BlockTxsForAnalytics(ctx, height)
	if err != nil {
		return fmt.Errorf("load txs: %w", err)
	}

	facts := analytics.FromStored(txs, ringSizes)
	sf := analytics.Aggregate(height, facts)

	if err := s.UpsertSoftFacts(ctx, sf); err != nil {
		return fmt.Errorf("upsert soft facts: %w", err)
	}
	if err := s.MarkAnalyticsPending(ctx, height, false); err != nil {
		return fmt.Errorf("clear analytics_pending: %w", err)
	}
	return nil
}
