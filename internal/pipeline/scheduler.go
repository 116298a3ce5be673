package pipeline

import (
	"context"
	"time"

	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// tipPollBackoff is how long the scheduler sleeps when it has caught up to
// the daemon's tip, per §4.4.
const tipPollBackoff = 2 * time.Second

// ChainTipSource is the minimal daemon surface the scheduler needs: how many
// blocks the daemon currently has.
type ChainTipSource interface {
	BlockCount(ctx context.Context) (uint64, error)
}

// Scheduler emits ascending SchedMsg height work items, backing off whenever
// it has caught up to the daemon's reported tip. It does not detect reorgs;
// that is the block worker's job.
type Scheduler struct {
	cfg   *Config
	chain ChainTipSource

	// nextHeight is the next height to emit, resolved once at NewScheduler
	// time from cfg.StartHeight or the checkpoint's last ingested height.
	nextHeight uint64
}

// NewScheduler builds a Scheduler. lastIngested is the checkpoint's last
// ingested height (0 if none persisted yet); it is used only when
// cfg.StartHeight is unset.
func NewScheduler(cfg *Config, chain ChainTipSource, lastIngested uint64) *Scheduler {
	next := lastIngested + 1
	if cfg.StartHeight != nil {
		next = *cfg.StartHeight
	}
	return &Scheduler{cfg: cfg, chain: chain, nextHeight: next}
}

// Run emits SchedMsg values on out in ascending height order until ctx is
// done or cfg.Limit heights have been emitted (if set).
func (s *Scheduler) Run(ctx context.Context, out chan<- SchedMsg) error {
	var emitted uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.cfg.Limit != nil && emitted >= *s.cfg.Limit {
			return nil
		}

		tip, err := s.chain.BlockCount(ctx)
		if err != nil {
			util.Warn("scheduler: block count poll failed", "error", err.Error())
			if !sleepOrDone(ctx, tipPollBackoff) {
				return ctx.Err()
			}
			continue
		}
		// get_block_count returns a count, one past the highest height.
		tipHeight := uint64(0)
		if tip > 0 {
			tipHeight = tip - 1
		}

		if s.nextHeight > tipHeight {
			if !sleepOrDone(ctx, tipPollBackoff) {
				return ctx.Err()
			}
			continue
		}

		finalized := uint64(0)
		if tipHeight > s.cfg.FinalityWindow {
			finalized = tipHeight - s.cfg.FinalityWindow
		}

		msg := SchedMsg{Height: s.nextHeight, Tip: tipHeight, Finalized: finalized}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.nextHeight++
		emitted++
	}
}

// sleepOrDone sleeps for d unless ctx finishes first, returning false in
// that case so callers can propagate ctx.Err().
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
