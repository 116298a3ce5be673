package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hieutt50/xmr-ingestor/internal/checkpoint"
	"github.com/hieutt50/xmr-ingestor/internal/limits"
	"github.com/hieutt50/xmr-ingestor/internal/reorg"
	"github.com/hieutt50/xmr-ingestor/internal/store"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// schedChannelCapacity is the scheduler-to-block-worker channel's fixed
// capacity.
const schedChannelCapacity = 512

// channelFanout multiplies each stage's worker count to size its upstream
// channel's capacity.
const channelFanout = 4

// heartbeatInterval is how often the drain loop logs progress while waiting
// for in-flight work to finish during shutdown.
const heartbeatInterval = 5 * time.Second

// drainDeadline bounds how long Run waits for in-flight stages to finish
// after ctx is canceled before returning anyway.
const drainDeadline = 30 * time.Second

// Daemon is the full daemon RPC surface the pipeline needs, satisfied by
// *rpc.Client.
type Daemon interface {
	ChainTipSource
	HeaderSource
	BlockFetcher
	TxFetcher
}

// Run wires the scheduler, block worker pool, transaction worker pool and
// persister together into the ingestion pipeline, and blocks until every
// stage has returned (for example once the scheduler stops at cfg.Limit).
// After ctx is canceled it waits for the stages to drain for at most
// drainDeadline, then returns whether or not they have finished.
func Run(ctx context.Context, cfg *Config, daemon Daemon, st *store.Store, cp *checkpoint.Store, limiter *limits.Limiter, ranged bool) error {
	lastIngested, lastFinalized, err := cp.Get(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: read checkpoint: %w", err)
	}
	util.Info("pipeline starting", "last_ingested", lastIngested, "last_finalized", lastFinalized,
		"block_workers", cfg.BlockWorkers(), "tx_workers", cfg.TxWorkers(), "analytics_enabled", cfg.AnalyticsEnabled)

	healer := reorg.New(daemon, st, cfg.FinalityWindow)
	persister := NewPersister(st, cp, int64(cfg.FinalityWindow), cfg.AnalyticsEnabled, lastIngested)

	schedOut := make(chan SchedMsg, schedChannelCapacity)
	blockOut := make(chan BlockMsg, channelFanout*cfg.BlockWorkers())
	txOut := make(chan TxMsg, channelFanout*cfg.TxWorkers())

	var wg sync.WaitGroup
	errs := make(chan error, cfg.BlockWorkers()+cfg.TxWorkers()+2)

	scheduler := NewScheduler(cfg, daemon, lastIngested)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(schedOut)
		if err := scheduler.Run(ctx, schedOut); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	var blockWG sync.WaitGroup
	for i := 0; i < cfg.BlockWorkers(); i++ {
		blockWG.Add(1)
		id := i
		go func() {
			defer blockWG.Done()
			if err := RunBlockWorker(ctx, id, schedOut, blockOut, daemon, daemon, st, healer, ranged); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("block worker %d: %w", id, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(blockOut)
		blockWG.Wait()
	}()

	var txWG sync.WaitGroup
	for i := 0; i < cfg.TxWorkers(); i++ {
		txWG.Add(1)
		id := i
		go func() {
			defer txWG.Done()
			if err := RunTxWorker(ctx, id, blockOut, txOut, daemon, limiter, cfg.TxWorkers()); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("tx worker %d: %w", id, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(txOut)
		txWG.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := persister.Run(ctx, txOut); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("persister: %w", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return firstError(errs)
	case <-ctx.Done():
		return drainWithHeartbeat(done, errs)
	}
}

// drainWithHeartbeat waits for the pipeline's stages to finish in-flight
// work after ctx has been canceled, logging progress every heartbeatInterval
// until done fires or drainDeadline elapses.
func drainWithHeartbeat(done <-chan struct{}, errs <-chan error) error {
	deadline := time.NewTimer(drainDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	elapsed := time.Duration(0)
	for {
		select {
		case <-done:
			return firstError(errs)
		case <-ticker.C:
			elapsed += heartbeatInterval
			util.Info("pipeline draining", "elapsed", elapsed.String())
		case <-deadline.C:
			util.Warn("pipeline drain deadline exceeded, returning anyway", "deadline", drainDeadline.String())
			return firstError(errs)
		}
	}
}

func firstError(errs <-chan error) error {
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}
