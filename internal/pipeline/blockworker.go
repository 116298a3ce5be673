package pipeline

import (
	"context"
	"fmt"

	"github.com/hieutt50/xmr-ingestor/internal/rpc"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// BlockFetcher is the daemon surface the block worker needs beyond header
// resolution: fetching the full block JSON once a header is resolved.
type BlockFetcher interface {
	BlockByHash(ctx context.Context, hash string, fillPow bool) (*rpc.Block, error)
}

// Reconciler is invoked when a block worker detects a reorg; it heals the
// store and returns the fork height. The worker then retries the height it
// was processing.
type Reconciler interface {
	Heal(ctx context.Context, start uint64) (forkHeight int64, err error)
}

// BlockStore is the store surface the block worker's reorg check needs.
type BlockStore interface {
	StoredHash(ctx context.Context, height int64) (hash string, ok bool, err error)
}

// RunBlockWorker consumes SchedMsg values from in and emits BlockMsg values
// on out, until in is closed or ctx is done. Multiple workers may range
// over the same in channel concurrently; Go's channel semantics fan the
// work out without any extra synchronization, a shared-receiver discipline
// given for free by the language here.
func RunBlockWorker(ctx context.Context, id int, in <-chan SchedMsg, out chan<- BlockMsg,
	headers HeaderSource, blocks BlockFetcher, store BlockStore, healer Reconciler, ranged bool) error {

	fetcher := newHeaderFetcher(headers, ranged)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := processHeight(ctx, id, msg, out, fetcher, blocks, store, healer); err != nil {
				return err
			}
		}
	}
}

// processHeight resolves one SchedMsg to a BlockMsg, looping locally (not
// returning to the scheduler) if a reorg is detected and healed.
func processHeight(ctx context.Context, workerID int, msg SchedMsg, out chan<- BlockMsg,
	fetcher *headerFetcher, blocks BlockFetcher, store BlockStore, healer Reconciler) error {

	height := msg.Height

	for {
		header, err := fetcher.headerAt(ctx, height)
		if err != nil {
			return fmt.Errorf("block worker %d: header at %d: %w", workerID, height, err)
		}

		if height > 0 {
			storedHash, ok, err := store.StoredHash(ctx, int64(height)-1)
			if err != nil {
				return fmt.Errorf("block worker %d: stored hash at %d: %w", workerID, height-1, err)
			}
			if ok && storedHash != header.PrevHash {
				util.Warn("block worker: reorg detected", "worker", workerID, "height", height,
					"stored_prev_hash", storedHash, "daemon_prev_hash", header.PrevHash)

				forkHeight, err := healer.Heal(ctx, height)
				if err != nil {
					return fmt.Errorf("block worker %d: heal reorg at %d: %w", workerID, height, err)
				}
				// Retry the original height locally; the store is now
				// consistent up to forkHeight-1.
				_ = forkHeight
				continue
			}
		}

		block, err := blocks.BlockByHash(ctx, header.Hash, false)
		if err != nil {
			return fmt.Errorf("block worker %d: fetch block %s: %w", workerID, header.Hash, err)
		}

		minerTxJSON, parsedHashes, err := rpc.ParseBlockJSON(block.JSON)
		if err != nil {
			return fmt.Errorf("block worker %d: parse block json at %d: %w", workerID, height, err)
		}

		txHashes := filterEmpty(block.TxHashes)
		if len(txHashes) == 0 {
			txHashes = filterEmpty(parsedHashes)
		}

		bm := BlockMsg{
			Header:      *header,
			MinerTxHash: block.MinerTxHash,
			MinerTxJSON: minerTxJSON,
			TxHashes:    txHashes,
			Tip:         msg.Tip,
			Finalized:   msg.Finalized,
		}

		util.RecordStageProcessed("block_worker")

		select {
		case out <- bm:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
