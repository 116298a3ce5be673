// Package reorg implements the chain reorg healer: invoked by the block
// worker when it detects that the daemon's reported chain diverges from
// what is already stored, it walks backward to the fork point, rolls the
// store back, and requeues the orphaned transactions into the mempool.
package reorg

import (
	"context"
	"errors"
	"fmt"

	"github.com/hieutt50/xmr-ingestor/internal/rpc"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// ErrTooDeep is returned when the fork point could not be found within the
// configured finality window; this is unrecoverable and should be treated
// as fatal by the caller.
var ErrTooDeep = errors.New("reorg: fork point deeper than finality window")

// HeaderSource is the minimal daemon surface the healer needs: resolving a
// single header by height during the backward walk.
type HeaderSource interface {
	HeaderByHeight(ctx context.Context, height uint64) (*rpc.BlockHeader, error)
}

// StoredChain is the store surface the healer needs: reading a previously
// recorded hash, and rolling everything back to a fork height.
type StoredChain interface {
	StoredHash(ctx context.Context, height int64) (hash string, ok bool, err error)
	RollbackToHeight(ctx context.Context, forkHeight int64) (reinserted int, err error)
}

// Healer detects and repairs a chain reorg by walking backward from the
// height below the one being ingested until a stored hash matches the
// daemon, then rolling the store back to the height above that match.
type Healer struct {
	rpc            HeaderSource
	store          StoredChain
	finalityWindow uint64
}

// New builds a Healer. finalityWindow bounds how far back the fork point
// search is allowed to walk before giving up with ErrTooDeep.
func New(rpcClient HeaderSource, store StoredChain, finalityWindow uint64) *Healer {
	return &Healer{rpc: rpcClient, store: store, finalityWindow: finalityWindow}
}

// Heal walks backward from start-1 looking for the height where the
// daemon's header hash matches what is stored, rolls the store back to the
// height above that (the fork height), and requeues every orphaned
// transaction into the mempool. It returns the fork height, the lowest
// height removed from the store.
func (h *Healer) Heal(ctx context.Context, start uint64) (forkHeight int64, err error) {
	if start == 0 {
		return 0, fmt.Errorf("reorg: cannot heal at height 0")
	}

	height := int64(start) - 1
	steps := uint64(0)

	for {
		if steps > h.finalityWindow {
			return 0, ErrTooDeep
		}

		header, err := h.rpc.HeaderByHeight(ctx, uint64(height))
		if err != nil {
			return 0, fmt.Errorf("reorg: fetch header at %d: %w", height, err)
		}

		storedHash, ok, err := h.store.StoredHash(ctx, height)
		if err != nil {
			return 0, fmt.Errorf("reorg: read stored hash at %d: %w", height, err)
		}

		if !ok || header.Hash == storedHash {
			break
		}

		height--
		steps++

		if height < 0 {
			return 0, ErrTooDeep
		}
	}

	forkHeight = height + 1

	reinserted, err := h.store.RollbackToHeight(ctx, forkHeight)
	if err != nil {
		return 0, fmt.Errorf("reorg: rollback to %d: %w", forkHeight, err)
	}

	util.Warn("reorg healed",
		"fork_height", forkHeight,
		"start_height", start,
		"steps", steps,
		"requeued_mempool_txs", reinserted,
	)
	util.RecordReorg(int(steps + 1))

	return forkHeight, nil
}
