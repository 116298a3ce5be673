package pipeline

import (
	"context"
	"fmt"

	"github.com/hieutt50/xmr-ingestor/internal/rpc"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

const (
	minTxChunk = 10
	maxTxChunk = 300
	chunkGrow  = 10
)

// TxFetcher is the daemon surface the transaction worker needs.
type TxFetcher interface {
	Transactions(ctx context.Context, hashes []string) (*rpc.TransactionsResponse, error)
}

// RateLimiter is the shared token-bucket + concurrency gate every RPC call
// passes through.
type RateLimiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// RunTxWorker consumes BlockMsg values from in and emits TxMsg values on
// out, until in is closed or ctx is done.
func RunTxWorker(ctx context.Context, id int, in <-chan BlockMsg, out chan<- TxMsg,
	daemon TxFetcher, limiter RateLimiter, concurrency int) error {

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			txs, err := fetchTransactions(ctx, msg.TxHashes, daemon, limiter, concurrency)
			if err != nil {
				return fmt.Errorf("tx worker %d: %w", id, err)
			}

			tm := TxMsg{
				Header:      msg.Header,
				MinerTxHash: msg.MinerTxHash,
				MinerTxJSON: msg.MinerTxJSON,
				Txs:         txs,
				Tip:         msg.Tip,
				Finalized:   msg.Finalized,
			}

			util.RecordStageProcessed("tx_worker")

			select {
			case out <- tm:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// fetchTransactions is the adaptive batch fetcher: it grows the chunk size
// on success and halves it (without advancing) on any missed_tx, until
// every hash has been resolved.
func fetchTransactions(ctx context.Context, hashes []string, daemon TxFetcher, limiter RateLimiter, concurrency int) ([]TxJSON, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	chunk := clamp(concurrency*50, minTxChunk, maxTxChunk)
	results := make([]TxJSON, 0, len(hashes))
	offset := 0

	for offset < len(hashes) {
		end := offset + chunk
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[offset:end]

		release, err := limiter.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire rate limit token: %w", err)
		}
		resp, err := daemon.Transactions(ctx, batch)
		release()
		if err != nil {
			return nil, fmt.Errorf("fetch transactions [%d:%d]: %w", offset, end, err)
		}

		if len(resp.MissedTx) > 0 {
			newChunk := chunk / 2
			if newChunk < minTxChunk {
				newChunk = minTxChunk
			}
			util.Warn("tx worker: daemon reported missed_tx, halving chunk and retrying",
				"missed", len(resp.MissedTx), "old_chunk", chunk, "new_chunk", newChunk, "offset", offset)
			chunk = newChunk
			continue // do not advance offset
		}

		byHash := make(map[string]rpc.TxEntry, len(resp.Txs))
		for _, entry := range resp.Txs {
			byHash[entry.TxHash] = entry
		}
		for _, h := range batch {
			entry, ok := byHash[h]
			if !ok {
				return nil, fmt.Errorf("fetch transactions: daemon response missing hash %s with no missed_tx reported", h)
			}
			results = append(results, TxJSON{Hash: h, JSON: entry.AsJSON, AsHex: entry.AsHex})
		}

		offset = end
		chunk += chunkGrow
		if chunk > maxTxChunk {
			chunk = maxTxChunk
		}
	}

	if len(results) != len(hashes) {
		return nil, fmt.Errorf("fetch transactions: expected %d results, got %d", len(hashes), len(results))
	}

	return results, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
