// Package store is the relational writer and reader for the ingestion
// pipeline: every write the pipeline makes (blocks, their transactions,
// inputs, outputs and rings, the mempool mirror, soft facts, chain tips)
// goes through here, against a single shared pgxpool.Pool, following the
// teacher's pattern of a thin struct wrapping the pool with one method per
// query or command.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store is the relational writer and reader backing the ingestion pipeline
// and the read-only query API.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps pool in a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// StoredHash returns the hash recorded for height, and whether a row exists
// at all. Used by the block worker's reorg check and the reorg healer.
func (s *Store) StoredHash(ctx context.Context, height int64) (hash string, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT hash FROM blocks WHERE height = $1`, height).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query stored hash at %d: %w", height, err)
	}
	return hash, true, nil
}

// TxInput is an input record awaiting persistence, carrying the absolute
// global output indices its ring references (see codec.AbsoluteKeyOffsets)
// so PersistBlock can opportunistically resolve Ring rows in the same
// transaction it inserts the input.
type TxInput struct {
	Input
	AbsoluteOffsets []int64
}

// TxRecord groups one transaction with its inputs and outputs for a single
// PersistBlock call.
type TxRecord struct {
	Tx      Transaction
	Inputs  []TxInput
	Outputs []Output
}

// PersistBlockParams is everything the persister needs to commit one block.
type PersistBlockParams struct {
	Block     Block
	Txs       []TxRecord
	Tip       int64
	Finalized int64
}

// PersistBlock writes one block, its transactions, inputs, outputs and
// (opportunistically) rings, evicts the included tx hashes from the mempool
// mirror, and upserts the chain tip — all in one SQL transaction. Every
// insert is idempotent (ON CONFLICT DO NOTHING / upsert), so PersistBlock may
// safely be called more than once for the same height.
func (s *Store) PersistBlock(ctx context.Context, p PersistBlockParams) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persist block %d: begin: %w", p.Block.Height, err)
	}
	defer tx.Rollback(ctx)

	confirmations := maxInt64(0, p.Tip-p.Block.Height+1)
	isFinal := p.Block.Height <= p.Finalized

	_, err = tx.Exec(ctx, `
		INSERT INTO blocks (height, hash, prev_hash, "timestamp", size, major_version, minor_version,
			nonce, tx_count, reward, confirmations, is_final, analytics_pending, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
		ON CONFLICT (height) DO NOTHING
	`, p.Block.Height, p.Block.Hash, p.Block.PrevHash, p.Block.Timestamp, p.Block.Size,
		p.Block.MajorVersion, p.Block.MinorVersion, p.Block.Nonce, p.Block.TxCount,
		p.Block.Reward, confirmations, isFinal, p.Block.AnalyticsPending)
	if err != nil {
		return fmt.Errorf("persist block %d: insert block: %w", p.Block.Height, err)
	}

	includedHashes := make([]string, 0, len(p.Txs))
	for _, rec := range p.Txs {
		includedHashes = append(includedHashes, rec.Tx.Hash)

		_, err = tx.Exec(ctx, `
			INSERT INTO txs (tx_hash, block_height, block_timestamp, in_mempool, fee, size, version,
				unlock_time, tx_extra, rct_type, proof_type, bp_plus, bp_bytes, has_clsag, vin_count, vout_count)
			VALUES ($1,$2,$3,FALSE,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (tx_hash) DO NOTHING
		`, rec.Tx.Hash, p.Block.Height, p.Block.Timestamp, rec.Tx.Fee, rec.Tx.Size, rec.Tx.Version,
			rec.Tx.UnlockTime, rec.Tx.TxExtra, rec.Tx.RctType, rec.Tx.ProofType, rec.Tx.BPPlus,
			rec.Tx.BPBytes, rec.Tx.HasCLSAG, rec.Tx.VinCount, rec.Tx.VoutCount)
		if err != nil {
			return fmt.Errorf("persist block %d: insert tx %s: %w", p.Block.Height, rec.Tx.Hash, err)
		}

		for _, in := range rec.Inputs {
			_, err = tx.Exec(ctx, `
				INSERT INTO tx_inputs (tx_hash, idx, key_image, ring_size, pseudo_out)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (tx_hash, idx) DO NOTHING
			`, rec.Tx.Hash, in.Idx, in.KeyImage, in.RingSize, nullIfEmpty(in.PseudoOut))
			if err != nil {
				return fmt.Errorf("persist block %d: insert input %s[%d]: %w", p.Block.Height, rec.Tx.Hash, in.Idx, err)
			}
		}

		for _, out := range rec.Outputs {
			var globalIndex *int64
			if rec.Tx.Version >= 2 {
				var gi int64
				if err := tx.QueryRow(ctx, `SELECT nextval('output_global_index_seq')`).Scan(&gi); err != nil {
					return fmt.Errorf("persist block %d: next output index: %w", p.Block.Height, err)
				}
				globalIndex = &gi
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO outputs (tx_hash, idx_in_tx, commitment, amount, stealth_public_key, global_index)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (tx_hash, idx_in_tx) DO NOTHING
			`, rec.Tx.Hash, out.IdxInTx, nullIfEmpty(out.Commitment), nullIfEmpty(out.Amount),
				out.StealthPublicKey, globalIndex)
			if err != nil {
				return fmt.Errorf("persist block %d: insert output %s[%d]: %w", p.Block.Height, rec.Tx.Hash, out.IdxInTx, err)
			}
		}

		for _, in := range rec.Inputs {
			for ringIdx, abs := range in.AbsoluteOffsets {
				var refID int64
				err := tx.QueryRow(ctx, `SELECT id FROM outputs WHERE global_index = $1`, abs).Scan(&refID)
				if errors.Is(err, pgx.ErrNoRows) {
					continue // referenced output not (yet) in our own store; skip, ring stays unresolved
				}
				if err != nil {
					return fmt.Errorf("persist block %d: resolve ring %s[%d][%d]: %w", p.Block.Height, rec.Tx.Hash, in.Idx, ringIdx, err)
				}
				_, err = tx.Exec(ctx, `
					INSERT INTO rings (tx_hash, input_idx, ring_index, referenced_output_id)
					VALUES ($1,$2,$3,$4)
					ON CONFLICT (tx_hash, input_idx, ring_index) DO NOTHING
				`, rec.Tx.Hash, in.Idx, ringIdx, refID)
				if err != nil {
					return fmt.Errorf("persist block %d: insert ring %s[%d][%d]: %w", p.Block.Height, rec.Tx.Hash, in.Idx, ringIdx, err)
				}
			}
		}
	}

	if len(includedHashes) > 0 {
		_, err = tx.Exec(ctx, `DELETE FROM mempool_txs WHERE tx_hash = ANY($1)`, includedHashes)
		if err != nil {
			return fmt.Errorf("persist block %d: evict mempool: %w", p.Block.Height, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chain_tips (height, hash, prev_hash)
		VALUES ($1,$2,$3)
		ON CONFLICT (height) DO UPDATE SET hash = EXCLUDED.hash, prev_hash = EXCLUDED.prev_hash
	`, p.Block.Height, p.Block.Hash, p.Block.PrevHash)
	if err != nil {
		return fmt.Errorf("persist block %d: upsert chain tip: %w", p.Block.Height, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("persist block %d: commit: %w", p.Block.Height, err)
	}

	util.RecordStageProcessed("persister")
	util.BlocksIngested.Inc()
	return nil
}

// UpsertSoftFacts writes (or overwrites) the per-block aggregates row,
// either from the persister's inline analytics pass or from the offline
// backfill.
func (s *Store) UpsertSoftFacts(ctx context.Context, sf SoftFacts) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO soft_facts (block_height, total_fee, avg_ring_size, median_fee_rate, bp_total_bytes, clsag_count, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (block_height) DO UPDATE SET
			total_fee = EXCLUDED.total_fee,
			avg_ring_size = EXCLUDED.avg_ring_size,
			median_fee_rate = EXCLUDED.median_fee_rate,
			bp_total_bytes = EXCLUDED.bp_total_bytes,
			clsag_count = EXCLUDED.clsag_count,
			computed_at = NOW()
	`, sf.BlockHeight, sf.TotalFee, sf.AvgRingSize, sf.MedianFeeRate, sf.BPTotalBytes, sf.CLSAGCount)
	if err != nil {
		return fmt.Errorf("upsert soft facts for %d: %w", sf.BlockHeight, err)
	}
	return nil
}

// MarkAnalyticsPending sets (or clears) the analytics_pending flag on a
// block. The persister sets it when analytics is disabled inline; the
// backfill clears it once it has computed soft facts for the block.
func (s *Store) MarkAnalyticsPending(ctx context.Context, height int64, pending bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE blocks SET analytics_pending = $2, updated_at = NOW() WHERE height = $1`, height, pending)
	if err != nil {
		return fmt.Errorf("mark analytics_pending=%v for %d: %w", pending, height, err)
	}
	return nil
}

// RefreshConfirmationWindow recomputes confirmations and is_final for every
// block in [max(0, tip-(finalityWindow+16)), tip], and forces is_final=true
// for any block at or below finalized. The +16 slack beyond the finality
// window bounds how far back each tick needs to rewrite.
func (s *Store) RefreshConfirmationWindow(ctx context.Context, tip, finalized, finalityWindow int64) error {
	lower := tip - (finalityWindow + 16)
	if lower < 0 {
		lower = 0
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE blocks
		SET confirmations = GREATEST(0, $2 - height + 1),
		    is_final = (height <= $3),
		    updated_at = NOW()
		WHERE height BETWEEN $1 AND $2
	`, lower, tip, finalized)
	if err != nil {
		return fmt.Errorf("refresh confirmation window [%d,%d]: %w", lower, tip, err)
	}
	return nil
}

// TxHashesAtHeight returns the hashes of every transaction recorded at
// height. The reorg healer does not use it: RollbackToHeight re-inserts
// rolled-back transactions into the mempool itself.
func (s *Store) TxHashesAtHeight(ctx context.Context, height int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT tx_hash FROM txs WHERE block_height = $1`, height)
	if err != nil {
		return nil, fmt.Errorf("tx hashes at %d: %w", height, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("tx hashes at %d: scan: %w", height, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// RollbackToHeight implements the reorg healer's store-side rollback: for
// every height at or above forkHeight, every recorded tx is re-inserted into
// the mempool, then chain_tips and blocks rows at or above forkHeight are
// deleted (blocks' FK cascade removes the child tx/input/output/ring/
// soft_fact rows). Returns the number of transactions re-queued into the
// mempool.
func (s *Store) RollbackToHeight(ctx context.Context, forkHeight int64) (reinserted int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("rollback to %d: begin: %w", forkHeight, err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT tx_hash FROM txs WHERE block_height >= $1`, forkHeight)
	if err != nil {
		return 0, fmt.Errorf("rollback to %d: list txs: %w", forkHeight, err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return 0, fmt.Errorf("rollback to %d: scan tx: %w", forkHeight, err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rollback to %d: rows: %w", forkHeight, err)
	}

	for _, h := range hashes {
		_, err = tx.Exec(ctx, `
			INSERT INTO mempool_txs (tx_hash, first_seen, last_seen)
			VALUES ($1, NOW(), NOW())
			ON CONFLICT (tx_hash) DO UPDATE SET last_seen = NOW()
		`, h)
		if err != nil {
			return 0, fmt.Errorf("rollback to %d: requeue mempool %s: %w", forkHeight, h, err)
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM chain_tips WHERE height >= $1`, forkHeight); err != nil {
		return 0, fmt.Errorf("rollback to %d: delete chain tips: %w", forkHeight, err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM blocks WHERE height >= $1`, forkHeight); err != nil {
		return 0, fmt.Errorf("rollback to %d: delete blocks: %w", forkHeight, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("rollback to %d: commit: %w", forkHeight, err)
	}
	return len(hashes), nil
}

// UpsertMempoolHashes upserts every hash in one transaction, bumping
// last_seen for hashes already present. It never deletes rows: staleness is
// tolerated, eviction happens only via PersistBlock's inclusion check or
// RollbackToHeight's requeue.
func (s *Store) UpsertMempoolHashes(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("upsert mempool hashes: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, h := range hashes {
		_, err = tx.Exec(ctx, `
			INSERT INTO mempool_txs (tx_hash, first_seen, last_seen)
			VALUES ($1, NOW(), NOW())
			ON CONFLICT (tx_hash) DO UPDATE SET last_seen = NOW()
		`, h)
		if err != nil {
			return fmt.Errorf("upsert mempool hash %s: %w", h, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("upsert mempool hashes: commit: %w", err)
	}
	return nil
}

// AnalyticsPendingHeights returns up to batch block heights that either have
// analytics_pending=TRUE or are missing a soft_facts row entirely, ordered
// ascending, for the offline backfill to process.
func (s *Store) AnalyticsPendingHeights(ctx context.Context, batch int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.height
		FROM blocks b
		LEFT JOIN soft_facts sf ON sf.block_height = b.height
		WHERE b.analytics_pending = TRUE OR sf.block_height IS NULL
		ORDER BY b.height ASC
		LIMIT $1
	`, batch)
	if err != nil {
		return nil, fmt.Errorf("analytics pending heights: %w", err)
	}
	defer rows.Close()

	var heights []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("analytics pending heights: scan: %w", err)
		}
		heights = append(heights, h)
	}
	return heights, rows.Err()
}

// BlockTxsForAnalytics returns every transaction recorded at height along
// with each transaction's per-input ring sizes, the minimum the backfill
// needs to recompute soft facts purely from already-stored data.
func (s *Store) BlockTxsForAnalytics(ctx context.Context, height int64) ([]Transaction, map[string][]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, fee, size, bp_plus, bp_bytes, has_clsag, rct_type
		FROM txs WHERE block_height = $1
	`, height)
	if err != nil {
		return nil, nil, fmt.Errorf("block txs for analytics %d: %w", height, err)
	}
	var txs []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.Hash, &t.Fee, &t.Size, &t.BPPlus, &t.BPBytes, &t.HasCLSAG, &t.RctType); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("block txs for analytics %d: scan: %w", height, err)
		}
		txs = append(txs, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("block txs for analytics %d: rows: %w", height, err)
	}

	ringSizes := make(map[string][]int, len(txs))
	inputRows, err := s.pool.Query(ctx, `
		SELECT ti.tx_hash, ti.ring_size
		FROM tx_inputs ti
		JOIN txs t ON t.tx_hash = ti.tx_hash
		WHERE t.block_height = $1
	`, height)
	if err != nil {
		return nil, nil, fmt.Errorf("block inputs for analytics %d: %w", height, err)
	}
	defer inputRows.Close()
	for inputRows.Next() {
		var hash string
		var size int
		if err := inputRows.Scan(&hash, &size); err != nil {
			return nil, nil, fmt.Errorf("block inputs for analytics %d: scan: %w", height, err)
		}
		ringSizes[hash] = append(ringSizes[hash], size)
	}
	return txs, ringSizes, inputRows.Err()
}

// ListBlocks returns up to limit blocks strictly below beforeHeight (or the
// most recent limit blocks if beforeHeight is nil), newest first, for the
// query API.
func (s *Store) ListBlocks(ctx context.Context, limit int, beforeHeight *int64) ([]Block, error) {
	var rows pgx.Rows
	var err error
	if beforeHeight != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT height, hash, prev_hash, "timestamp", size, major_version, minor_version, nonce,
				tx_count, reward, confirmations, is_final, analytics_pending
			FROM blocks WHERE height < $1 ORDER BY height DESC LIMIT $2
		`, *beforeHeight, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT height, hash, prev_hash, "timestamp", size, major_version, minor_version, nonce,
				tx_count, reward, confirmations, is_final, analytics_pending
			FROM blocks ORDER BY height DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.Height, &b.Hash, &b.PrevHash, &b.Timestamp, &b.Size, &b.MajorVersion,
			&b.MinorVersion, &b.Nonce, &b.TxCount, &b.Reward, &b.Confirmations, &b.IsFinal, &b.AnalyticsPending); err != nil {
			return nil, fmt.Errorf("list blocks: scan: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// GetBlockByHeight returns a single block, or ErrNotFound.
func (s *Store) GetBlockByHeight(ctx context.Context, height int64) (*Block, error) {
	var b Block
	err := s.pool.QueryRow(ctx, `
		SELECT height, hash, prev_hash, "timestamp", size, major_version, minor_version, nonce,
			tx_count, reward, confirmations, is_final, analytics_pending
		FROM blocks WHERE height = $1
	`, height).Scan(&b.Height, &b.Hash, &b.PrevHash, &b.Timestamp, &b.Size, &b.MajorVersion,
		&b.MinorVersion, &b.Nonce, &b.TxCount, &b.Reward, &b.Confirmations, &b.IsFinal, &b.AnalyticsPending)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", height, err)
	}
	return &b, nil
}

// GetTransaction returns a single transaction by hash, or ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	var t Transaction
	err := s.pool.QueryRow(ctx, `
		SELECT tx_hash, block_height, block_timestamp, in_mempool, fee, size, version, unlock_time,
			tx_extra, rct_type, proof_type, bp_plus, bp_bytes, has_clsag, vin_count, vout_count
		FROM txs WHERE tx_hash = $1
	`, hash).Scan(&t.Hash, &t.BlockHeight, &t.BlockTimestamp, &t.InMempool, &t.Fee, &t.Size, &t.Version,
		&t.UnlockTime, &t.TxExtra, &t.RctType, &t.ProofType, &t.BPPlus, &t.BPBytes, &t.HasCLSAG, &t.VinCount, &t.VoutCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}
	return &t, nil
}

// ListMempool returns up to limit mempool entries, most recently seen first.
func (s *Store) ListMempool(ctx context.Context, limit int) ([]MempoolEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, first_seen, last_seen, fee_rate, COALESCE(relayed_by, '')
		FROM mempool_txs ORDER BY last_seen DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list mempool: %w", err)
	}
	defer rows.Close()

	var entries []MempoolEntry
	for rows.Next() {
		var e MempoolEntry
		if err := rows.Scan(&e.TxHash, &e.FirstSeen, &e.LastSeen, &e.FeeRate, &e.RelayedBy); err != nil {
			return nil, fmt.Errorf("list mempool: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetChainStats reports the ingested chain's current shape for the query
// API's /stats endpoint.
func (s *Store) GetChainStats(ctx context.Context) (*ChainStats, error) {
	var stats ChainStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT MAX(height) FROM blocks), -1),
			(SELECT COUNT(*) FROM blocks),
			(SELECT COUNT(*) FROM txs),
			(SELECT COUNT(*) FROM mempool_txs),
			COALESCE((SELECT last_height FROM ingestor_checkpoint WHERE id = 1), 0),
			COALESCE((SELECT finalized_height FROM ingestor_checkpoint WHERE id = 1), 0)
	`).Scan(&stats.LatestHeight, &stats.TotalBlocks, &stats.TotalTransactions, &stats.MempoolSize,
		&stats.LastIngested, &stats.LastFinalized)
	if err != nil {
		return nil, fmt.Errorf("get chain stats: %w", err)
	}
	return &stats, nil
}

// CheckHealth pings the pool and reports the result for the query API's
// health endpoint.
func (s *Store) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", Database: "disconnected", Errors: []string{err.Error()}}, nil
	}
	return &HealthStatus{Status: "healthy", Database: "connected"}, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
