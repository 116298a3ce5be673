// Package checkpoint tracks the ingestor's resume position: the singleton
// row the scheduler reads at startup and the persister writes after every
// committed block.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// singletonID is the fixed row identifier for the checkpoint table; there is
// exactly one checkpoint for the whole ingestor.
const singletonID = 1

// Store reads and writes the ingestor_checkpoint singleton row.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a checkpoint Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get returns the current (lastIngestedHeight, lastFinalizedHeight). If no
// checkpoint row exists yet, it returns (0, 0) per spec.
func (s *Store) Get(ctx context.Context) (lastIngested, lastFinalized uint64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT last_height, finalized_height
		FROM ingestor_checkpoint
		WHERE id = $1
	`, singletonID).Scan(&lastIngested, &lastFinalized)

	if err == pgx.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	return lastIngested, lastFinalized, nil
}

// Set upserts the checkpoint row to (last, finalized).
func (s *Store) Set(ctx context.Context, last, finalized uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestor_checkpoint (id, last_height, finalized_height, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_height = EXCLUDED.last_height,
		    finalized_height = EXCLUDED.finalized_height,
		    updated_at = NOW()
	`, singletonID, last, finalized)
	if err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}

// SetTx upserts the checkpoint row using an existing transaction, so it can
// be folded into the persister's single per-block SQL transaction.
func (s *Store) SetTx(ctx context.Context, tx pgx.Tx, last, finalized uint64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ingestor_checkpoint (id, last_height, finalized_height, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_height = EXCLUDED.last_height,
		    finalized_height = EXCLUDED.finalized_height,
		    updated_at = NOW()
	`, singletonID, last, finalized)
	if err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}
