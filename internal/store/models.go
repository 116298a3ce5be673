package store

import (
	"encoding/json"
	"time"
)

// Block represents a confirmed position at a height in the ingested chain.
type Block struct {
	Height            int64     `json:"height"`
	Hash              string    `json:"hash"`
	PrevHash          string    `json:"prev_hash"`
	Timestamp         int64     `json:"timestamp"`
	Size              int64     `json:"size"`
	MajorVersion      int       `json:"major_version"`
	MinorVersion      int       `json:"minor_version"`
	Nonce             int64     `json:"nonce"`
	TxCount           int       `json:"tx_count"`
	Reward            string    `json:"reward"` // decimal string to avoid precision loss
	Confirmations     int64     `json:"confirmations"`
	IsFinal           bool      `json:"is_final"`
	AnalyticsPending  bool      `json:"analytics_pending"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// ChainTip is the observed canonical hash at a height, the shape of a
// chain_tips row. The reorg healer finds the fork point from blocks.hash
// (StoredHash), not from this table.
type ChainTip struct {
	Height   int64  `json:"height"`
	Hash     string `json:"hash"`
	PrevHash string `json:"prev_hash"`
}

// Transaction represents a confirmed or mempool transaction.
type Transaction struct {
	Hash           string          `json:"hash"`
	BlockHeight    *int64          `json:"block_height,omitempty"`
	BlockTimestamp *int64          `json:"block_timestamp,omitempty"`
	InMempool      bool            `json:"in_mempool"`
	Fee            string          `json:"fee"`
	Size           int64           `json:"size"`
	Version        int             `json:"version"`
	UnlockTime     int64           `json:"unlock_time"`
	TxExtra        json.RawMessage `json:"tx_extra,omitempty"`
	RctType        int             `json:"rct_type"`
	ProofType      string          `json:"proof_type"`
	BPPlus         bool            `json:"bp_plus"`
	BPBytes        int64           `json:"bp_bytes"`
	HasCLSAG       bool            `json:"has_clsag"`
	VinCount       int             `json:"vin_count"`
	VoutCount      int             `json:"vout_count"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
}

// Input is a single ring input of a transaction.
type Input struct {
	TxHash    string `json:"tx_hash"`
	Idx       int    `json:"idx"`
	KeyImage  string `json:"key_image"`
	RingSize  int    `json:"ring_size"`
	PseudoOut string `json:"pseudo_out,omitempty"`
}

// Output is a single transaction output.
type Output struct {
	ID               int64  `json:"id,omitempty"`
	TxHash           string `json:"tx_hash"`
	IdxInTx          int    `json:"idx_in_tx"`
	Commitment       string `json:"commitment,omitempty"`
	Amount           string `json:"amount,omitempty"`
	StealthPublicKey string `json:"stealth_public_key"`
	GlobalIndex      *int64 `json:"global_index,omitempty"`
}

// Ring is a single input's reference to a prior output.
type Ring struct {
	TxHash             string `json:"tx_hash"`
	InputIdx           int    `json:"input_idx"`
	RingIndex          int    `json:"ring_index"`
	ReferencedOutputID int64  `json:"referenced_output_id"`
}

// MempoolEntry is a transaction currently sitting in the daemon's mempool.
type MempoolEntry struct {
	TxHash    string    `json:"tx_hash"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	FeeRate   float64   `json:"fee_rate"`
	RelayedBy string    `json:"relayed_by,omitempty"`
}

// SoftFacts are the per-block derived aggregates computed by the analytics
// pass, either inline at ingest time or by the offline backfill.
type SoftFacts struct {
	BlockHeight   int64     `json:"block_height"`
	TotalFee      string    `json:"total_fee"`
	AvgRingSize   float64   `json:"avg_ring_size"`
	MedianFeeRate float64   `json:"median_fee_rate"`
	BPTotalBytes  int64     `json:"bp_total_bytes"`
	CLSAGCount    int       `json:"clsag_count"`
	ComputedAt    time.Time `json:"computed_at,omitempty"`
}

// ChainStats summarizes the current ingestion state for the query API.
type ChainStats struct {
	LatestHeight      int64 `json:"latest_height"`
	TotalBlocks       int64 `json:"total_blocks"`
	TotalTransactions int64 `json:"total_transactions"`
	MempoolSize       int64 `json:"mempool_size"`
	LastIngested      int64 `json:"last_ingested_height"`
	LastFinalized     int64 `json:"last_finalized_height"`
}

// HealthStatus reports the store's connectivity for the query API's health
// endpoint.
type HealthStatus struct {
	Status   string `json:"status"` // "healthy" or "unhealthy"
	Database string `json:"database"`
	Errors   []string `json:"errors,omitempty"`
}
