package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BlockHeader mirrors the daemon's block_header_response shape returned by
// get_block_header_by_height, get_block_headers_range and embedded in
// get_block responses.
type BlockHeader struct {
	Height       uint64 `json:"height"`
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
	Timestamp    int64  `json:"timestamp"`
	Size         uint64 `json:"block_size"`
	MajorVersion uint32 `json:"major_version"`
	MinorVersion uint32 `json:"minor_version"`
	Nonce        uint32 `json:"nonce"`
	NumTxes      int    `json:"num_txes"`
	Reward       uint64 `json:"reward"`
	Depth        uint64 `json:"depth"`
	OrphanStatus bool   `json:"orphan_status"`
}

// Block is the daemon's get_block response: a header plus the raw hex-encoded
// block blob and a JSON blob describing the miner tx and member tx hashes.
type Block struct {
	Header      BlockHeader `json:"block_header"`
	Blob        string      `json:"blob"`
	JSON        string      `json:"json"`
	MinerTxHash string      `json:"miner_tx_hash"`
	TxHashes    []string    `json:"tx_hashes"`
}

// blockJSON is the structure embedded (as a JSON string) in Block.JSON,
// describing the miner transaction and the block's member transaction hashes.
type blockJSON struct {
	MinerTx  RawTx    `json:"miner_tx"`
	TxHashes []string `json:"tx_hashes"`
}

// RawTx is the daemon's on-wire transaction shape, shared between the
// embedded miner_tx and the decoded transactions returned by Transactions.
type RawTx struct {
	Version        uint64            `json:"version"`
	UnlockTime     uint64            `json:"unlock_time"`
	Vin            []json.RawMessage `json:"vin"`
	Vout           []json.RawMessage `json:"vout"`
	Extra          TxExtraBytes      `json:"extra"`
	RctSignatures  json.RawMessage   `json:"rct_signatures"`
	RctsigPrunable json.RawMessage   `json:"rctsig_prunable"`
}

// TxExtraBytes decodes a transaction's tx_extra field, which the daemon's
// as_json representation encodes as a JSON array of byte values (e.g.
// [1,2,34,56]) rather than the base64 string encoding/json's default
// []byte handling expects. A base64 string is accepted too, defensively,
// since not every daemon/RPC surface agrees on the wire shape.
type TxExtraBytes []byte

// UnmarshalJSON implements json.Unmarshaler.
func (b *TxExtraBytes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var nums []int
		if err := json.Unmarshal(data, &nums); err != nil {
			return fmt.Errorf("tx_extra: decode byte array: %w", err)
		}
		out := make([]byte, len(nums))
		for i, n := range nums {
			out[i] = byte(n)
		}
		*b = out
		return nil
	}

	var raw []byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tx_extra: decode: %w", err)
	}
	*b = raw
	return nil
}

// ParseBlockJSON decodes a Block's embedded JSON blob into the miner
// transaction's raw JSON and the block's member transaction hashes. The
// miner tx is re-marshaled to its own JSON string since callers (the block
// worker) only need to carry it opaquely downstream, not parse it here.
func ParseBlockJSON(raw string) (minerTxJSON string, txHashes []string, err error) {
	var parsed blockJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", nil, fmt.Errorf("parse block json: %w", err)
	}
	minerTxBytes, err := json.Marshal(parsed.MinerTx)
	if err != nil {
		return "", nil, fmt.Errorf("parse block json: remarshal miner tx: %w", err)
	}
	return string(minerTxBytes), parsed.TxHashes, nil
}

// TxEntry is one element of the get_transactions "txs" array.
type TxEntry struct {
	TxHash          string `json:"tx_hash"`
	AsHex           string `json:"as_hex"`
	PrunedAsHex     string `json:"pruned_as_hex"`
	AsJSON          string `json:"as_json"`
	InPool          bool   `json:"in_pool"`
	BlockHeight     uint64 `json:"block_height"`
	BlockTimestamp  int64  `json:"block_timestamp"`
	DoubleSpendSeen bool   `json:"double_spend_seen"`
}

// TransactionsResponse is the get_transactions REST response.
type TransactionsResponse struct {
	Txs      []TxEntry `json:"txs"`
	TxsAsHex []string  `json:"txs_as_hex"`
	MissedTx []string  `json:"missed_tx"`
	Status   string    `json:"status"`
}

// Capabilities records the outcome of the one-time capability probe
// performed against the connected daemon.
type Capabilities struct {
	RangedHeaders       bool
	BinaryBlockByHeight bool
}
