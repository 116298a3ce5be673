// Package pipeline wires the scheduler, block worker, transaction worker and
// persister stages together into the ingestion pipeline: bounded channels
// carry work downstream, each stage ranges over its input channel with a
// worker pool sized per stage, and the persister is the single point where
// height ordering is no longer required.
package pipeline

import "github.com/hieutt50/xmr-ingestor/internal/rpc"

// SchedMsg is the scheduler's sole output: one unit of height work, plus the
// tip/finalized bounds observed at the moment it was scheduled.
type SchedMsg struct {
	Height    uint64
	Tip       uint64
	Finalized uint64
}

// BlockMsg is the block worker's output: a resolved block header plus its
// ordered member transaction hashes and miner transaction, still carrying
// the tip/finalized bounds the block worker was handed.
type BlockMsg struct {
	Header      rpc.BlockHeader
	MinerTxHash string
	MinerTxJSON string
	TxHashes    []string
	Tip         uint64
	Finalized   uint64
}

// TxJSON is one resolved transaction in the block's tx_hashes order: its
// as_json body for parsing, plus as_hex so the persister can derive the
// transaction's exact on-wire size without re-serializing anything.
type TxJSON struct {
	Hash  string
	JSON  string
	AsHex string
}

// TxMsg is the transaction worker's output: every member transaction of one
// block, resolved to its JSON body, ready for the persister to parse.
type TxMsg struct {
	Header      rpc.BlockHeader
	MinerTxHash string
	MinerTxJSON string
	Txs         []TxJSON
	Tip         uint64
	Finalized   uint64
}
