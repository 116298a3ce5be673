//go:build integration

package test

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hieutt50/xmr-ingestor/internal/store"
)

// GenerateTestBlocks generates a chain of count deterministic PersistBlockParams
// starting at startHeight, each carrying txPerBlock RingCT transactions with
// one input and two outputs. Heights ascend and each block's PrevHash links
// to the previous block's Hash, so the chain is internally consistent.
func GenerateTestBlocks(t *testing.T, startHeight int64, count int, txPerBlock int) []store.PersistBlockParams {
	t.Helper()

	blocks := make([]store.PersistBlockParams, count)

	var prevHash string
	if startHeight == 0 {
		prevHash = deterministicHash(0)
	} else {
		prevHash = deterministicHash(uint64(startHeight - 1))
	}

	for i := 0; i < count; i++ {
		height := startHeight + int64(i)
		hash := deterministicHash(uint64(height))

		txs := make([]store.TxRecord, txPerBlock)
		for j := 0; j < txPerBlock; j++ {
			txs[j] = generateTestTx(uint64(height), j)
		}

		blocks[i] = store.PersistBlockParams{
			Block: store.Block{
				Height:       height,
				Hash:         hash,
				PrevHash:     prevHash,
				Timestamp:    time.Now().Unix() - int64(count-i)*120,
				Size:         1500 + height*10,
				MajorVersion: 16,
				MinorVersion: 16,
				Nonce:        int64(height),
				TxCount:      txPerBlock,
				Reward:       "600000000000",
			},
			Txs:       txs,
			Tip:       height,
			Finalized: 0,
		}

		prevHash = hash
	}

	return blocks
}

// generateTestTx builds one deterministic RingCT transaction record with a
// single input (ring size 11) and two outputs.
func generateTestTx(blockHeight uint64, txIndex int) store.TxRecord {
	seed := blockHeight*1000 + uint64(txIndex)
	txHash := deterministicHash(seed)

	extra, _ := json.Marshal(map[string]string{"tx_pub_key": deterministicHash(seed + 1)})

	return store.TxRecord{
		Tx: store.Transaction{
			Hash:       txHash,
			Fee:        "30000000",
			Size:       1500,
			Version:    2,
			UnlockTime: 0,
			TxExtra:    extra,
			RctType:    6,
			ProofType:  "bulletproof_plus",
			BPPlus:     true,
			BPBytes:    1200,
			VinCount:   1,
			VoutCount:  2,
		},
		Inputs: []store.TxInput{
			{
				Input: store.Input{
					TxHash:   txHash,
					Idx:      0,
					KeyImage: deterministicHash(seed + 2),
					RingSize: 11,
				},
			},
		},
		Outputs: []store.Output{
			{TxHash: txHash, IdxInTx: 0, Commitment: deterministicHash(seed + 3), StealthPublicKey: deterministicHash(seed + 4)},
			{TxHash: txHash, IdxInTx: 1, Commitment: deterministicHash(seed + 5), StealthPublicKey: deterministicHash(seed + 6)},
		},
	}
}

// deterministicHash returns a 64-character hex string derived from seed, in
// the shape of a Monero block or transaction hash.
func deterministicHash(seed uint64) string {
	raw := make([]byte, 32)
	for i := 0; i < 32; i++ {
		raw[i] = byte((seed >> (uint(i%8) * 8)) & 0xFF)
		raw[i] ^= byte(i * 7)
	}
	return hex.EncodeToString(raw)
}

// CreateOrphanedChain builds a fork of depth blocks diverging from forkPoint,
// for reorg healer tests: same heights as the canonical chain but different
// hashes (and thus a different prev_hash chain).
func CreateOrphanedChain(t *testing.T, forkPoint int64, depth int) []store.PersistBlockParams {
	t.Helper()

	blocks := make([]store.PersistBlockParams, depth)
	prevHash := deterministicHash(uint64(forkPoint))

	for i := 0; i < depth; i++ {
		height := forkPoint + int64(i) + 1
		hash := deterministicHash(uint64(height)*7919 + 1) // distinct multiplier from the canonical chain

		blocks[i] = store.PersistBlockParams{
			Block: store.Block{
				Height:       height,
				Hash:         hash,
				PrevHash:     prevHash,
				Timestamp:    time.Now().Unix() - int64(depth-i)*120,
				Size:         1500,
				MajorVersion: 16,
				MinorVersion: 16,
				Nonce:        int64(height) + 1,
				TxCount:      0,
				Reward:       "600000000000",
			},
			Tip:       height,
			Finalized: 0,
		}
		prevHash = hash
	}

	return blocks
}

// RandomBytes generates random bytes for scenarios where determinism isn't
// required.
func RandomBytes(t *testing.T, length int) []byte {
	t.Helper()

	b := make([]byte, length)
	_, err := rand.Read(b)
	require.NoError(t, err, "failed to generate random bytes")
	return b
}
