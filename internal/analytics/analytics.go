// Package analytics computes the per-block soft-facts aggregates: total
// fee, average ring size, median fee rate, total bulletproof bytes and
// CLSAG count. The same Aggregate function backs both the persister's
// inline analytics path and the offline analytics-backfill command, so the
// two paths can never silently diverge.
package analytics

import (
	"math/big"
	"sort"

	"github.com/hieutt50/xmr-ingestor/internal/store"
)

// TxFacts is the minimal per-transaction shape Aggregate needs, independent
// of whether it was just parsed inline at ingest time or read back from the
// store by the backfill.
type TxFacts struct {
	Fee       string // decimal string, as stored
	Size      int64  // tx size in bytes, used to derive a fee rate
	RingSizes []int
	BPBytes   int64
	HasCLSAG  bool
}

// Aggregate computes the soft-facts row for one block from its member
// transactions' facts. An empty txs slice yields an all-zero row (valid for
// a block whose only content is the miner transaction, which carries no
// fee and is excluded from ring/fee aggregates).
func Aggregate(height int64, txs []TxFacts) store.SoftFacts {
	sf := store.SoftFacts{BlockHeight: height, TotalFee: "0"}
	if len(txs) == 0 {
		return sf
	}

	totalFee := new(big.Int)
	var totalRingSize, ringCount int
	var bpBytes int64
	var clsagCount int
	feeRates := make([]float64, 0, len(txs))

	for _, tx := range txs {
		fee, ok := new(big.Int).SetString(tx.Fee, 10)
		if !ok {
			fee = big.NewInt(0)
		}
		totalFee.Add(totalFee, fee)

		for _, rs := range tx.RingSizes {
			totalRingSize += rs
			ringCount++
		}

		bpBytes += tx.BPBytes
		if tx.HasCLSAG {
			clsagCount++
		}

		if tx.Size > 0 {
			feeFloat := new(big.Float).SetInt(fee)
			rate, _ := new(big.Float).Quo(feeFloat, big.NewFloat(float64(tx.Size))).Float64()
			feeRates = append(feeRates, rate)
		}
	}

	sf.TotalFee = totalFee.String()
	sf.BPTotalBytes = bpBytes
	sf.CLSAGCount = clsagCount

	if ringCount > 0 {
		sf.AvgRingSize = float64(totalRingSize) / float64(ringCount)
	}

	sf.MedianFeeRate = median(feeRates)

	return sf
}

// median returns the median of a slice of float64, 0 for an empty slice.
// It does not mutate the caller's slice.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// FromStored rebuilds TxFacts for the backfill path, which reads already-
// persisted transactions and their ring sizes back from the store rather
// than re-parsing daemon JSON.
func FromStored(txs []store.Transaction, ringSizesByHash map[string][]int) []TxFacts {
	facts := make([]TxFacts, 0, len(txs))
	for _, tx := range txs {
		facts = append(facts, TxFacts{
			Fee:       tx.Fee,
			Size:      tx.Size,
			RingSizes: ringSizesByHash[tx.Hash],
			BPBytes:   tx.BPBytes,
			HasCLSAG:  tx.HasCLSAG,
		})
	}
	return facts
}
