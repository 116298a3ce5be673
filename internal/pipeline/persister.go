package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hieutt50/xmr-ingestor/internal/analytics"
	"github.com/hieutt50/xmr-ingestor/internal/codec"
	"github.com/hieutt50/xmr-ingestor/internal/rpc"
	"github.com/hieutt50/xmr-ingestor/internal/store"
	"github.com/hieutt50/xmr-ingestor/internal/util"
)

// PersistingStore is the store surface the persister needs.
type PersistingStore interface {
	PersistBlock(ctx context.Context, p store.PersistBlockParams) error
	UpsertSoftFacts(ctx context.Context, sf store.SoftFacts) error
	MarkAnalyticsPending(ctx context.Context, height int64, pending bool) error
	RefreshConfirmationWindow(ctx context.Context, tip, finalized, finalityWindow int64) error
}

// CheckpointStore is the checkpoint surface the persister needs.
type CheckpointStore interface {
	Set(ctx context.Context, last, finalized uint64) error
}

// Persister is the pipeline's single serialization point: it consumes
// TxMsg values in whatever order they arrive (height ordering is not
// required here) and commits each block in its own SQL transaction.
//
// Because blocks can finish out of height order, the checkpoint must not
// simply track "the height of the block just persisted" — that would let a
// late-finishing lower height regress checkpoint.last_ingested_height after
// a higher one already advanced it. highWaterMark tracks the tallest height
// persisted so far and the checkpoint is only ever advanced to it, never
// back. Run is the sole consumer of the tx stage (one goroutine, one block
// at a time), so highWaterMark needs no locking.
type Persister struct {
	store           PersistingStore
	checkpoint      CheckpointStore
	finalityWindow  int64
	analyticsEnabled bool
	highWaterMark   int64
}

// NewPersister builds a Persister. startHeight seeds the high-water mark
// from the checkpoint already on disk, so a restart never regresses it.
func NewPersister(s PersistingStore, cp CheckpointStore, finalityWindow int64, analyticsEnabled bool, startHeight uint64) *Persister {
	return &Persister{
		store: s, checkpoint: cp, finalityWindow: finalityWindow,
		analyticsEnabled: analyticsEnabled, highWaterMark: int64(startHeight),
	}
}

// Run consumes in until it is closed or ctx is done, persisting one block
// per TxMsg.
func (p *Persister) Run(ctx context.Context, in <-chan TxMsg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := p.persist(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (p *Persister) persist(ctx context.Context, msg TxMsg) error {
	height := int64(msg.Header.Height)

	records := make([]store.TxRecord, 0, len(msg.Txs))
	facts := make([]analytics.TxFacts, 0, len(msg.Txs))

	for _, tx := range msg.Txs {
		rec, fact, err := parseTransaction(height, msg.Header.Timestamp, tx, p.analyticsEnabled)
		if err != nil {
			return fmt.Errorf("persister: parse tx %s at height %d: %w", tx.Hash, height, err)
		}
		records = append(records, rec)
		facts = append(facts, fact)
	}

	params := store.PersistBlockParams{
		Block: store.Block{
			Height:           height,
			Hash:             msg.Header.Hash,
			PrevHash:         msg.Header.PrevHash,
			Timestamp:        msg.Header.Timestamp,
			Size:             int64(msg.Header.Size),
			MajorVersion:     int(msg.Header.MajorVersion),
			MinorVersion:     int(msg.Header.MinorVersion),
			Nonce:            int64(msg.Header.Nonce),
			TxCount:          len(records),
			Reward:           strconv.FormatUint(msg.Header.Reward, 10),
			AnalyticsPending: !p.analyticsEnabled,
		},
		Txs:       records,
		Tip:       int64(msg.Tip),
		Finalized: int64(msg.Finalized),
	}

	if err := p.store.PersistBlock(ctx, params); err != nil {
		return fmt.Errorf("persister: persist block %d: %w", height, err)
	}

	if p.analyticsEnabled {
		sf := analytics.Aggregate(height, facts)
		if err := p.store.UpsertSoftFacts(ctx, sf); err != nil {
			return fmt.Errorf("persister: upsert soft facts at %d: %w", height, err)
		}
	} else {
		if err := p.store.MarkAnalyticsPending(ctx, height, true); err != nil {
			util.Warn("persister: mark analytics pending failed", "height", height, "error", err.Error())
		}
	}

	// The checkpoint row is updated in its own statement rather than folded
	// into PersistBlock's transaction: every insert PersistBlock performs is
	// idempotent (ON CONFLICT DO NOTHING/upsert), so replaying a block after
	// a crash between the two writes is always safe.
	//
	// last_ingested_height must be monotonically non-decreasing (reorg resets
	// go through store.RollbackToHeight / the healer, not through here), so
	// advance the checkpoint to the tallest height seen, not to this message's
	// height — a lower height finishing after a higher one must not regress it.
	if height > p.highWaterMark {
		p.highWaterMark = height
	}
	if err := p.checkpoint.Set(ctx, uint64(p.highWaterMark), msg.Finalized); err != nil {
		return fmt.Errorf("persister: set checkpoint at %d: %w", p.highWaterMark, err)
	}

	if err := p.store.RefreshConfirmationWindow(ctx, int64(msg.Tip), int64(msg.Finalized), p.finalityWindow); err != nil {
		return fmt.Errorf("persister: refresh confirmation window at tip %d: %w", msg.Tip, err)
	}

	return nil
}

// rawVout is the subset of a vout[] element the persister needs: the
// stealth public key, in either its pre-view-tag or tagged_key form.
type rawVout struct {
	Amount uint64 `json:"amount"`
	Target struct {
		Key       string `json:"key"`
		TaggedKey struct {
			Key     string `json:"key"`
			ViewTag string `json:"view_tag"`
		} `json:"tagged_key"`
	} `json:"target"`
}

func (v rawVout) stealthKey() string {
	if v.Target.TaggedKey.Key != "" {
		return v.Target.TaggedKey.Key
	}
	return v.Target.Key
}

// rawRctSignaturesBase is the subset of a transaction's rct_signatures
// object the persister reads directly: the RCT type, the plaintext fee, the
// per-output commitments, and (for RCTTypeSimple and later) the per-input
// pseudo-output commitments.
type rawRctSignaturesBase struct {
	Type int `json:"type"`
	// TxnFee arrives as either a JSON number or a numeric string depending on
	// the daemon's JSON encoder; json.Number accepts both.
	TxnFee     json.Number `json:"txnFee"`
	OutPk      []string    `json:"outPk"`
	PseudoOuts []string    `json:"pseudoOuts"`
}

// parseTransaction decodes one daemon-returned transaction into the store
// records PersistBlock needs and the TxFacts the analytics pass needs.
func parseTransaction(height, blockTimestamp int64, tx TxJSON, analyticsEnabled bool) (store.TxRecord, analytics.TxFacts, error) {
	var raw rpc.RawTx
	if err := json.Unmarshal([]byte(tx.JSON), &raw); err != nil {
		return store.TxRecord{}, analytics.TxFacts{}, fmt.Errorf("unmarshal tx json: %w", err)
	}

	size := int64(len(tx.AsHex) / 2)
	if size == 0 {
		size = int64(len(tx.JSON))
	}

	vins := make([]codec.VinEntry, 0, len(raw.Vin))
	for _, v := range raw.Vin {
		var entry codec.VinEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return store.TxRecord{}, analytics.TxFacts{}, fmt.Errorf("unmarshal vin: %w", err)
		}
		vins = append(vins, entry)
	}
	ringSizes := codec.RingSizes(vins)

	vouts := make([]rawVout, 0, len(raw.Vout))
	for _, v := range raw.Vout {
		var entry rawVout
		if err := json.Unmarshal(v, &entry); err != nil {
			return store.TxRecord{}, analytics.TxFacts{}, fmt.Errorf("unmarshal vout: %w", err)
		}
		vouts = append(vouts, entry)
	}

	rctType := 0
	fee := "0"
	var outPk, pseudoOuts []string
	if len(raw.RctSignatures) > 0 {
		var base rawRctSignaturesBase
		if err := json.Unmarshal(raw.RctSignatures, &base); err == nil {
			rctType = base.Type
			if base.TxnFee != "" {
				if n, err := strconv.ParseUint(base.TxnFee.String(), 10, 64); err == nil {
					fee = strconv.FormatUint(n, 10)
				} else {
					util.Warn("invalid txnFee, defaulting to 0", "txHash", tx.Hash, "txnFee", base.TxnFee.String())
				}
			}
			outPk = base.OutPk
			pseudoOuts = base.PseudoOuts
		}
	}

	proofType := string(codec.ProofTypeUnknown)
	bpPlus := false
	var bpBytes int64
	hasCLSAG := false

	if analyticsEnabled {
		if pt, ok := codec.DetectProofType(raw.RctsigPrunable); ok {
			proofType = string(pt)
			bpPlus = pt == codec.ProofTypeBulletproofPlus
		}
		bpBytes = int64(codec.BulletproofByteSize(raw.RctsigPrunable))
		hasCLSAG = codec.HasCLSAG(raw.RctsigPrunable)
	} else {
		// Without the full analytics pass, classify the bulletproof variant
		// from the rct type alone: RCTTypeBulletproofPlus (6) is the only
		// variant that implies bp_plus.
		bpPlus = rctType == 6
	}

	extraFields := codec.ParseExtra(raw.Extra)
	extraJSON, err := json.Marshal(extraFields)
	if err != nil {
		return store.TxRecord{}, analytics.TxFacts{}, fmt.Errorf("marshal tx_extra: %w", err)
	}

	inputs := make([]store.TxInput, 0, len(vins))
	for i, vin := range vins {
		var pseudoOut string
		if i < len(pseudoOuts) {
			pseudoOut = pseudoOuts[i]
		}
		inputs = append(inputs, store.TxInput{
			Input: store.Input{
				TxHash:    tx.Hash,
				Idx:       i,
				KeyImage:  vin.Key.KeyImage,
				RingSize:  ringSizes[i],
				PseudoOut: pseudoOut,
			},
			AbsoluteOffsets: codec.AbsoluteKeyOffsets(vin.Key.KeyOffsets),
		})
	}

	outputs := make([]store.Output, 0, len(vouts))
	for i, vout := range vouts {
		out := store.Output{
			TxHash:           tx.Hash,
			IdxInTx:          i,
			StealthPublicKey: vout.stealthKey(),
		}
		if i < len(outPk) {
			out.Commitment = outPk[i]
		}
		if rctType == 0 {
			out.Amount = strconv.FormatUint(vout.Amount, 10)
		}
		outputs = append(outputs, out)
	}

	height64 := height
	ts := blockTimestamp
	record := store.TxRecord{
		Tx: store.Transaction{
			Hash:           tx.Hash,
			BlockHeight:    &height64,
			BlockTimestamp: &ts,
			InMempool:      false,
			Fee:            fee,
			Size:           size,
			Version:        int(raw.Version),
			UnlockTime:     int64(raw.UnlockTime),
			TxExtra:        extraJSON,
			RctType:        rctType,
			ProofType:      proofType,
			BPPlus:         bpPlus,
			BPBytes:        bpBytes,
			HasCLSAG:       hasCLSAG,
			VinCount:       len(vins),
			VoutCount:      len(vouts),
		},
		Inputs:  inputs,
		Outputs: outputs,
	}

	fact := analytics.TxFacts{
		Fee:       fee,
		Size:      size,
		RingSizes: ringSizes,
		BPBytes:   bpBytes,
		HasCLSAG:  hasCLSAG,
	}

	return record, fact, nil
}
