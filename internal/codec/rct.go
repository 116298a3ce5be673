package codec

import "encoding/json"

// ProofType identifies the RingCT proof shape carried by a transaction's
// rctsig_prunable section.
type ProofType string

const (
	ProofTypeUnknown         ProofType = "unknown"
	ProofTypeBulletproof     ProofType = "bulletproof"
	ProofTypeBulletproofPlus ProofType = "bulletproof_plus"
)

// VinEntry is the subset of a vin[] element this package needs: the ring of
// key offsets a txin_to_key input spends from.
type VinEntry struct {
	Key struct {
		KeyOffsets []json.Number `json:"key_offsets"`
		KeyImage   string        `json:"k_image"`
	} `json:"key"`
}

// RingSize returns the number of decoy+real outputs referenced by a single
// txin_to_key input: the length of its key_offsets array.
func RingSize(vin VinEntry) int {
	return len(vin.Key.KeyOffsets)
}

// RingSizes returns the ring size of every input in a transaction's vin list.
func RingSizes(vins []VinEntry) []int {
	sizes := make([]int, len(vins))
	for i, v := range vins {
		sizes[i] = RingSize(v)
	}
	return sizes
}

// AbsoluteKeyOffsets converts a vin's wire-format key_offsets (the first
// entry absolute, every following entry a relative delta from the previous
// one) into the absolute global output indices they reference. This is the
// standard CryptoNote decoding for RingCT (amount=0) output indices; it does
// not attempt to resolve pre-RingCT, amount-keyed output indices.
func AbsoluteKeyOffsets(offsets []json.Number) []int64 {
	abs := make([]int64, len(offsets))
	var running int64
	for i, o := range offsets {
		n, err := o.Int64()
		if err != nil {
			return abs[:i]
		}
		if i == 0 {
			running = n
		} else {
			running += n
		}
		abs[i] = running
	}
	return abs
}

// rctPrunable is the subset of rctsig_prunable this package inspects. Both
// bp and bp_plus are carried as opaque json.RawMessage since the pipeline
// only needs to detect presence and measure serialized size, not decode the
// proof itself.
type rctPrunable struct {
	Bp     json.RawMessage `json:"bp"`
	BpPlus json.RawMessage `json:"bp_plus"`
	CLSAGs json.RawMessage `json:"CLSAGs"`
}

// DetectProofType inspects a transaction's rctsig_prunable JSON section and
// classifies the bulletproof variant in use. A trailing bp_plus field, when
// present, takes precedence over a classic bp field regardless of whether
// CLSAG signatures are also present in the same section — CLSAG usage is
// orthogonal to the bulletproof variant and does not affect this result.
func DetectProofType(rctsigPrunable json.RawMessage) (ProofType, bool) {
	if len(rctsigPrunable) == 0 {
		return ProofTypeUnknown, false
	}

	var prunable rctPrunable
	if err := json.Unmarshal(rctsigPrunable, &prunable); err != nil {
		return ProofTypeUnknown, false
	}

	if len(prunable.BpPlus) > 0 {
		return ProofTypeBulletproofPlus, true
	}
	if len(prunable.Bp) > 0 {
		return ProofTypeBulletproof, true
	}
	return ProofTypeUnknown, false
}

// HasCLSAG reports whether a transaction's rctsig_prunable section carries
// CLSAG signatures, independent of its bulletproof variant.
func HasCLSAG(rctsigPrunable json.RawMessage) bool {
	if len(rctsigPrunable) == 0 {
		return false
	}
	var prunable rctPrunable
	if err := json.Unmarshal(rctsigPrunable, &prunable); err != nil {
		return false
	}
	return len(prunable.CLSAGs) > 0
}

// BulletproofByteSize approximates the on-wire size of the bulletproof
// section as the byte length of its JSON serialization, per spec's
// soft-facts bp_total_bytes definition. It inspects whichever of bp/bp_plus
// DetectProofType identified.
func BulletproofByteSize(rctsigPrunable json.RawMessage) int {
	if len(rctsigPrunable) == 0 {
		return 0
	}
	var prunable rctPrunable
	if err := json.Unmarshal(rctsigPrunable, &prunable); err != nil {
		return 0
	}
	if len(prunable.BpPlus) > 0 {
		return len(prunable.BpPlus)
	}
	return len(prunable.Bp)
}
