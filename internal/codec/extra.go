// Package codec decodes the wire-level pieces of a Monero transaction that
// the ingestion pipeline needs but the daemon doesn't pre-digest for us: the
// tx_extra tagged byte stream, ring sizes, and the RingCT proof shape.
package codec

import "fmt"

// Extra field tags, per the CryptoNote tx_extra wire format.
const (
	TagPadding           byte = 0x00
	TagPubKey            byte = 0x01
	TagNonce             byte = 0x02
	TagAdditionalPubKeys byte = 0x04
)

// ExtraField is one decoded element of a tx_extra stream.
type ExtraField struct {
	Tag  byte
	// PubKey holds the 32-byte transaction public key for TagPubKey.
	PubKey []byte
	// Nonce holds the raw nonce payload for TagNonce (commonly a payment ID).
	Nonce []byte
	// AdditionalPubKeys holds one 32-byte key per element for TagAdditionalPubKeys.
	AdditionalPubKeys [][]byte
	// UnknownLen is the declared byte length of an unrecognized tag's
	// length-prefixed payload, which is skipped rather than decoded.
	UnknownLen int
}

// ParseExtra decodes a tx_extra byte stream into its tagged fields.
// Truncated fields terminate parsing cleanly rather than returning an error:
// a tx_extra that trails off mid-field is valid on the wire (daemons accept
// it) and the pipeline should record what it could decode.
func ParseExtra(extra []byte) []ExtraField {
	var fields []ExtraField
	i := 0

	for i < len(extra) {
		tag := extra[i]
		i++

		switch tag {
		case TagPadding:
			fields = append(fields, ExtraField{Tag: TagPadding})

		case TagPubKey:
			if i+32 > len(extra) {
				return fields
			}
			key := make([]byte, 32)
			copy(key, extra[i:i+32])
			fields = append(fields, ExtraField{Tag: TagPubKey, PubKey: key})
			i += 32

		case TagNonce:
			if i >= len(extra) {
				return fields
			}
			length := int(extra[i])
			i++
			if i+length > len(extra) {
				return fields
			}
			nonce := make([]byte, length)
			copy(nonce, extra[i:i+length])
			fields = append(fields, ExtraField{Tag: TagNonce, Nonce: nonce})
			i += length

		case TagAdditionalPubKeys:
			if i >= len(extra) {
				return fields
			}
			length := int(extra[i])
			i++
			if i+length > len(extra) {
				return fields
			}
			count := length / 32
			keys := make([][]byte, 0, count)
			pos := i
			for k := 0; k < count; k++ {
				key := make([]byte, 32)
				copy(key, extra[pos:pos+32])
				keys = append(keys, key)
				pos += 32
			}
			fields = append(fields, ExtraField{Tag: TagAdditionalPubKeys, AdditionalPubKeys: keys})
			i += length

		default:
			// Unknown tags carry a one-byte length prefix like TagNonce; skip
			// the payload and keep parsing the rest of the stream. A tag with
			// no length byte left (the stream ends right after it) still
			// records an empty Unknown field rather than being dropped.
			if i >= len(extra) {
				fields = append(fields, ExtraField{Tag: tag, UnknownLen: 0})
				return fields
			}
			length := int(extra[i])
			i++
			if i+length > len(extra) {
				return fields
			}
			fields = append(fields, ExtraField{Tag: tag, UnknownLen: length})
			i += length
		}
	}

	return fields
}

// TxPubKey returns the first TagPubKey field's key, if present.
func TxPubKey(fields []ExtraField) []byte {
	for _, f := range fields {
		if f.Tag == TagPubKey {
			return f.PubKey
		}
	}
	return nil
}

// PaymentID returns the first TagNonce field's payload, if present. Monero
// encodes both short (8-byte, encrypted) and long (32-byte) payment IDs this
// way; the caller is responsible for interpreting the length.
func PaymentID(fields []ExtraField) []byte {
	for _, f := range fields {
		if f.Tag == TagNonce {
			return f.Nonce
		}
	}
	return nil
}

// String renders a human-readable summary of a decoded field, useful for
// logging and soft-facts debugging.
func (f ExtraField) String() string {
	switch f.Tag {
	case TagPadding:
		return "padding"
	case TagPubKey:
		return fmt.Sprintf("pubkey(%x)", f.PubKey)
	case TagNonce:
		return fmt.Sprintf("nonce(%d bytes)", len(f.Nonce))
	case TagAdditionalPubKeys:
		return fmt.Sprintf("additional_pubkeys(%d keys)", len(f.AdditionalPubKeys))
	default:
		return fmt.Sprintf("unknown(tag=0x%02x, len=%d)", f.Tag, f.UnknownLen)
	}
}
