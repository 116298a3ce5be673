package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExtra_PubKeyOnly(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	extra := append([]byte{TagPubKey}, key...)

	fields := ParseExtra(extra)

	assert.Len(t, fields, 1)
	assert.Equal(t, TagPubKey, fields[0].Tag)
	assert.Equal(t, key, fields[0].PubKey)
}

func TestParseExtra_PaddingThenPubKey(t *testing.T) {
	key := make([]byte, 32)
	extra := append([]byte{TagPadding, TagPadding}, append([]byte{TagPubKey}, key...)...)

	fields := ParseExtra(extra)

	assert.Len(t, fields, 3)
	assert.Equal(t, TagPadding, fields[0].Tag)
	assert.Equal(t, TagPadding, fields[1].Tag)
	assert.Equal(t, TagPubKey, fields[2].Tag)
}

func TestParseExtra_Nonce(t *testing.T) {
	nonce := []byte{0x01, 0x02, 0x03, 0x04}
	extra := append([]byte{TagNonce, byte(len(nonce))}, nonce...)

	fields := ParseExtra(extra)

	assert.Len(t, fields, 1)
	assert.Equal(t, TagNonce, fields[0].Tag)
	assert.Equal(t, nonce, fields[0].Nonce)
	assert.Equal(t, nonce, PaymentID(fields))
}

func TestParseExtra_AdditionalPubKeys(t *testing.T) {
	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	key2[0] = 0xFF

	// Length prefix is a byte length (0x40 = 64), not a key count: 64/32 = 2 keys.
	extra := []byte{TagAdditionalPubKeys, 0x40}
	extra = append(extra, key1...)
	extra = append(extra, key2...)

	fields := ParseExtra(extra)

	assert.Len(t, fields, 1)
	assert.Equal(t, TagAdditionalPubKeys, fields[0].Tag)
	assert.Len(t, fields[0].AdditionalPubKeys, 2)
	assert.Equal(t, key2, fields[0].AdditionalPubKeys[1])
}

func TestParseExtra_UnknownTag(t *testing.T) {
	// Unknown tags are length-prefixed like TagNonce: tag 0x07, length 2,
	// a 2-byte payload, then parsing continues past it.
	extra := []byte{0x07, 0x02, 0xAA, 0xBB, TagPadding}

	fields := ParseExtra(extra)

	assert.Len(t, fields, 2)
	assert.Equal(t, byte(0x07), fields[0].Tag)
	assert.Equal(t, 2, fields[0].UnknownLen)
	assert.Equal(t, TagPadding, fields[1].Tag)
}

func TestParseExtra_UnknownTagNoLengthByte(t *testing.T) {
	// An unknown tag with nothing left to read its length from still yields
	// an empty Unknown field rather than being dropped.
	extra := []byte{0x07}

	fields := ParseExtra(extra)

	assert.Len(t, fields, 1)
	assert.Equal(t, byte(0x07), fields[0].Tag)
	assert.Equal(t, 0, fields[0].UnknownLen)
}

func TestParseExtra_FullVector(t *testing.T) {
	// 01 <32B pubkey> 02 04 de ad be ef 04 40 <64B> ff
	pubkey := make([]byte, 32)
	for i := range pubkey {
		pubkey[i] = byte(i)
	}
	additional := make([]byte, 64)
	for i := range additional {
		additional[i] = byte(0x80 + i)
	}

	extra := []byte{TagPubKey}
	extra = append(extra, pubkey...)
	extra = append(extra, TagNonce, 0x04, 0xde, 0xad, 0xbe, 0xef)
	extra = append(extra, TagAdditionalPubKeys, 0x40)
	extra = append(extra, additional...)
	extra = append(extra, 0xff)

	fields := ParseExtra(extra)

	assert.Len(t, fields, 4)
	assert.Equal(t, TagPubKey, fields[0].Tag)
	assert.Equal(t, pubkey, fields[0].PubKey)
	assert.Equal(t, TagNonce, fields[1].Tag)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, fields[1].Nonce)
	assert.Equal(t, TagAdditionalPubKeys, fields[2].Tag)
	assert.Len(t, fields[2].AdditionalPubKeys, 2)
	assert.Equal(t, byte(0xff), fields[3].Tag)
	assert.Equal(t, 0, fields[3].UnknownLen)
}

func TestParseExtra_TruncatedPubKey(t *testing.T) {
	// Declares a pubkey field but only supplies 10 of the 32 bytes.
	extra := append([]byte{TagPubKey}, make([]byte, 10)...)

	fields := ParseExtra(extra)

	assert.Empty(t, fields, "truncated field should terminate parsing cleanly with no partial field emitted")
}

func TestParseExtra_TruncatedNonce(t *testing.T) {
	extra := []byte{TagNonce, 10, 0x01, 0x02} // declares length 10, only 2 bytes follow

	fields := ParseExtra(extra)

	assert.Empty(t, fields)
}

func TestParseExtra_Empty(t *testing.T) {
	fields := ParseExtra(nil)
	assert.Empty(t, fields)
}

func TestTxPubKey_NotPresent(t *testing.T) {
	fields := ParseExtra([]byte{TagPadding})
	assert.Nil(t, TxPubKey(fields))
}

func TestExtraField_String(t *testing.T) {
	tests := []struct {
		name  string
		field ExtraField
	}{
		{"padding", ExtraField{Tag: TagPadding}},
		{"pubkey", ExtraField{Tag: TagPubKey, PubKey: make([]byte, 32)}},
		{"nonce", ExtraField{Tag: TagNonce, Nonce: []byte{1, 2, 3}}},
		{"additional", ExtraField{Tag: TagAdditionalPubKeys, AdditionalPubKeys: [][]byte{make([]byte, 32)}}},
		{"unknown", ExtraField{Tag: 0x09, UnknownLen: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, tt.field.String())
		})
	}
}
