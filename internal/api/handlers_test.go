package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashRegex(t *testing.T) {
	valid64 := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

	tests := []struct {
		name  string
		hash  string
		valid bool
	}{
		{name: "valid lowercase hash", hash: valid64, valid: true},
		{name: "valid uppercase hash", hash: "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789", valid: true},
		{name: "too short", hash: valid64[:32], valid: false},
		{name: "too long", hash: valid64 + "ff", valid: false},
		{name: "non-hex characters", hash: "zz" + valid64[2:], valid: false},
		{name: "empty string", hash: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, hashRegex.MatchString(tt.hash))
		})
	}
}
