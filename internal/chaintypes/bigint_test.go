package chaintypes

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigIntRoundtrip(t *testing.T) {
	tests := []struct {
		name string
		in   *big.Int
	}{
		{"zero", big.NewInt(0)},
		{"small", big.NewInt(12345)},
		{"max uint64", new(big.Int).SetUint64(^uint64(0))},
		{"u256 max", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeBigInt(tt.in)
			require.Len(t, encoded, bigIntWidth)
			assert.Equal(t, 0, tt.in.Cmp(DecodeBigInt(encoded)))
		})
	}
}

func TestBigIntNil(t *testing.T) {
	assert.Nil(t, EncodeBigInt(nil))
	assert.Nil(t, DecodeBigInt(nil))
}

func TestBigIntOrderingPreserved(t *testing.T) {
	a := EncodeBigInt(big.NewInt(100))
	b := EncodeBigInt(big.NewInt(200))

	// Fixed-width big-endian encoding must preserve numeric ordering
	// lexicographically, which is what keeps a SQL index over the byte
	// column useful for range queries.
	less := false
	for i := range a {
		if a[i] != b[i] {
			less = a[i] < b[i]
			break
		}
	}
	assert.True(t, less)
}
