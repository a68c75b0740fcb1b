package chaintypes

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/russross/meddler"
)

// bigIntWidth is the fixed storage width for u256 fields. Storing big
// integers as fixed-width big-endian byte strings preserves lexicographic
// (and therefore SQL index) ordering, unlike decimal strings or varints.
const bigIntWidth = 32

func init() {
	meddler.Register("bigint", BigIntMeddler{})
}

// EncodeBigInt renders v as a fixed bigIntWidth-byte big-endian string. A nil
// v encodes as nil (NULL column), matching optional u256 fields like
// BaseFeePerGas.
func EncodeBigInt(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, bigIntWidth)
	return v.FillBytes(buf)
}

// DecodeBigInt parses a fixed-width big-endian byte string back to *big.Int.
func DecodeBigInt(b []byte) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).SetBytes(b)
}

// BigIntMeddler converts *big.Int fields to/from the fixed-width big-endian
// encoding at the storage boundary, the same PreRead/PostRead/PreWrite shape
// as the hash and address meddlers.
type BigIntMeddler struct{}

func (BigIntMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.RawBytes), nil
}

func (BigIntMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	raw, ok := scanTarget.(*sql.RawBytes)
	if !ok {
		return fmt.Errorf("expected *sql.RawBytes, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(**big.Int)
	if !ok {
		return fmt.Errorf("expected **big.Int, got %T", fieldAddr)
	}

	if len(*raw) == 0 {
		*ptr = nil
		return nil
	}

	buf := make([]byte, len(*raw))
	copy(buf, *raw)
	*ptr = DecodeBigInt(buf)

	return nil
}

func (BigIntMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	v, ok := field.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", field)
	}
	if v == nil {
		return nil, nil
	}
	return EncodeBigInt(v), nil
}
