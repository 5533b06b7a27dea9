// Package safemath provides overflow-checked and saturating integer
// arithmetic as used by the Solana runtime.
package safemath

import (
	"errors"
	"math"
	"math/bits"

	"github.com/ryanavella/wide"
)

var (
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = errors.New("arithmetic underflow")
)

func CheckedAddU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func CheckedSubU64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

func CheckedMulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

func SaturatingAddU64(a, b uint64) uint64 {
	sum, err := CheckedAddU64(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return sum
}

func SaturatingSubU64(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func SaturatingMulU64(a, b uint64) uint64 {
	product, err := CheckedMulU64(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return product
}

func SaturatingMulU32(a, b uint32) uint32 {
	product := uint64(a) * uint64(b)
	if product > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(product)
}

var maxU128 = wide.NewUint128(math.MaxUint64, math.MaxUint64)

func CheckedMulU128(a, b wide.Uint128) (wide.Uint128, error) {
	zero := wide.Uint128FromUint64(0)
	if a.Eq(zero) || b.Eq(zero) {
		return zero, nil
	}
	product := a.Mul(b)
	if !product.Div(b).Eq(a) {
		return zero, ErrOverflow
	}
	return product, nil
}

func SaturatingAddU128(a, b wide.Uint128) wide.Uint128 {
	sum := a.Add(b)
	if sum.Lt(a) {
		return maxU128
	}
	return sum
}
