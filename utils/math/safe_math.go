// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"errors"
	"math/big"
)

// Unsigned is a constraint that permits any unsigned integer type.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

var ErrOverflow = errors.New("overflow")

// MaxUint returns the maximum value of an unsigned integer of type T.
func MaxUint[T Unsigned]() T {
	return ^T(0)
}

// Add returns a + b, or ErrOverflow.
func Add[T Unsigned](a, b T) (T, error) {
	if a > MaxUint[T]()-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// RatioAtLeast reports whether num/den >= rateNum/rateDen, compared by cross
// multiplication (num*rateDen >= rateNum*den) so the result is exact and never
// touches floating point.
func RatioAtLeast(num, den, rateNum, rateDen uint64) bool {
	lhs := new(big.Int).SetUint64(num)
	lhs.Mul(lhs, new(big.Int).SetUint64(rateDen))
	rhs := new(big.Int).SetUint64(rateNum)
	rhs.Mul(rhs, new(big.Int).SetUint64(den))
	return lhs.Cmp(rhs) >= 0
}
