// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

var errInt64SumOverflow = errors.New("int64 sum overflow")

// checkedMul returns a*b, or an error if the product overflows uint64.
func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return lo, nil
}

// checkedAdd returns a+b for non-negative operands, or an error if the
// sum does not fit an int64. Used for absolute file offsets.
func checkedAdd(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, fmt.Errorf("unexpected negative number")
	}
	if a > math.MaxInt64-b {
		return 0, errInt64SumOverflow
	}
	return a + b, nil
}
