// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package float16 provides the two 16-bit floating point formats found in
// safetensors archives, stored as raw bits.
package float16

import (
	"math"

	x448 "github.com/x448/float16"
)

// F16 is a 16-bit IEEE 754 half-precision floating-point value,
// represented as raw bits (uint16).
type F16 uint16

// BF16 is a 16-bit brain floating-point value, represented as raw
// bits (uint16). It shares sign and exponent layout with float32.
type BF16 uint16

// F16FromFloat32 narrows f to half precision, rounding to nearest even.
func F16FromFloat32(f float32) F16 {
	return F16(x448.Fromfloat32(f).Bits())
}

// Float32 widens h to float32. The conversion is exact.
func (h F16) Float32() float32 {
	return x448.Frombits(uint16(h)).Float32()
}

// BF16FromFloat32 narrows f to brain float, rounding to nearest with
// ties to even. NaN stays NaN (quieted), values past the largest finite
// BF16 round to infinity.
func BF16FromFloat32(f float32) BF16 {
	u := math.Float32bits(f)
	if u&0x7fffffff > 0x7f800000 {
		return BF16(u>>16 | 0x0040)
	}
	u += 0x7fff + (u>>16)&1
	return BF16(u >> 16)
}

// Float32 widens b to float32. The conversion is exact.
func (b BF16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}
