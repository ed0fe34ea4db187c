// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package float8 decodes the two 8-bit floating point encodings used by
// quantized safetensors checkpoints.
//
// E4M3 is the finite-only variant (often written e4m3fn): exponent bias 7,
// no infinities, and only the all-ones pattern (S.1111.111) is NaN, which
// brings the largest finite magnitude to 448.
//
// E5M2 follows IEEE 754 conventions: exponent bias 15, infinities and NaNs
// at the top exponent, largest finite magnitude 57344.
package float8

import "math"

// E4M3 is an 8-bit e4m3fn floating point value, represented as raw bits.
type E4M3 uint8

// E5M2 is an 8-bit e5m2 floating point value, represented as raw bits.
type E5M2 uint8

var (
	e4m3Table = buildTable(decodeE4M3)
	e5m2Table = buildTable(decodeE5M2)
)

// Float32 returns the exact float32 value of v.
func (v E4M3) Float32() float32 { return e4m3Table[v] }

// Float32 returns the exact float32 value of v.
func (v E5M2) Float32() float32 { return e5m2Table[v] }

// IsNaN reports whether v encodes NaN.
func (v E4M3) IsNaN() bool { return v&0x7f == 0x7f }

// IsNaN reports whether v encodes NaN.
func (v E5M2) IsNaN() bool { return v&0x7c == 0x7c && v&0x03 != 0 }

func buildTable(decode func(uint8) float32) (t [256]float32) {
	for i := range t {
		t[i] = decode(uint8(i))
	}
	return
}

func decodeE4M3(b uint8) float32 {
	exp := int(b>>3) & 0x0f
	man := float64(b & 0x07)
	var v float64
	switch {
	case exp == 0x0f && man == 7:
		v = math.NaN()
	case exp == 0:
		v = math.Ldexp(man/8, -6)
	default:
		v = math.Ldexp(1+man/8, exp-7)
	}
	if b&0x80 != 0 {
		v = -v
	}
	return float32(v)
}

func decodeE5M2(b uint8) float32 {
	exp := int(b>>2) & 0x1f
	man := float64(b & 0x03)
	var v float64
	switch {
	case exp == 0x1f && man == 0:
		v = math.Inf(1)
	case exp == 0x1f:
		v = math.NaN()
	case exp == 0:
		v = math.Ldexp(man/4, -14)
	default:
		v = math.Ldexp(1+man/4, exp-15)
	}
	if b&0x80 != 0 {
		v = -v
	}
	return float32(v)
}
