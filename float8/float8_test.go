// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package float8

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestE4M3_Float32(t *testing.T) {
	testCases := []struct {
		bits E4M3
		want float32
	}{
		{0x00, 0},
		{0x01, 0.001953125}, // smallest subnormal, 2^-9
		{0x07, 0.013671875}, // largest subnormal, 7 * 2^-9
		{0x08, 0.015625},    // smallest normal, 2^-6
		{0x30, 0.5},
		{0x38, 1},
		{0x3c, 1.5},
		{0x40, 2},
		{0x7e, 448},
		{0xb8, -1},
		{0xfe, -448},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, tc.bits.Float32(), "bits %#02x", uint8(tc.bits))
	}

	assert.True(t, math.Signbit(float64(E4M3(0x80).Float32())))
	for _, b := range []E4M3{0x7f, 0xff} {
		assert.True(t, b.IsNaN())
		assert.True(t, math.IsNaN(float64(b.Float32())))
	}
	for i := 0; i < 256; i++ {
		v := E4M3(i)
		if v.IsNaN() {
			continue
		}
		assert.False(t, math.IsInf(float64(v.Float32()), 0), "bits %#02x", i)
	}
}

func TestE5M2_Float32(t *testing.T) {
	testCases := []struct {
		bits E5M2
		want float32
	}{
		{0x00, 0},
		{0x01, float32(math.Ldexp(1, -16))},
		{0x04, float32(math.Ldexp(1, -14))},
		{0x3c, 1},
		{0x3e, 1.5},
		{0x7b, 57344},
		{0xbc, -1},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, tc.bits.Float32(), "bits %#02x", uint8(tc.bits))
	}

	assert.True(t, math.IsInf(float64(E5M2(0x7c).Float32()), 1))
	assert.True(t, math.IsInf(float64(E5M2(0xfc).Float32()), -1))
	assert.False(t, E5M2(0x7c).IsNaN())
	for _, b := range []E5M2{0x7d, 0x7e, 0x7f, 0xff} {
		assert.True(t, b.IsNaN())
		assert.True(t, math.IsNaN(float64(b.Float32())))
	}
}
