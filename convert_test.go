// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/float16"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *zerolog.Logger {
	l := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &l
}

func countLevel(buf *bytes.Buffer, level string) int {
	return strings.Count(buf.String(), `"level":"`+level+`"`)
}

func bf16s(values ...float32) []float16.BF16 {
	out := make([]float16.BF16, len(values))
	for i, v := range values {
		out[i] = float16.BF16FromFloat32(v)
	}
	return out
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "scaled", PolicyScaled.String())
	assert.Equal(t, "unscaled", PolicyUnscaled.String())
	assert.Equal(t, "reinterpreted", PolicyReinterpreted.String())
	assert.Equal(t, "cast", PolicyCast.String())
	assert.Equal(t, "Policy(0)", Policy(0).String())
	assert.Equal(t, "Policy(9)", Policy(9).String())
}

func TestConverter_Policy(t *testing.T) {
	var c Converter
	testCases := []struct {
		dType    dtype.DType
		hasScale bool
		want     Policy
	}{
		{dtype.F8E4M3, true, PolicyScaled},
		{dtype.F8E5M2, true, PolicyScaled},
		{dtype.F8E4M3, false, PolicyUnscaled},
		{dtype.F8E5M2, false, PolicyUnscaled},
		{dtype.U8, true, PolicyReinterpreted},
		{dtype.U8, false, PolicyReinterpreted},
		{dtype.F32, true, PolicyCast},
		{dtype.BF16, false, PolicyCast},
		{dtype.I64, false, PolicyCast},
	}
	for _, tc := range testCases {
		assert.Equalf(t, tc.want, c.Policy(tc.dType, tc.hasScale), "%s hasScale=%v", tc.dType, tc.hasScale)
	}
}

func TestConverter_Validate(t *testing.T) {
	assert.NoError(t, Converter{}.Validate())
	assert.NoError(t, Converter{Target: dtype.F16, ByteDType: dtype.F8E5M2}.Validate())
	assert.EqualError(t, Converter{Target: dtype.F32}.Validate(), "unsupported target DType F32: expected BF16 or F16")
	assert.EqualError(t, Converter{ByteDType: dtype.I16}.Validate(), "unsupported U8 reinterpretation DType I16: expected a floating point type")
}

func TestConverter_Convert(t *testing.T) {
	w := mustView(t, "w", dtype.F8E4M3, []int{2}, []byte{0x38, 0x44}) // 1.0, 3.0
	scale := mustView(t, "w_scale", dtype.F32, []int{1}, []byte{0, 0, 0, 0x40})

	t.Run("scaled", func(t *testing.T) {
		var buf bytes.Buffer
		out, err := Converter{Logger: newTestLogger(&buf)}.Convert(w, &scale)
		require.NoError(t, err)
		assert.Equal(t, "w", out.Name())
		assert.Equal(t, dtype.BF16, out.DType())
		assert.Equal(t, []int{2}, out.Shape())
		assert.Equal(t, bf16s(2, 6), out.Data())
		assert.Equal(t, 0, countLevel(&buf, "warn"))
		assert.Contains(t, buf.String(), `"scale":2`)
	})

	t.Run("unscaled warns once", func(t *testing.T) {
		var buf bytes.Buffer
		out, err := Converter{Logger: newTestLogger(&buf)}.Convert(w, nil)
		require.NoError(t, err)
		assert.Equal(t, bf16s(1, 3), out.Data())
		assert.Equal(t, 1, countLevel(&buf, "warn"))
		assert.Contains(t, buf.String(), "no scale")
	})

	t.Run("U8 reinterpreted and scaled", func(t *testing.T) {
		var buf bytes.Buffer
		u := mustView(t, "u", dtype.U8, []int{2}, []byte{0x38, 0x44})
		out, err := Converter{Logger: newTestLogger(&buf)}.Convert(u, &scale)
		require.NoError(t, err)
		assert.Equal(t, bf16s(2, 6), out.Data())
		assert.Equal(t, 1, countLevel(&buf, "warn"))
		assert.Contains(t, buf.String(), "reinterpreted")
	})

	t.Run("U8 reinterpreted without scale", func(t *testing.T) {
		var buf bytes.Buffer
		u := mustView(t, "u", dtype.U8, []int{2}, []byte{0x38, 0x44})
		out, err := Converter{Logger: newTestLogger(&buf)}.Convert(u, nil)
		require.NoError(t, err)
		assert.Equal(t, bf16s(1, 3), out.Data())
		assert.Equal(t, 1, countLevel(&buf, "warn"))
	})

	t.Run("U8 as F32 rescales shape", func(t *testing.T) {
		u := mustView(t, "u", dtype.U8, []int{1, 4}, []byte{0, 0, 0x40, 0x40})
		out, err := Converter{ByteDType: dtype.F32}.Convert(u, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1}, out.Shape())
		assert.Equal(t, bf16s(3), out.Data())
	})

	t.Run("U8 reinterpret failure", func(t *testing.T) {
		u := mustView(t, "u", dtype.U8, []int{3}, []byte{1, 2, 3})
		_, err := Converter{ByteDType: dtype.F32}.Convert(u, nil)
		var re *ReinterpretError
		assert.True(t, errors.As(err, &re))
	})

	t.Run("cast ignores scale", func(t *testing.T) {
		var buf bytes.Buffer
		b := mustView(t, "b", dtype.F32, []int{1}, []byte{0, 0, 0x40, 0x40})
		out, err := Converter{Logger: newTestLogger(&buf)}.Convert(b, &scale)
		require.NoError(t, err)
		assert.Equal(t, bf16s(3), out.Data())
		assert.Equal(t, 0, countLevel(&buf, "warn"))
	})

	t.Run("F16 target", func(t *testing.T) {
		out, err := Converter{Target: dtype.F16}.Convert(w, &scale)
		require.NoError(t, err)
		assert.Equal(t, dtype.F16, out.DType())
		assert.Equal(t, []float16.F16{0x4000, 0x4600}, out.Data())
	})

	t.Run("per-channel scale", func(t *testing.T) {
		s := mustView(t, "w_scale", dtype.F32, []int{2}, make([]byte, 8))
		_, err := Converter{}.Convert(w, &s)
		assert.ErrorIs(t, err, ErrUnsupportedScale)
	})

	t.Run("invalid converter", func(t *testing.T) {
		_, err := Converter{Target: dtype.F64}.Convert(w, nil)
		assert.Error(t, err)
	})

	t.Run("NaN and saturation", func(t *testing.T) {
		x := mustView(t, "x", dtype.F8E4M3, []int{2}, []byte{0x7f, 0x7e})
		big := mustView(t, "x_scale", dtype.F32, nil, []byte{0xff, 0xff, 0x7f, 0x7f}) // max float32
		out, err := Converter{}.Convert(x, &big)
		require.NoError(t, err)
		values := out.Float32s()
		assert.NotEqual(t, values[0], values[0])
		assert.Equal(t, float16.BF16(0x7f80), out.Data().([]float16.BF16)[1])
	})
}
