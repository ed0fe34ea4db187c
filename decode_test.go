// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var commonDefinitions = map[string]struct {
	dType  dtype.DType
	shape  []int
	values []float32
	bytes  []byte
}{
	"bool": {
		dtype.Bool, []int{2},
		[]float32{0, 1},
		[]byte{0x00, 0x01},
	},
	"u8": {
		dtype.U8, []int{2, 2},
		[]float32{0, 1, 254, 255},
		[]byte{0x00, 0x01, 0xfe, 0xff},
	},
	"i8": {
		dtype.I8, []int{2, 2},
		[]float32{0, 1, -2, -1},
		[]byte{0x00, 0x01, 0xfe, 0xff},
	},
	"f8_e4m3": {
		dtype.F8E4M3, []int{2, 2},
		[]float32{1, 2, -1, 448},
		[]byte{0x38, 0x40, 0xb8, 0x7e},
	},
	"f8_e5m2": {
		dtype.F8E5M2, []int{2, 2},
		[]float32{1, 2, -1, 57344},
		[]byte{0x3c, 0x40, 0xbc, 0x7b},
	},
	"u16": {
		dtype.U16, []int{2, 2},
		[]float32{0, 1, 65534, 65535},
		[]byte{
			0x00, 0x00 /**/, 0x01, 0x00,
			0xfe, 0xff /**/, 0xff, 0xff,
		},
	},
	"i16": {
		dtype.I16, []int{2, 2},
		[]float32{0, 1, -2, -1},
		[]byte{
			0x00, 0x00 /**/, 0x01, 0x00,
			0xfe, 0xff /**/, 0xff, 0xff,
		},
	},
	"f16": {
		dtype.F16, []int{2, 2},
		[]float32{1, 2, -1, 0.5},
		[]byte{
			0x00, 0x3c /**/, 0x00, 0x40,
			0x00, 0xbc /**/, 0x00, 0x38,
		},
	},
	"bf16": {
		dtype.BF16, []int{2, 2},
		[]float32{1, 2, -1, 0.5},
		[]byte{
			0x80, 0x3f /**/, 0x00, 0x40,
			0x80, 0xbf /**/, 0x00, 0x3f,
		},
	},
	"u32": {
		dtype.U32, []int{2, 2},
		[]float32{1, 2, 65536, 16777216},
		[]byte{
			0x01, 0x00, 0x00, 0x00 /**/, 0x02, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x01, 0x00 /**/, 0x00, 0x00, 0x00, 0x01,
		},
	},
	"i32": {
		dtype.I32, []int{2, 2},
		[]float32{1, 2, -2, -1},
		[]byte{
			0x01, 0x00, 0x00, 0x00 /**/, 0x02, 0x00, 0x00, 0x00,
			0xfe, 0xff, 0xff, 0xff /**/, 0xff, 0xff, 0xff, 0xff,
		},
	},
	"f32": {
		dtype.F32, []int{2, 2},
		[]float32{1, 2, -1, -2},
		[]byte{
			0x00, 0x00, 0x80, 0x3f /**/, 0x00, 0x00, 0x00, 0x40,
			0x00, 0x00, 0x80, 0xbf /**/, 0x00, 0x00, 0x00, 0xc0,
		},
	},
	"u64": {
		dtype.U64, []int{2, 1},
		[]float32{1, 4294967296},
		[]byte{
			0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
		},
	},
	"i64": {
		dtype.I64, []int{1, 2},
		[]float32{1, -1},
		[]byte{
			0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		},
	},
	"f64": {
		dtype.F64, []int{2},
		[]float32{1, -1},
		[]byte{
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0xbf,
		},
	},
	"zero data": {
		dtype.U8, []int{0},
		[]float32{},
		nil,
	},
	"no shape scalar": {
		dtype.U8, nil,
		[]float32{42},
		[]byte{42},
	},
}

func makeCommonData(t *testing.T) []byte {
	header := make(map[string]any, len(commonDefinitions))
	byteBuffer := bytes.NewBuffer(nil)

	for name, def := range commonDefinitions {
		shape := def.shape
		if shape == nil {
			shape = []int{}
		}
		header[name] = map[string]any{
			"dtype":        def.dType.String(),
			"shape":        shape,
			"data_offsets": [2]int{byteBuffer.Len(), byteBuffer.Len() + len(def.bytes)},
		}
		_, err := byteBuffer.Write(def.bytes)
		require.NoError(t, err)
	}

	header["__metadata__"] = map[string]string{"meta...": "data!"}

	jsonHeader, err := json.Marshal(header)
	require.NoError(t, err)

	return makeData(string(jsonHeader), byteBuffer.Bytes())
}

func makeData(jsonHeader string, byteBuffer []byte) []byte {
	data := make([]byte, 8+len(jsonHeader)+len(byteBuffer))
	binary.LittleEndian.PutUint64(data, uint64(len(jsonHeader)))
	copy(data[8:8+len(jsonHeader)], jsonHeader)
	copy(data[8+len(jsonHeader):], byteBuffer)
	return data
}

func TestTensorView_Float32s(t *testing.T) {
	a, err := Parse(makeCommonData(t))
	require.NoError(t, err)

	for name, def := range commonDefinitions {
		t.Run(name, func(t *testing.T) {
			tv, ok := a.Tensor(name)
			require.True(t, ok)
			values, err := tv.Float32s()
			require.NoError(t, err)
			assert.Equal(t, def.values, values)
		})
	}

	t.Run("8-bit float specials", func(t *testing.T) {
		tv, err := NewTensorView("x", dtype.F8E4M3, []int{2}, []byte{0x7f, 0xff})
		require.NoError(t, err)
		values, err := tv.Float32s()
		require.NoError(t, err)
		for _, v := range values {
			assert.True(t, math.IsNaN(float64(v)))
		}

		tv, err = NewTensorView("y", dtype.F8E5M2, []int{2}, []byte{0x7c, 0xfc})
		require.NoError(t, err)
		values, err = tv.Float32s()
		require.NoError(t, err)
		assert.True(t, math.IsInf(float64(values[0]), 1))
		assert.True(t, math.IsInf(float64(values[1]), -1))
	})

	t.Run("invalid DType", func(t *testing.T) {
		_, err := TensorView{name: "x", dType: 0}.Float32s()
		assert.Error(t, err)
	})
}

// assertData compares tensor bytes, treating nil and empty data alike.
func assertData(t *testing.T, want, got []byte, msgAndArgs ...any) {
	t.Helper()
	if len(want) == 0 {
		assert.Empty(t, got, msgAndArgs...)
		return
	}
	assert.Equal(t, want, got, msgAndArgs...)
}
