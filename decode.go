// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/float16"
	"github.com/nlpodyssey/stconvert/float8"
)

// Float32s decodes every element of the tensor and widens it to float32.
//
// 8-bit and 16-bit floats widen exactly. F64 and the integer types are
// rounded to the nearest float32. Booleans become 0 or 1.
func (tv TensorView) Float32s() ([]float32, error) {
	b := tv.data
	out := make([]float32, tv.NumElements())

	switch tv.dType {
	case dtype.Bool:
		for i := range out {
			if b[i] != 0 {
				out[i] = 1
			}
		}
	case dtype.U8:
		for i := range out {
			out[i] = float32(b[i])
		}
	case dtype.I8:
		for i := range out {
			out[i] = float32(int8(b[i]))
		}
	case dtype.F8E4M3:
		for i := range out {
			out[i] = float8.E4M3(b[i]).Float32()
		}
	case dtype.F8E5M2:
		for i := range out {
			out[i] = float8.E5M2(b[i]).Float32()
		}
	case dtype.U16:
		for i := range out {
			out[i] = float32(binary.LittleEndian.Uint16(b[2*i:]))
		}
	case dtype.I16:
		for i := range out {
			out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:])))
		}
	case dtype.F16:
		for i := range out {
			out[i] = float16.F16(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
	case dtype.BF16:
		for i := range out {
			out[i] = float16.BF16(binary.LittleEndian.Uint16(b[2*i:])).Float32()
		}
	case dtype.U32:
		for i := range out {
			out[i] = float32(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case dtype.I32:
		for i := range out {
			out[i] = float32(int32(binary.LittleEndian.Uint32(b[4*i:])))
		}
	case dtype.F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	case dtype.U64:
		for i := range out {
			out[i] = float32(binary.LittleEndian.Uint64(b[8*i:]))
		}
	case dtype.I64:
		for i := range out {
			out[i] = float32(int64(binary.LittleEndian.Uint64(b[8*i:])))
		}
	case dtype.F64:
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:])))
		}
	default:
		return nil, fmt.Errorf("invalid or unsupported DType %s", tv.dType)
	}
	return out, nil
}
