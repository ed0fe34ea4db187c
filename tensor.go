// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/float16"
	"github.com/nlpodyssey/stconvert/header"
)

// A Tensor produced by a conversion, with data fully loaded in memory in
// one of the wide 16-bit float types.
//
// The value of DType and the type of Data always match:
//
//	DType | Data type
//	------+---------------
//	F16   | []float16.F16
//	BF16  | []float16.BF16
type Tensor struct {
	name  string
	dType dtype.DType
	shape []int
	data  any
}

// NewTensor performs validity checks over the given properties and returns
// a Tensor with those properties if validation succeeds, otherwise an error.
//
// The shape is copied; data is NOT copied.
func NewTensor(name string, dType dtype.DType, shape []int, data any) (Tensor, error) {
	var dataLen int
	switch dType {
	case dtype.F16:
		v, ok := data.([]float16.F16)
		if !ok {
			return Tensor{}, fmt.Errorf("expected DType %s to match data type %T, actual data type %T", dType, v, data)
		}
		dataLen = len(v)
	case dtype.BF16:
		v, ok := data.([]float16.BF16)
		if !ok {
			return Tensor{}, fmt.Errorf("expected DType %s to match data type %T, actual data type %T", dType, v, data)
		}
		dataLen = len(v)
	default:
		return Tensor{}, fmt.Errorf("invalid or unsupported DType: %s", dType)
	}

	shapeSize, err := header.Shape(shape).NumElements()
	if err != nil {
		return Tensor{}, err
	}
	if shapeSize != dataLen {
		return Tensor{}, fmt.Errorf("the size computed from shape (%d) does not match data length (%d)", shapeSize, dataLen)
	}
	return Tensor{
		name:  name,
		dType: dType,
		shape: header.Shape(shape).Clone(),
		data:  data,
	}, nil
}

// The Name of the tensor.
func (t Tensor) Name() string {
	return t.name
}

// DType returns the data type of the tensor.
func (t Tensor) DType() dtype.DType {
	return t.dType
}

// The Shape of the tensor.
//
// If the shape is zero-length, it returns nil, otherwise a new slice
// is allocated and returned.
func (t Tensor) Shape() []int {
	return header.Shape(t.shape).Clone()
}

// The Data of the tensor: []float16.F16 or []float16.BF16.
//
// The value returned is NOT a copy.
func (t Tensor) Data() any {
	return t.data
}

// Float32s widens the tensor values back to float32.
func (t Tensor) Float32s() []float32 {
	switch v := t.data.(type) {
	case []float16.F16:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = x.Float32()
		}
		return out
	case []float16.BF16:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = x.Float32()
		}
		return out
	}
	return nil
}

// Bytes encodes the tensor data in safetensors little-endian layout.
// It returns nil for a tensor with no elements.
func (t Tensor) Bytes() []byte {
	switch v := t.data.(type) {
	case []float16.F16:
		if len(v) > 0 {
			return appendUint16s(make([]byte, 0, 2*len(v)), v)
		}
	case []float16.BF16:
		if len(v) > 0 {
			return appendUint16s(make([]byte, 0, 2*len(v)), v)
		}
	}
	return nil
}

// WriteTo writes the encoded tensor data to w.
// It satisfies io.WriterTo interface.
func (t Tensor) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(t.Bytes())
	return int64(n), err
}

func appendUint16s[T float16.F16 | float16.BF16](b []byte, v []T) []byte {
	for _, x := range v {
		b = binary.LittleEndian.AppendUint16(b, uint16(x))
	}
	return b
}
