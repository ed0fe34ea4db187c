// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"fmt"
	"io"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/header"
)

// TensorView is a read-only view of a tensor within an archive.
//
// It references data within the archive's byte-buffer without copying it.
// Data is little-endian and row-major ("C") ordered, without striding.
type TensorView struct {
	name  string
	dType dtype.DType
	shape []int
	data  []byte
}

// NewTensorView creates a TensorView over data, checking that its length
// matches shape and dType.
func NewTensorView(name string, dType dtype.DType, shape []int, data []byte) (TensorView, error) {
	if err := dType.Validate(); err != nil {
		return TensorView{}, err
	}
	n, err := header.Shape(shape).NumElements()
	if err != nil {
		return TensorView{}, err
	}
	size, err := checkedMul(uint64(n), uint64(dType.Size()))
	if err != nil {
		return TensorView{}, err
	}
	if size != uint64(len(data)) {
		return TensorView{}, fmt.Errorf("invalid tensor view %q: dtype=%s shape=%v len(data)=%d", name, dType, shape, len(data))
	}
	return TensorView{
		name:  name,
		dType: dType,
		shape: header.Shape(shape).Clone(),
		data:  data,
	}, nil
}

// The Name of the tensor.
func (tv TensorView) Name() string { return tv.name }

// DType returns the data type of the tensor.
func (tv TensorView) DType() dtype.DType { return tv.dType }

// Data returns the raw bytes of the tensor. They must not be modified.
func (tv TensorView) Data() []byte { return tv.data }

// DataLen returns the length of the data in bytes.
func (tv TensorView) DataLen() int { return len(tv.data) }

// The Shape of the tensor.
//
// If the shape is zero-length, it returns nil, otherwise a new slice
// is allocated and returned (the shape is copied to prevent tampering).
func (tv TensorView) Shape() []int {
	return header.Shape(tv.shape).Clone()
}

// NumElements returns the number of elements, derived from the data length.
func (tv TensorView) NumElements() int {
	return len(tv.data) / tv.dType.Size()
}

// Reinterpret returns a view of the same bytes typed as dt. Nothing is
// copied or moved.
//
// When the element widths differ, the last dimension is rescaled the way
// a dtype view does, so a [2, 8] U8 tensor seen as F32 becomes [2, 2].
// It fails with a *ReinterpretError if the byte length, or the byte length
// of the last dimension, is not a multiple of the new element width.
func (tv TensorView) Reinterpret(dt dtype.DType) (TensorView, error) {
	if err := dt.Validate(); err != nil {
		return TensorView{}, fmt.Errorf("cannot reinterpret tensor %q: %w", tv.name, err)
	}
	fail := &ReinterpretError{Name: tv.name, From: tv.dType, To: dt, Len: len(tv.data)}
	oldSize, newSize := tv.dType.Size(), dt.Size()
	if len(tv.data)%newSize != 0 {
		return TensorView{}, fail
	}

	shape := tv.Shape()
	if oldSize != newSize {
		if len(shape) == 0 {
			if len(tv.data) != newSize {
				return TensorView{}, fail
			}
		} else {
			lastBytes := shape[len(shape)-1] * oldSize
			if lastBytes%newSize != 0 {
				return TensorView{}, fail
			}
			shape[len(shape)-1] = lastBytes / newSize
		}
	}

	return TensorView{
		name:  tv.name,
		dType: dt,
		shape: shape,
		data:  tv.data,
	}, nil
}

// WriteTo writes the raw tensor data to w, satisfying io.WriterTo.
func (tv TensorView) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(tv.data)
	return int64(n), err
}
