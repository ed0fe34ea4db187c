// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"fmt"
	"math"
	"math/bits"
	"slices"
	"strings"

	"github.com/nlpodyssey/stconvert/dtype"
)

const maxInt = math.MaxInt

// Tensor provides properties of a tensor, as described within a
// safetensors header.
type Tensor struct {
	Name        string
	DType       dtype.DType
	Shape       Shape
	DataOffsets DataOffsets
}

// ByteSize returns the number of bytes implied by Shape and DType.
func (t Tensor) ByteSize() (int, error) {
	if err := t.DType.Validate(); err != nil {
		return 0, err
	}
	n, err := t.Shape.numElements()
	if err != nil {
		return 0, err
	}
	hi, size := bits.Mul(n, uint(t.DType.Size()))
	if hi != 0 {
		return 0, fmt.Errorf("int overflow computing tensor byte size from shape")
	}
	if size > maxInt {
		return 0, fmt.Errorf("tensor byte size computed from shape is too large for int type: %d", size)
	}
	return int(size), nil
}

// TensorMap is a set of Tensor objects mapped by their name.
type TensorMap map[string]Tensor

// TensorSlice is a slice of Tensor objects.
type TensorSlice []Tensor

// TensorSlice creates an unsorted slice of Tensor objects filled with
// all values of the TensorMap.
func (tm TensorMap) TensorSlice() TensorSlice {
	if len(tm) == 0 {
		return nil
	}
	ts := make(TensorSlice, 0, len(tm))
	for _, t := range tm {
		ts = append(ts, t)
	}
	return ts
}

// Sorted returns all tensors ordered by ascending DataOffsets, ties
// broken by name, which is the order their data appears in the byte-buffer.
func (tm TensorMap) Sorted() TensorSlice {
	ts := tm.TensorSlice()
	ts.SortByDataOffsets()
	return ts
}

// SortByDataOffsets sorts ts in place by ascending DataOffsets, then name.
func (ts TensorSlice) SortByDataOffsets() {
	slices.SortFunc(ts, func(a, b Tensor) int {
		switch {
		case a.DataOffsets.Less(b.DataOffsets):
			return -1
		case b.DataOffsets.Less(a.DataOffsets):
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// Names returns the tensor names in slice order.
func (ts TensorSlice) Names() []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}
