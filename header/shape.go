// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"encoding/json"
	"fmt"
	"math/bits"
)

// The Shape of a tensor. An empty shape describes a scalar.
type Shape []int

// MarshalJSON prevents a nil Shape to be serialized as "null",
// preferring an empty array "[]" instead. This allows the JSON
// value to be compliant with safetensors format.
func (s Shape) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

// NumElements returns the product of all dimensions (1 for a scalar),
// failing on negative dimensions or overflow.
func (s Shape) NumElements() (int, error) {
	n, err := s.numElements()
	if err != nil {
		return 0, err
	}
	if n > maxInt {
		return 0, fmt.Errorf("int overflow computing tensor elements size from shape")
	}
	return int(n), nil
}

func (s Shape) numElements() (uint, error) {
	size := uint(1)
	for _, v := range s {
		if v < 0 {
			return 0, fmt.Errorf("shape contains negative value %d", v)
		}
		var hi uint
		if hi, size = bits.Mul(size, uint(v)); hi != 0 {
			return 0, fmt.Errorf("int overflow computing tensor elements size from shape")
		}
	}
	return size, nil
}

// Clone returns a copy of s, or nil if s is empty.
func (s Shape) Clone() Shape {
	if len(s) == 0 {
		return nil
	}
	c := make(Shape, len(s))
	copy(c, s)
	return c
}
