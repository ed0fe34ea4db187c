// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dtype defines the closed set of element types that can appear
// in a safetensors header.
package dtype

import (
	"fmt"
	"strconv"
)

// DType represents a safetensors data type.
type DType uint8

const (
	// Bool represents an 8-bit boolean data type.
	Bool DType = iota + 1
	// U8 represents an 8-bit unsigned integer data type.
	U8
	// I8 represents an 8-bit signed integer data type.
	I8
	// F8E5M2 represents an 8-bit floating point data type with 5 exponent
	// bits and 2 mantissa bits.
	F8E5M2
	// F8E4M3 represents an 8-bit floating point data type with 4 exponent
	// bits and 3 mantissa bits, finite-only ("fn" variant).
	F8E4M3
	// U16 represents a 16-bit unsigned integer data type.
	U16
	// I16 represents a 16-bit signed integer data type.
	I16
	// F16 represents a 16-bit half-precision floating point data type.
	F16
	// BF16 represents a 16-bit brain floating point data type.
	BF16
	// U32 represents a 32-bit unsigned integer data type.
	U32
	// I32 represents a 32-bit signed integer data type.
	I32
	// F32 represents a 32-bit floating point data type.
	F32
	// U64 represents a 64-bit unsigned integer data type.
	U64
	// I64 represents a 64-bit signed integer data type.
	I64
	// F64 represents a 64-bit floating point data type.
	F64
)

type kind uint8

const (
	kindBool kind = iota
	kindUint
	kindInt
	kindFloat
)

type info struct {
	name string
	size int
	kind kind
}

var infos = [...]info{
	Bool:   {"BOOL", 1, kindBool},
	U8:     {"U8", 1, kindUint},
	I8:     {"I8", 1, kindInt},
	F8E5M2: {"F8_E5M2", 1, kindFloat},
	F8E4M3: {"F8_E4M3", 1, kindFloat},
	U16:    {"U16", 2, kindUint},
	I16:    {"I16", 2, kindInt},
	F16:    {"F16", 2, kindFloat},
	BF16:   {"BF16", 2, kindFloat},
	U32:    {"U32", 4, kindUint},
	I32:    {"I32", 4, kindInt},
	F32:    {"F32", 4, kindFloat},
	U64:    {"U64", 8, kindUint},
	I64:    {"I64", 8, kindInt},
	F64:    {"F64", 8, kindFloat},
}

var byName = func() map[string]DType {
	m := make(map[string]DType, len(infos))
	for i := Bool; i <= F64; i++ {
		m[infos[i].name] = i
	}
	return m
}()

// Parse returns the DType identified by its safetensors name, such as
// "BF16" or "F8_E4M3".
func Parse(s string) (DType, error) {
	dt, ok := byName[s]
	if !ok {
		return 0, fmt.Errorf("unknown DType %q", s)
	}
	return dt, nil
}

// Validate returns an error if the DType is not valid, otherwise nil.
func (dt DType) Validate() error {
	if dt == 0 || dt > F64 {
		return fmt.Errorf("invalid DType(%d)", dt)
	}
	return nil
}

// String returns a string representation of a DType.
func (dt DType) String() string {
	if err := dt.Validate(); err != nil {
		return err.Error()
	}
	return infos[dt].name
}

// Size returns the size in bytes of one element of this data type,
// or -1 if the DType value is invalid.
func (dt DType) Size() int {
	if err := dt.Validate(); err != nil {
		return -1
	}
	return infos[dt].size
}

// IsFloat reports whether dt is a floating point type of any width.
func (dt DType) IsFloat() bool {
	return dt.Validate() == nil && infos[dt].kind == kindFloat
}

// IsFloat8 reports whether dt is one of the 8-bit floating point variants.
func (dt DType) IsFloat8() bool {
	return dt == F8E4M3 || dt == F8E5M2
}

// MarshalJSON satisfies json.Marshaler interface.
func (dt DType) MarshalJSON() ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return []byte(strconv.Quote(infos[dt].name)), nil
}

// UnmarshalJSON satisfies json.Unmarshaler interface.
func (dt *DType) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err == nil {
		if v, ok := byName[s]; ok {
			*dt = v
			return nil
		}
	}
	return fmt.Errorf("failed to JSON-unmarshal DType from value %q", string(b))
}

// MarshalText satisfies encoding.TextMarshaler interface.
func (dt DType) MarshalText() ([]byte, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return []byte(infos[dt].name), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler interface.
func (dt *DType) UnmarshalText(text []byte) error {
	v, ok := byName[string(text)]
	if !ok {
		return fmt.Errorf("failed to text-unmarshal DType from value %q", string(text))
	}
	*dt = v
	return nil
}
