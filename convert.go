// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"fmt"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/float16"
	"github.com/rs/zerolog"
)

// Policy identifies how a tensor is turned into the target type.
type Policy uint8

const (
	// PolicyScaled dequantizes an 8-bit float tensor with its scale.
	PolicyScaled Policy = iota + 1
	// PolicyUnscaled widens an 8-bit float tensor that has no scale.
	PolicyUnscaled
	// PolicyReinterpreted views a U8 tensor as 8-bit floats (or another
	// configured type) before dequantizing it, with its scale if any.
	PolicyReinterpreted
	// PolicyCast converts any other tensor directly.
	PolicyCast
)

var policyNames = [...]string{
	PolicyScaled:        "scaled",
	PolicyUnscaled:      "unscaled",
	PolicyReinterpreted: "reinterpreted",
	PolicyCast:          "cast",
}

func (p Policy) String() string {
	if p == 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", p)
	}
	return policyNames[p]
}

// Converter turns archive tensors into the wide 16-bit target type.
//
// Arithmetic happens in float32: every element is widened, multiplied by
// the scale when one applies, and narrowed once to Target with
// round-to-nearest-even.
//
// The zero value converts to BF16, reads U8 tensors as F8E4M3 and logs
// nothing.
type Converter struct {
	// Target is dtype.BF16 or dtype.F16. Zero means BF16.
	Target dtype.DType
	// ByteDType is the type U8 tensors are reinterpreted as. Zero means
	// F8E4M3.
	ByteDType dtype.DType
	// Logger receives per-tensor diagnostics. Nil disables them.
	Logger *zerolog.Logger
}

// Validate checks the Converter settings.
func (c Converter) Validate() error {
	if t := c.target(); t != dtype.BF16 && t != dtype.F16 {
		return fmt.Errorf("unsupported target DType %s: expected BF16 or F16", t)
	}
	if b := c.byteDType(); !b.IsFloat() {
		return fmt.Errorf("unsupported U8 reinterpretation DType %s: expected a floating point type", b)
	}
	return nil
}

func (c Converter) target() dtype.DType {
	if c.Target == 0 {
		return dtype.BF16
	}
	return c.Target
}

func (c Converter) byteDType() dtype.DType {
	if c.ByteDType == 0 {
		return dtype.F8E4M3
	}
	return c.ByteDType
}

func (c Converter) logger() *zerolog.Logger {
	if c.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return c.Logger
}

// Policy returns the conversion policy for a tensor of type dt, given
// whether a scale tensor was found for it.
func (c Converter) Policy(dt dtype.DType, hasScale bool) Policy {
	switch {
	case dt.IsFloat8() && hasScale:
		return PolicyScaled
	case dt.IsFloat8():
		return PolicyUnscaled
	case dt == dtype.U8:
		return PolicyReinterpreted
	default:
		return PolicyCast
	}
}

// Convert converts tv into the target type. scale is the tensor's scale,
// or nil if the archive has none; it is ignored unless tv is an 8-bit
// float or a U8 tensor.
//
// A missing scale is not an error: the values are widened without
// multiplication and a warning is logged. Reinterpretation failures are
// returned as *ReinterpretError.
func (c Converter) Convert(tv TensorView, scale *TensorView) (Tensor, error) {
	if err := c.Validate(); err != nil {
		return Tensor{}, err
	}
	log := c.logger()

	src := tv
	factor, scaled := float32(1), false
	switch c.Policy(tv.DType(), scale != nil) {
	case PolicyScaled:
		v, err := ScaleValue(*scale)
		if err != nil {
			return Tensor{}, err
		}
		factor, scaled = v, true
		log.Info().Str("tensor", tv.Name()).Str("scale_tensor", scale.Name()).
			Float32("scale", v).Msg("dequantized with scale")
	case PolicyUnscaled:
		log.Warn().Str("tensor", tv.Name()).Stringer("dtype", tv.DType()).
			Str("scale_tensor", ScaleName(tv.Name())).Msg("quantized tensor has no scale, doing plain cast")
	case PolicyReinterpreted:
		r, err := tv.Reinterpret(c.byteDType())
		if err != nil {
			return Tensor{}, err
		}
		src = r
		if scale != nil {
			v, err := ScaleValue(*scale)
			if err != nil {
				return Tensor{}, err
			}
			factor, scaled = v, true
		}
		log.Warn().Str("tensor", tv.Name()).Stringer("as", src.DType()).Bool("scaled", scaled).
			Msg("U8 tensor reinterpreted and dequantized")
	case PolicyCast:
	}

	values, err := src.Float32s()
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to decode tensor %q: %w", tv.Name(), err)
	}
	if scaled {
		for i := range values {
			values[i] *= factor
		}
	}

	out, err := c.narrow(tv.Name(), src.Shape(), values)
	if err != nil {
		return Tensor{}, err
	}
	log.Debug().Str("tensor", tv.Name()).Stringer("from", tv.DType()).Stringer("to", out.DType()).
		Ints("shape", out.Shape()).Msg("converted")
	return out, nil
}

func (c Converter) narrow(name string, shape []int, values []float32) (Tensor, error) {
	switch t := c.target(); t {
	case dtype.F16:
		data := make([]float16.F16, len(values))
		for i, v := range values {
			data[i] = float16.F16FromFloat32(v)
		}
		return NewTensor(name, t, shape, data)
	default:
		data := make([]float16.BF16, len(values))
		for i, v := range values {
			data[i] = float16.BF16FromFloat32(v)
		}
		return NewTensor(name, dtype.BF16, shape, data)
	}
}
