// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"fmt"
	"strings"

	"github.com/nlpodyssey/stconvert/header"
)

// ScaleSuffix is appended to the full name of a quantized tensor to form
// the name of its scale tensor: "blocks.0.proj.weight" is paired with
// "blocks.0.proj.weight_scale".
const ScaleSuffix = "_scale"

// InputScaleSuffix marks activation scales. They are never paired with a
// tensor of the archive and are dropped on conversion.
const InputScaleSuffix = ".input_scale"

// ScaleName returns the name of the scale tensor paired with name.
func ScaleName(name string) string {
	return name + ScaleSuffix
}

// FindScale looks up the scale tensor of the tensor called name. The
// lookup is exact: the scale name is always the full name plus ScaleSuffix.
func FindScale(name string, tensors header.TensorMap) (header.Tensor, bool) {
	t, ok := tensors[ScaleName(name)]
	return t, ok
}

// FindScale returns the view of the scale tensor paired with name, if any.
func (a *Archive) FindScale(name string) (TensorView, bool) {
	t, ok := FindScale(name, a.header.Tensors)
	if !ok {
		return TensorView{}, false
	}
	return a.view(t), true
}

// IsScale reports whether the tensor called name is a scale tensor, which
// is consumed by the conversion rather than converted: either the scale of
// another tensor of the archive, or an activation scale.
func (a *Archive) IsScale(name string) bool {
	if strings.HasSuffix(name, InputScaleSuffix) {
		return true
	}
	base, ok := strings.CutSuffix(name, ScaleSuffix)
	if !ok {
		return false
	}
	_, exists := a.header.Tensors[base]
	return exists
}

// ScaleValue returns the single value held by a scale tensor, widened to
// float32. Scale tensors with more than one element (per-channel or
// per-block scales) are rejected with ErrUnsupportedScale.
func ScaleValue(scale TensorView) (float32, error) {
	if n := scale.NumElements(); n != 1 {
		return 0, fmt.Errorf("%w: %q has %d elements, expected exactly one", ErrUnsupportedScale, scale.Name(), n)
	}
	values, err := scale.Float32s()
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrUnsupportedScale, scale.Name(), err)
	}
	return values[0], nil
}
