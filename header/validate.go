// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"fmt"
)

// ValidationError reports a descriptor that does not fit the layout of
// the byte-buffer.
type ValidationError struct {
	Tensor string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tensor %q: %v", e.Tensor, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks that the Header describes a well-formed byte-buffer.
//
// Every tensor must be stored under its own name, which cannot be the
// reserved metadata key. Sorted by data-offsets, the tensors must tile
// the byte-buffer from offset 0 with no holes and no overlaps, and each
// range must be exactly as large as shape and dtype imply (an empty
// shape is a scalar). Sizes are computed without int overflow.
//
// On a layout failure the returned error is a *ValidationError.
func (h Header) Validate() error {
	if h.ByteBufferOffset < 0 {
		return fmt.Errorf("invalid byte-buffer offset negative value %d", h.ByteBufferOffset)
	}
	if err := h.Tensors.validateNames(); err != nil {
		return err
	}

	next := 0
	for _, t := range h.Tensors.Sorted() {
		end, err := t.validateRange(next)
		if err != nil {
			return &ValidationError{Tensor: t.Name, Err: err}
		}
		next = end
	}
	return nil
}

// ValidateBodySize reports whether the tensors describe exactly n bytes
// of data.
func (h Header) ValidateBodySize(n int) error {
	if size := h.DataSize(); size != n {
		return fmt.Errorf("tensors describe %d bytes of data, body has %d", size, n)
	}
	return nil
}

func (tm TensorMap) validateNames() error {
	for key, t := range tm {
		if key != t.Name {
			return fmt.Errorf("tensor names mismatch: TensorMap key %q, Tensor.Name %q", key, t.Name)
		}
		if key == metadataKey {
			return fmt.Errorf("tensor name %q is reserved", key)
		}
	}
	return nil
}

// validateRange checks t against the expected begin offset and returns
// its end offset.
func (t Tensor) validateRange(begin int) (int, error) {
	off := t.DataOffsets
	if off.Begin != begin {
		return 0, fmt.Errorf("expected data-offsets begin %d, actual %d", begin, off.Begin)
	}
	if off.End < off.Begin {
		return 0, fmt.Errorf("expected data-offsets end >= %d (begin), actual %d", off.Begin, off.End)
	}
	want, err := t.ByteSize()
	if err != nil {
		return 0, err
	}
	if got := off.Size(); got != want {
		return 0, fmt.Errorf("byte size computed from shape (%d) differs from data-offsets size (%d)", want, got)
	}
	return off.End, nil
}
