// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"errors"
	"fmt"

	"github.com/nlpodyssey/stconvert/dtype"
)

var (
	// ErrMalformedHeader is wrapped by every error caused by an archive
	// whose header cannot be parsed, or whose tensor descriptors do not
	// describe the archive body.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrUnsupportedScale is wrapped by errors caused by a scale tensor
	// that is not a single number.
	ErrUnsupportedScale = errors.New("unsupported scale tensor")
)

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedHeader, err)
}

// ReinterpretError is returned when the bytes of a tensor cannot be viewed
// as elements of another data type.
type ReinterpretError struct {
	Name string
	From dtype.DType
	To   dtype.DType
	// Len is the byte length of the tensor data.
	Len int
}

func (e *ReinterpretError) Error() string {
	return fmt.Sprintf("cannot reinterpret tensor %q from %s to %s: %d bytes are not a whole number of %d-byte elements",
		e.Name, e.From, e.To, e.Len, e.To.Size())
}

// IOError reports a filesystem failure together with the path involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
