// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/nlpodyssey/stconvert/header"
)

const maxHeaderSize = 100_000_000

// Archive is a whole safetensors archive held in memory: the parsed header
// and the byte-buffer that tensor descriptors point into.
//
// An Archive is immutable; views obtained from it share its memory.
type Archive struct {
	header header.Header
	// raw is the header section as read, size prefix included.
	raw  []byte
	data []byte
}

// Parse parses a byte-buffer representing the whole safetensors archive.
// No tensor data is copied.
//
// All failures wrap ErrMalformedHeader. Besides syntax errors, Parse
// rejects archives whose tensor ranges are not contiguous, overlap, do
// not match shape and dtype, or do not end exactly at the end of buffer.
func Parse(buffer []byte) (*Archive, error) {
	if len(buffer) < 8 {
		return nil, malformed(errors.New("header too small"))
	}
	n := binary.LittleEndian.Uint64(buffer)
	if n > maxHeaderSize {
		return nil, malformed(fmt.Errorf("header too large: max %d, actual %d", maxHeaderSize, n))
	}
	if n > uint64(len(buffer)-8) {
		return nil, malformed(fmt.Errorf("invalid header length %d: only %d bytes follow", n, len(buffer)-8))
	}

	h, err := header.Read(bytes.NewReader(buffer[:8+n]))
	if err != nil {
		return nil, malformed(err)
	}
	if err = h.Validate(); err != nil {
		return nil, malformed(err)
	}
	if end := h.ByteBufferOffset + h.DataSize(); end != len(buffer) {
		return nil, malformed(fmt.Errorf("tensor data ends at byte %d, archive size is %d", end, len(buffer)))
	}

	return &Archive{
		header: h,
		raw:    buffer[:h.ByteBufferOffset:h.ByteBufferOffset],
		data:   buffer[h.ByteBufferOffset:],
	}, nil
}

// ReadFile loads the whole archive at path in memory and parses it.
func ReadFile(path string) (*Archive, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	a, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse archive %q: %w", path, err)
	}
	return a, nil
}

// Header returns the parsed header. The returned value shares its maps
// with the Archive and must not be modified.
func (a *Archive) Header() header.Header {
	return a.header
}

// Metadata returns the free-form key/value string pairs as read from the
// header. It can be nil.
func (a *Archive) Metadata() header.Metadata {
	return a.header.Metadata
}

// Len returns how many tensors are stored within the Archive.
func (a *Archive) Len() int {
	return len(a.header.Tensors)
}

// Names returns the names of all tensors, in byte-buffer order.
func (a *Archive) Names() []string {
	return a.header.Tensors.Sorted().Names()
}

// Tensor returns the view of a specific tensor by name.
// The returned boolean flag reports whether the tensor was found.
func (a *Archive) Tensor(name string) (TensorView, bool) {
	t, ok := a.header.Tensors[name]
	if !ok {
		return TensorView{}, false
	}
	return a.view(t), true
}

// Tensors returns the views of all tensors, in byte-buffer order.
func (a *Archive) Tensors() []TensorView {
	ts := a.header.Tensors.Sorted()
	views := make([]TensorView, len(ts))
	for i, t := range ts {
		views[i] = a.view(t)
	}
	return views
}

func (a *Archive) view(t header.Tensor) TensorView {
	return TensorView{
		name:  t.Name,
		dType: t.DType,
		shape: t.Shape,
		data:  a.data[t.DataOffsets.Begin:t.DataOffsets.End:t.DataOffsets.End],
	}
}

// Marshal serializes the Archive back to bytes. Since an Archive cannot
// be modified, the header section is emitted exactly as it was parsed and
// the output is byte-identical to the input of Parse.
func (a *Archive) Marshal() ([]byte, error) {
	out := make([]byte, 0, len(a.raw)+len(a.data))
	out = append(out, a.raw...)
	return append(out, a.data...), nil
}
