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

// LazyArchive gives access to the header of a safetensors stream, loading
// the data of individual tensors only on demand.
type LazyArchive struct {
	rs     io.ReadSeeker
	header header.Header
	// dataOffset is the byte-buffer offset relative to the start of rs
	dataOffset int64
}

// LazyTensor describes a tensor of a LazyArchive and allows lazy loading
// its data.
//
// It only retains the header descriptor and a reference to the underlying
// io.ReadSeeker.
type LazyTensor struct {
	rs io.ReadSeeker
	t  header.Tensor
	// dataOffset is the byte-buffer offset relative to the start of rs
	dataOffset int64
}

// NewLazy reads from "rs" the safetensors header and validates it, then
// returns a new LazyArchive in case of success, otherwise nil and an error.
//
// If headerSizeLimit is set to a positive number, its value is used to
// limit the reading of safetensors header, size prefix included. A value
// of zero, or a negative number, have no limiting effects.
//
// The current "seek" position of "rs" is used as a base for all further
// seek-based operations to read tensor data. The io.ReadSeeker must remain
// available for as long as the LazyArchive and any LazyTensor obtained
// from it are in use.
func NewLazy(rs io.ReadSeeker, headerSizeLimit int) (*LazyArchive, error) {
	initialOffset, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial offset: %w", err)
	}

	head, err := readValidHeader(rs, headerSizeLimit)
	if err != nil {
		return nil, malformed(err)
	}

	byteBufferOffset, err := checkedAdd(initialOffset, int64(head.ByteBufferOffset))
	if err != nil {
		return nil, fmt.Errorf("failed to calculate total byte-buffer offset: %w", err)
	}

	return &LazyArchive{
		rs:         rs,
		header:     head,
		dataOffset: byteBufferOffset,
	}, nil
}

func readValidHeader(r io.Reader, sizeLimit int) (header.Header, error) {
	if sizeLimit > 0 {
		r = io.LimitReader(r, int64(sizeLimit))
	}
	head, err := header.Read(r)
	if err != nil {
		return header.Header{}, fmt.Errorf("failed to read safetensors header: %w", err)
	}
	if err = head.Validate(); err != nil {
		return header.Header{}, fmt.Errorf("safetensors header is invalid: %w", err)
	}
	return head, nil
}

// Header returns the parsed header. It must not be modified.
func (la *LazyArchive) Header() header.Header {
	return la.header
}

// Metadata returns the free-form key/value string pairs as read from the
// safetensors header. It can be nil.
//
// It returns the same value retained internally, without copy.
func (la *LazyArchive) Metadata() header.Metadata {
	return la.header.Metadata
}

// TensorNames returns the names of all tensors, in byte-buffer order.
//
// If there are no tensors it returns nil.
func (la *LazyArchive) TensorNames() []string {
	if len(la.header.Tensors) == 0 {
		return nil
	}
	return la.header.Tensors.Sorted().Names()
}

// LazyTensor returns a LazyTensor by its name, and whether it has been found.
//
// If ok is false, the LazyTensor is the zero-value, and must not be used.
func (la *LazyArchive) LazyTensor(name string) (_ LazyTensor, ok bool) {
	t, ok := la.header.Tensors[name]
	if !ok {
		return LazyTensor{}, false
	}
	return LazyTensor{
		rs:         la.rs,
		t:          t,
		dataOffset: la.dataOffset,
	}, true
}

// Name returns the name of the tensor.
func (lt LazyTensor) Name() string {
	return lt.t.Name
}

// DType returns the safetensors-specific data type of the tensor.
func (lt LazyTensor) DType() dtype.DType {
	return lt.t.DType
}

// Shape returns a copy of the shape of the tensor, or nil for scalars.
func (lt LazyTensor) Shape() []int {
	return lt.t.Shape.Clone()
}

// View reads the data of the tensor and returns it as a TensorView that
// owns its own memory.
func (lt LazyTensor) View() (TensorView, error) {
	data, err := lt.ReadData()
	if err != nil {
		return TensorView{}, err
	}
	return NewTensorView(lt.t.Name, lt.t.DType, lt.t.Shape, data)
}

// ReadData reads and returns the raw []byte data of the tensor.
//
// Safetensors data is expected to be little-endian and row-major ("C")
// ordered. There is no striding.
func (lt LazyTensor) ReadData() ([]byte, error) {
	size := lt.t.DataOffsets.Size()
	if size == 0 {
		return nil, nil
	}
	if err := lt.seekTensorData(); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(lt.rs, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return data, nil
}

// WriteTo reads raw tensor data and copies it to the given io.Writer.
// This method satisfies io.WriterTo interface.
func (lt LazyTensor) WriteTo(w io.Writer) (int64, error) {
	size := lt.t.DataOffsets.Size()
	if size == 0 {
		return 0, nil
	}
	if err := lt.seekTensorData(); err != nil {
		return 0, err
	}
	return io.CopyN(w, lt.rs, int64(size))
}

func (lt LazyTensor) seekTensorData() error {
	offset, err := checkedAdd(lt.dataOffset, int64(lt.t.DataOffsets.Begin))
	if err != nil {
		return fmt.Errorf("failed to calculate tensor data offset: %w", err)
	}
	if _, err = lt.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to tensor data offset: %w", err)
	}
	return nil
}
