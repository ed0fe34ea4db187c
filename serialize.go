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

// SerializableTensor is implemented by any tensor object whose data can be
// serialized to safetensors format.
type SerializableTensor interface {
	Name() string
	DType() dtype.DType
	Shape() []int
	io.WriterTo
}

var (
	_ SerializableTensor = Tensor{}
	_ SerializableTensor = TensorView{}
)

// Serialize the given tensors and additional metadata to safetensors format,
// writing the result to "w".
//
// Tensor data is laid out in slice order, with strictly increasing and
// contiguous offsets.
func Serialize[T SerializableTensor](w io.Writer, tensors []T, metadata map[string]string) error {
	tensorSlice, err := makeHeaderTensorSlice(tensors)
	if err != nil {
		return err
	}
	head, err := makeValidHeader(tensorSlice, metadata)
	if err != nil {
		return err
	}
	if _, err = header.Write(w, head); err != nil {
		return err
	}
	return writeTensors(w, tensors, tensorSlice)
}

// Marshal produces a complete archive from a table of tensor descriptors
// and the byte-buffer they describe. The descriptors must cover body
// exactly. Key order recorded in h is kept, so a header obtained from
// Parse is written back the way its writer laid it out.
func Marshal(h header.Header, body []byte) ([]byte, error) {
	h.ByteBufferOffset = 0
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("failed to generate a valid header: %w", err)
	}
	if err := h.ValidateBodySize(len(body)); err != nil {
		return nil, err
	}
	buf, err := header.Encode(h)
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}

func makeHeaderTensorSlice[T SerializableTensor](tensors []T) (header.TensorSlice, error) {
	out := make(header.TensorSlice, len(tensors))
	offset := 0
	for i, tensor := range tensors {
		var err error
		if out[i], offset, err = newHeaderTensor(tensor, offset); err != nil {
			return nil, fmt.Errorf("invalid tensor %q: %w", tensor.Name(), err)
		}
	}
	return out, nil
}

func newHeaderTensor(tensor SerializableTensor, beginOffset int) (_ header.Tensor, endOffset int, _ error) {
	t := header.Tensor{
		Name:  tensor.Name(),
		DType: tensor.DType(),
		Shape: tensor.Shape(),
	}
	size, err := t.ByteSize()
	if err != nil {
		return header.Tensor{}, 0, err
	}
	endOffset = beginOffset + size
	t.DataOffsets = header.DataOffsets{Begin: beginOffset, End: endOffset}
	return t, endOffset, nil
}

func makeValidHeader(tensors header.TensorSlice, metadata map[string]string) (header.Header, error) {
	tm := make(header.TensorMap, len(tensors))
	for _, t := range tensors {
		if _, ok := tm[t.Name]; ok {
			return header.Header{}, fmt.Errorf("duplicate tensor name %q", t.Name)
		}
		tm[t.Name] = t
	}
	head := header.Header{Tensors: tm, Metadata: metadata}
	if err := head.Validate(); err != nil {
		return header.Header{}, fmt.Errorf("failed to generate a valid header: %w", err)
	}
	return head, nil
}

func writeTensors[T SerializableTensor](w io.Writer, tensors []T, tensorSlice header.TensorSlice) error {
	for i, t := range tensors {
		ht := tensorSlice[i]
		if err := writeTensor(w, t, ht); err != nil {
			return fmt.Errorf("failed to write data of tensor %q: %w", ht.Name, err)
		}
	}
	return nil
}

func writeTensor(w io.Writer, t io.WriterTo, ht header.Tensor) error {
	n, err := t.WriteTo(w)
	if err != nil {
		return err
	}
	if expected := int64(ht.DataOffsets.Size()); n != expected {
		return fmt.Errorf("expected %d written bytes, actual %d", expected, n)
	}
	return nil
}
