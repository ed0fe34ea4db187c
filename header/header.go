// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package header reads, writes and validates the header of a safetensors
// archive: an 8-byte little-endian length followed by a JSON object that
// maps tensor names to their descriptors, plus an optional "__metadata__"
// object of free-form strings.
package header

// Header provides tensors information and metadata, as defined by
// the safetensors format.
type Header struct {
	Tensors  TensorMap
	Metadata Metadata
	// ByteBufferOffset indicates the byte index position where the byte-buffer
	// is expected to start, relative to the beginning of the whole
	// safetensors data stream (or file).
	ByteBufferOffset int
	// KeyOrder lists the top-level keys, "__metadata__" included, in the
	// order they were read. MetadataOrder does the same for the metadata
	// keys. MarshalJSON follows an order only when it names every key
	// exactly once, and sorts keys otherwise.
	KeyOrder      []string
	MetadataOrder []string
}

// DataSize returns the size of the byte-buffer described by the tensors,
// that is the highest DataOffsets.End value (0 if there are no tensors).
//
// On a valid Header it coincides with the sum of all tensor byte sizes.
func (h Header) DataSize() int {
	size := 0
	for _, t := range h.Tensors {
		size = max(size, t.DataOffsets.End)
	}
	return size
}

// Metadata is a set of free-form key/value string pairs.
type Metadata map[string]string

// Clone returns a shallow copy of m. The copy of a nil Metadata is an
// empty, non-nil Metadata.
func (m Metadata) Clone() Metadata {
	c := make(Metadata, len(m)+1)
	for k, v := range m {
		c[k] = v
	}
	return c
}
