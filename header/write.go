// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/nlpodyssey/stconvert/dtype"
)

type jsonTensor struct {
	DType       dtype.DType `json:"dtype"`
	Shape       Shape       `json:"shape"`
	DataOffsets DataOffsets `json:"data_offsets"`
}

// MarshalJSON encodes the Header as the bare safetensors JSON object.
//
// Keys follow KeyOrder and MetadataOrder when they are complete, so a
// header read from a writer that puts "__metadata__" first and lists
// tensors in byte-buffer order is reproduced as such. Otherwise keys are
// sorted and "__metadata__" is omitted when empty.
func (h Header) MarshalJSON() ([]byte, error) {
	keys := h.KeyOrder
	if !h.keyOrderComplete() {
		keys = h.sortedKeys()
	}

	buf := []byte{'{'}
	for i, key := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendString(buf, key)
		buf = append(buf, ':')

		if key == metadataKey {
			buf = h.appendMetadata(buf)
			continue
		}
		t := h.Tensors[key]
		b, err := json.Marshal(jsonTensor{DType: t.DType, Shape: t.Shape, DataOffsets: t.DataOffsets})
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return append(buf, '}'), nil
}

func (h Header) keyOrderComplete() bool {
	if len(h.KeyOrder) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(h.KeyOrder))
	hasMeta := false
	for _, key := range h.KeyOrder {
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		if key == metadataKey {
			hasMeta = true
		} else if _, ok := h.Tensors[key]; !ok {
			return false
		}
	}
	return len(seen) == len(h.Tensors)+btoi(hasMeta) && (hasMeta || len(h.Metadata) == 0)
}

func (h Header) sortedKeys() []string {
	keys := make([]string, 0, len(h.Tensors)+1)
	if len(h.Metadata) > 0 {
		keys = append(keys, metadataKey)
	}
	for name := range h.Tensors {
		keys = append(keys, name)
	}
	slices.Sort(keys)
	return keys
}

func (h Header) appendMetadata(buf []byte) []byte {
	keys := h.MetadataOrder
	if !sameKeys(keys, h.Metadata) {
		keys = slices.Sorted(maps.Keys(h.Metadata))
	}
	buf = append(buf, '{')
	for i, key := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendString(buf, key)
		buf = append(buf, ':')
		buf = appendString(buf, h.Metadata[key])
	}
	return append(buf, '}')
}

func sameKeys(keys []string, m Metadata) bool {
	if len(keys) != len(m) {
		return false
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

// appendString appends s as a JSON string, leaving <, > and & unescaped.
func appendString(buf []byte, s string) []byte {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	return append(buf, bytes.TrimSuffix(b.Bytes(), []byte{'\n'})...)
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

var headerPadding = [8]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

// Encode returns the complete header section: the 8-byte little-endian
// size followed by the JSON object, right-padded with spaces so that the
// byte-buffer starts on an 8-byte boundary.
func Encode(h Header) ([]byte, error) {
	jsonHeader, err := h.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to JSON-encode header: %w", err)
	}
	toAlign := (8 - len(jsonHeader)%8) % 8

	buf := make([]byte, 0, 8+len(jsonHeader)+toAlign)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(jsonHeader)+toAlign))
	buf = append(buf, jsonHeader...)
	buf = append(buf, headerPadding[:toAlign]...)
	return buf, nil
}

// Write encodes the header section and writes it to w, returning the
// number of bytes written, which is the ByteBufferOffset of the header.
func Write(w io.Writer, h Header) (int, error) {
	buf, err := Encode(h)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("failed to write header: %w", err)
	}
	return n, nil
}
