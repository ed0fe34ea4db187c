// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/nlpodyssey/stconvert/dtype"
)

const metadataKey = "__metadata__"

// rawObject is a tensor descriptor decoded with json.Number for numbers.
type rawObject map[string]any

// Read reads the size prefix and the JSON header from r, leaving r
// positioned at the first byte-buffer byte.
//
// The returned Header is not validated. Read fails on headers larger
// than math.MaxInt; callers wanting a lower cap wrap r in an
// io.LimitedReader.
func Read(r io.Reader) (Header, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read header size: %w", err)
	}
	size := binary.LittleEndian.Uint64(prefix[:])
	switch {
	case size < 2: // "{}"
		return Header{}, fmt.Errorf("header size too small: %d", size)
	case size > math.MaxInt-8:
		return Header{}, fmt.Errorf("header size too large: %d", size)
	}

	h, err := decode(io.LimitReader(r, int64(size)), int64(size))
	if err != nil {
		return Header{}, err
	}
	h.ByteBufferOffset = 8 + int(size)
	return h, nil
}

// UnmarshalJSON decodes a Header from the bare JSON object, without the
// size prefix. ByteBufferOffset is left to zero.
func (h *Header) UnmarshalJSON(data []byte) error {
	decoded, err := decode(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

func decode(r io.Reader, size int64) (Header, error) {
	data, err := io.ReadAll(r)
	if err == nil && int64(len(data)) < size {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return Header{}, fmt.Errorf("failed to JSON-decode header: %w", err)
	}
	if !utf8.Valid(data) {
		return Header{}, errors.New("header is not valid UTF-8")
	}

	keys, values, err := decodeObject[json.RawMessage](data, true)
	if err != nil {
		return Header{}, fmt.Errorf("failed to JSON-decode header: %w", err)
	}

	h := Header{KeyOrder: keys}
	if rawMeta, ok := values[metadataKey]; ok {
		delete(values, metadataKey)
		if h.MetadataOrder, h.Metadata, err = decodeMetadata(rawMeta); err != nil {
			return Header{}, fmt.Errorf("failed to interpret header metadata: %w", err)
		}
	}
	if len(values) == 0 {
		return h, nil
	}
	h.Tensors = make(TensorMap, len(values))
	for name, raw := range values {
		var obj rawObject
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err = dec.Decode(&obj); err != nil {
			return Header{}, fmt.Errorf("failed to interpret header tensor %q: %w", name, err)
		}
		t, err := obj.tensor(name)
		if err != nil {
			return Header{}, fmt.Errorf("failed to interpret header tensor %q: %w", name, err)
		}
		h.Tensors[name] = t
	}
	return h, nil
}

// decodeObject decodes a single JSON object, returning its keys in the
// order they appear. Duplicate keys are rejected. With trailing set, only
// whitespace may follow the object.
func decodeObject[V any](data []byte, trailing bool) ([]string, map[string]V, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, nil, err
	}
	if tok != json.Delim('{') {
		return nil, nil, errors.New("expected a JSON object")
	}

	var keys []string
	values := make(map[string]V)
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)
		if _, dup := values[key]; dup {
			return nil, nil, fmt.Errorf("duplicate key %q", key)
		}
		var v V
		if err = dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values[key] = v
	}
	if _, err = dec.Token(); err != nil {
		return nil, nil, err
	}

	if trailing {
		if off := dec.InputOffset(); off != int64(len(data)) {
			if _, err := dec.Token(); err == nil {
				return nil, nil, fmt.Errorf("unexpected data at byte offset %d", off)
			} else if err != io.EOF {
				return nil, nil, err
			}
		}
	}
	return keys, values, nil
}

func decodeMetadata(raw json.RawMessage) ([]string, Metadata, error) {
	keys, values, err := decodeObject[any](raw, false)
	if err != nil {
		return nil, nil, err
	}
	m := make(Metadata, len(values))
	for _, key := range keys {
		s, ok := values[key].(string)
		if !ok {
			return nil, nil, fmt.Errorf("found non-string value for key %q", key)
		}
		m[key] = s
	}
	return keys, m, nil
}

func (o rawObject) tensor(name string) (Tensor, error) {
	dt, err := o.dtype()
	if err != nil {
		return Tensor{}, err
	}
	shape, err := o.ints("shape", -1)
	if err != nil {
		return Tensor{}, err
	}
	offsets, err := o.ints("data_offsets", 2)
	if err != nil {
		return Tensor{}, err
	}
	if len(o) != 3 {
		return Tensor{}, errors.New("JSON object contains unknown keys")
	}
	return Tensor{
		Name:        name,
		DType:       dt,
		Shape:       shape,
		DataOffsets: DataOffsets{Begin: offsets[0], End: offsets[1]},
	}, nil
}

func (o rawObject) dtype() (dtype.DType, error) {
	v, ok := o["dtype"]
	if !ok {
		return 0, errors.New(`"dtype" is missing`)
	}
	s, ok := v.(string)
	if !ok {
		return 0, errors.New(`found non-string "dtype" value`)
	}
	dt, err := dtype.Parse(s)
	if err != nil {
		return 0, fmt.Errorf(`invalid "dtype" value: %q`, s)
	}
	return dt, nil
}

// ints returns the array of non-negative integers stored under key.
// A non-negative wantLen enforces the array length.
func (o rawObject) ints(key string, wantLen int) ([]int, error) {
	v, ok := o[key]
	if !ok {
		return nil, fmt.Errorf("%q is missing", key)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("found non-array %q value", key)
	}
	if wantLen >= 0 && len(items) != wantLen {
		return nil, fmt.Errorf("bad %q length: expected %d, actual %d", key, wantLen, len(items))
	}
	out := make([]int, len(items))
	for i, item := range items {
		n, err := nonNegInt(item)
		if err != nil {
			return nil, fmt.Errorf("failed to interpret %q value at index %d: %w", key, i, err)
		}
		out[i] = n
	}
	return out, nil
}

func nonNegInt(v any) (int, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, errors.New("value is not a number")
	}
	n, err := strconv.ParseInt(num.String(), 10, strconv.IntSize)
	if err != nil {
		return 0, fmt.Errorf("failed to convert value %q to int: %w", num.String(), err)
	}
	if n < 0 {
		return 0, fmt.Errorf("value is negative: %d", n)
	}
	return int(n), nil
}
