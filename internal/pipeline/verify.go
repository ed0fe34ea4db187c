// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nlpodyssey/stconvert"
	"github.com/zeebo/xxh3"
)

// ErrVerification is wrapped by errors reporting that a written archive
// does not hold the tensors it was written from.
var ErrVerification = errors.New("output verification failed")

// Verify parses the archive at path and checks that it holds exactly the
// given tensors, with identical type, shape and content digest.
func Verify(path string, tensors []stconvert.Tensor) error {
	a, err := stconvert.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	if got := a.Len(); got != len(tensors) {
		return fmt.Errorf("%w: expected %d tensors, found %d", ErrVerification, len(tensors), got)
	}
	if got := a.Metadata()[stconvert.FormatKey]; got != stconvert.FormatPT {
		return fmt.Errorf("%w: expected metadata %s=%q, found %q", ErrVerification, stconvert.FormatKey, stconvert.FormatPT, got)
	}

	for _, t := range tensors {
		tv, ok := a.Tensor(t.Name())
		if !ok {
			return fmt.Errorf("%w: tensor %q not found", ErrVerification, t.Name())
		}
		if tv.DType() != t.DType() || !slices.Equal(tv.Shape(), t.Shape()) {
			return fmt.Errorf("%w: tensor %q: expected %s%v, found %s%v",
				ErrVerification, t.Name(), t.DType(), t.Shape(), tv.DType(), tv.Shape())
		}
		if want, got := Digest(t.Bytes()), Digest(tv.Data()); want != got {
			return fmt.Errorf("%w: tensor %q: digest mismatch: expected %016x, found %016x",
				ErrVerification, t.Name(), want, got)
		}
	}
	return nil
}

// Digest returns the xxh3 64-bit hash of tensor data.
func Digest(data []byte) uint64 {
	return xxh3.Hash(data)
}
