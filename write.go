// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stconvert

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/stconvert/header"
)

const (
	// FormatKey is the metadata key naming the framework of the archive.
	FormatKey = "format"
	// FormatPT is the value of FormatKey written by WriteFile.
	FormatPT = "pt"
)

// WriteFile serializes tensors and metadata to the file at path, creating
// or replacing it.
//
// A copy of metadata is written with FormatKey set to FormatPT. Data is
// first written to a temporary file in the same directory, which is then
// renamed to path; on failure the temporary file is removed and path is
// left untouched.
func WriteFile[T SerializableTensor](path string, tensors []T, metadata map[string]string) (err error) {
	meta := header.Metadata(metadata).Clone()
	meta[FormatKey] = FormatPT

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriterSize(f, 1<<20)
	if err = Serialize(bw, tensors, meta); err != nil {
		return fmt.Errorf("failed to serialize %q: %w", path, err)
	}
	if err = bw.Flush(); err != nil {
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err = f.Sync(); err != nil {
		return &IOError{Op: "sync", Path: tmpName, Err: err}
	}
	if err = f.Chmod(0o644); err != nil {
		return &IOError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err = f.Close(); err != nil {
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
