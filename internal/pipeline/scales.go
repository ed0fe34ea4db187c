// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/nlpodyssey/stconvert"
	"github.com/nlpodyssey/stconvert/dtype"
)

// ScaleInfo describes a tensor whose name mentions "scale".
type ScaleInfo struct {
	Name  string
	DType dtype.DType
	Shape []int
	// Value is set for single-element tensors only.
	Value *float32
}

// ScaleReport is the outcome of ListScales.
type ScaleReport struct {
	TotalKeys int
	Scales    []ScaleInfo
}

// ListScales reads the header of the archive at path and reports every
// tensor whose name contains "scale", case-insensitively, in byte-buffer
// order. Only the data of single-element tensors is read.
func ListScales(path string, headerSizeLimit int) (_ ScaleReport, err error) {
	f, err := os.Open(path)
	if err != nil {
		return ScaleReport{}, &stconvert.IOError{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &stconvert.IOError{Op: "close", Path: path, Err: closeErr}
		}
	}()

	la, err := stconvert.NewLazy(f, headerSizeLimit)
	if err != nil {
		return ScaleReport{}, fmt.Errorf("failed to parse archive %q: %w", path, err)
	}

	names := la.TensorNames()
	report := ScaleReport{TotalKeys: len(names)}
	for _, name := range names {
		if !strings.Contains(strings.ToLower(name), "scale") {
			continue
		}
		lt, _ := la.LazyTensor(name)
		info := ScaleInfo{Name: name, DType: lt.DType(), Shape: lt.Shape()}
		if isSingleElement(info.Shape) {
			tv, err := lt.View()
			if err != nil {
				return ScaleReport{}, fmt.Errorf("failed to read scale %q: %w", name, err)
			}
			v, err := stconvert.ScaleValue(tv)
			if err != nil {
				return ScaleReport{}, err
			}
			info.Value = &v
		}
		report.Scales = append(report.Scales, info)
	}
	return report, nil
}

func isSingleElement(shape []int) bool {
	for _, d := range shape {
		if d != 1 {
			return false
		}
	}
	return true
}
