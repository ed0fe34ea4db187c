// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the settings of a conversion run.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/internal/logger"
)

// OutputSuffix is inserted before the extension of the input path to
// derive the default output path.
const OutputSuffix = "-fp16"

// DefaultHeaderSizeLimit bounds the header read by the scales listing.
const DefaultHeaderSizeLimit = 100_000_000

// Config describes a conversion run.
type Config struct {
	InputPath string
	// OutputPath defaults to DefaultOutputPath(InputPath).
	OutputPath string

	Target    dtype.DType
	ByteDType dtype.DType
	Workers   int
	Verify    bool

	MetricsFile string

	LogLevel  string
	LogFormat string

	HeaderSizeLimit int
}

// Default returns a Config with every optional field set.
func Default() Config {
	return Config{
		Target:          dtype.BF16,
		ByteDType:       dtype.F8E4M3,
		Workers:         runtime.GOMAXPROCS(0),
		LogLevel:        "info",
		LogFormat:       logger.FormatConsole,
		HeaderSizeLimit: DefaultHeaderSizeLimit,
	}
}

// Validate checks the Config, filling OutputPath when empty.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("missing input path")
	}
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath(c.InputPath)
	}
	if filepath.Clean(c.OutputPath) == filepath.Clean(c.InputPath) {
		return fmt.Errorf("output path %q must differ from input path", c.OutputPath)
	}
	if c.Target != dtype.BF16 && c.Target != dtype.F16 {
		return fmt.Errorf("invalid target: %s (must be BF16 or F16)", c.Target)
	}
	if !c.ByteDType.IsFloat() {
		return fmt.Errorf("invalid u8 reinterpretation type: %s (must be a floating point type)", c.ByteDType)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid workers: %d (must be positive)", c.Workers)
	}
	if c.HeaderSizeLimit < 0 {
		return fmt.Errorf("invalid header size limit: %d (must be non-negative)", c.HeaderSizeLimit)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logger.FormatConsole, logger.FormatJSON, "":
	default:
		return fmt.Errorf("invalid log format: %q (must be %s or %s)", c.LogFormat, logger.FormatConsole, logger.FormatJSON)
	}
	return nil
}

// DefaultOutputPath derives the output path from the input path, inserting
// OutputSuffix before the extension: "model.safetensors" becomes
// "model-fp16.safetensors".
func DefaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + OutputSuffix + ext
}
