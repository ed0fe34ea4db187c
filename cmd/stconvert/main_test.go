// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/stconvert"
	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	w, err := stconvert.NewTensorView("w", dtype.F8E4M3, []int{2}, []byte{0x38, 0x44})
	require.NoError(t, err)
	s, err := stconvert.NewTensorView("w_scale", dtype.F32, nil, []byte{0, 0, 0, 0x40})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, stconvert.Serialize(&buf, []stconvert.TensorView{w, s}, nil))
	path := filepath.Join(dir, "model.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func runCmd(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	code = run(context.Background(), append([]string{"stconvert"}, args...), &outBuf, &errBuf)
	return code, outBuf.String(), errBuf.String()
}

func TestRun_missingInput(t *testing.T) {
	code, _, stderr := runCmd(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, usageLine)
	assert.Contains(t, stderr, "missing input path")
}

func TestRun_convert(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)

	code, _, stderr := runCmd(t, "--log-format", "json", "--verify", input)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, `"message":"saved"`)

	a, err := stconvert.ReadFile(filepath.Join(dir, "model-fp16.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, a.Names())
	tv, _ := a.Tensor("w")
	assert.Equal(t, dtype.BF16, tv.DType())
}

func TestRun_flagsAndEnv(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)
	output := filepath.Join(dir, "out.safetensors")
	metricsFile := filepath.Join(dir, "stconvert.prom")
	t.Setenv("STCONVERT_TARGET", "f16")

	code, _, stderr := runCmd(t, "-o", output, "--workers", "2", "--metrics-file", metricsFile, "--log-level", "error", input)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	a, err := stconvert.ReadFile(output)
	require.NoError(t, err)
	tv, _ := a.Tensor("w")
	assert.Equal(t, dtype.F16, tv.DType())

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stconvert_tensors_converted_total{policy="scaled"} 1`)
}

func TestRun_invalidFlags(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)

	code, _, stderr := runCmd(t, "--target", "F32", input)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid target")

	code, _, stderr = runCmd(t, "--u8-as", "F9", input)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid --u8-as")

	code, _, stderr = runCmd(t, "--log-format", "xml", input)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid log format")
}

func TestRun_conversionFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "model.safetensors")
	require.NoError(t, os.WriteFile(input, []byte("\xff\x00\x00\x00\x00\x00\x00\x00{}"), 0o644))

	code, _, stderr := runCmd(t, "--log-format", "json", input)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `"message":"conversion failed"`)
	assert.Contains(t, stderr, "malformed header")
	assert.NotContains(t, stderr, "stconvert: ")

	_, err := os.Stat(filepath.Join(dir, "model-fp16.safetensors"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_scales(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)

	code, stdout, stderr := runCmd(t, "scales", input)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Total keys: 2\nScale keys found: 1\n  w_scale: F32 [] = 2\n", stdout)

	code, _, _ = runCmd(t, "scales")
	assert.Equal(t, 1, code)
}

func TestRun_scalesHeaderLimit(t *testing.T) {
	input := writeInput(t, t.TempDir())

	code, _, stderr := runCmd(t, "scales", "--header-limit", "-1", input)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid header size limit")

	code, _, stderr = runCmd(t, "scales", "--header-limit", "8", input)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "header")

	t.Setenv("STCONVERT_HEADER_LIMIT", "8")
	code, _, _ = runCmd(t, "scales", input)
	assert.Equal(t, 1, code)

	code, _, stderr = runCmd(t, "scales", "--header-limit", "0", input)
	assert.Equal(t, 0, code, stderr)
}
