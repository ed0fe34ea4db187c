// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline runs a whole archive conversion: load, convert every
// tensor, write and optionally verify the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nlpodyssey/stconvert"
	"github.com/nlpodyssey/stconvert/header"
	"github.com/nlpodyssey/stconvert/internal/config"
	"github.com/nlpodyssey/stconvert/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WeightScaleSuffix marks the scale of a weight tensor.
const WeightScaleSuffix = ".weight_scale"

// Result summarizes a successful run.
type Result struct {
	OutputPath string
	// TotalKeys is the number of tensors of the input archive.
	TotalKeys int
	// Converted lists the names of the output tensors, in output order.
	Converted []string
	// DroppedScales counts the scale tensors left out, by kind.
	DroppedScales map[string]int
	// MissingScales counts the 8-bit float tensors converted without scale.
	MissingScales int
	// AppliedScales counts the tensors multiplied by their scale.
	AppliedScales int
	// OutputBytes is the size of the tensor data written.
	OutputBytes int64
}

// Run converts the archive at cfg.InputPath and writes the result to
// cfg.OutputPath. Any failure aborts the run and leaves no output file.
//
// m may be nil, in which case a private set of metrics is used.
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if m == nil {
		m = metrics.New()
	}

	a, err := stconvert.ReadFile(cfg.InputPath)
	if err != nil {
		return Result{}, err
	}
	log.Info().Str("path", cfg.InputPath).Interface("metadata", metadataOrEmpty(a.Metadata())).Msg("header metadata")

	var scaleKeys, weightKeys []string
	for _, name := range a.Names() {
		if a.IsScale(name) {
			scaleKeys = append(scaleKeys, name)
		} else {
			weightKeys = append(weightKeys, name)
		}
	}
	log.Info().Int("total_keys", a.Len()).Int("scale_keys", len(scaleKeys)).
		Int("weight_keys", len(weightKeys)).Msg("archive loaded")

	conv := stconvert.Converter{Target: cfg.Target, ByteDType: cfg.ByteDType, Logger: &log}
	tensors, stats, err := convertAll(ctx, a, weightKeys, conv, cfg.Workers, m)
	if err != nil {
		return Result{}, err
	}

	dropped := countScaleKinds(scaleKeys)
	for kind, n := range dropped {
		m.RecordDroppedScales(kind, n)
	}
	log.Info().Int("count", dropped[metrics.KindInputScale]).Msg("dropped input_scale keys")
	log.Info().Int("count", dropped[metrics.KindWeightScale]).Msg("dropped weight_scale keys")
	if n := dropped[metrics.KindOtherScale]; n > 0 {
		log.Info().Int("count", n).Msg("dropped other scale keys")
	}
	log.Info().Int("applied", stats.applied).Int("missing", stats.missing).Msg("scales applied")

	if err = stconvert.WriteFile(cfg.OutputPath, tensors, a.Metadata()); err != nil {
		return Result{}, err
	}

	if cfg.Verify {
		if err = Verify(cfg.OutputPath, tensors); err != nil {
			if rmErr := os.Remove(cfg.OutputPath); rmErr != nil {
				err = errors.Join(err, &stconvert.IOError{Op: "remove", Path: cfg.OutputPath, Err: rmErr})
			}
			return Result{}, err
		}
		log.Info().Str("path", cfg.OutputPath).Int("tensors", len(tensors)).Msg("output verified")
	}

	outBytes, err := dataSize(tensors)
	if err != nil {
		return Result{}, err
	}
	m.RecordOutputBytes(outBytes)

	if cfg.MetricsFile != "" {
		if err = m.WriteTextfile(cfg.MetricsFile); err != nil {
			return Result{}, &stconvert.IOError{Op: "write metrics", Path: cfg.MetricsFile, Err: err}
		}
	}

	log.Info().Str("path", cfg.OutputPath).Msg("saved")

	names := make([]string, len(tensors))
	for i, t := range tensors {
		names[i] = t.Name()
	}
	return Result{
		OutputPath:    cfg.OutputPath,
		TotalKeys:     a.Len(),
		Converted:     names,
		DroppedScales: dropped,
		MissingScales: stats.missing,
		AppliedScales: stats.applied,
		OutputBytes:   outBytes,
	}, nil
}

// scaleStats counts, over the converted tensors, the scales multiplied in
// and the 8-bit float tensors that had none.
type scaleStats struct {
	applied int
	missing int
}

// convertAll converts the named tensors with at most workers goroutines.
// Each goroutine owns one slot of the returned slice.
func convertAll(
	ctx context.Context,
	a *stconvert.Archive,
	names []string,
	conv stconvert.Converter,
	workers int,
	m *metrics.Metrics,
) ([]stconvert.Tensor, scaleStats, error) {
	out := make([]stconvert.Tensor, len(names))
	policies := make([]stconvert.Policy, len(names))
	scaled := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tv, _ := a.Tensor(name)
			var scale *stconvert.TensorView
			if s, ok := a.FindScale(name); ok {
				scale = &s
			}
			policy := conv.Policy(tv.DType(), scale != nil)

			start := time.Now()
			t, err := conv.Convert(tv, scale)
			if err != nil {
				return fmt.Errorf("failed to convert tensor %q: %w", name, err)
			}
			out[i] = t
			policies[i] = policy
			scaled[i] = scale != nil && policy != stconvert.PolicyCast
			m.RecordConversion(policy.String(), policy == stconvert.PolicyUnscaled, time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, scaleStats{}, err
	}

	var stats scaleStats
	for i, p := range policies {
		if scaled[i] {
			stats.applied++
		}
		if p == stconvert.PolicyUnscaled {
			stats.missing++
		}
	}
	return out, stats, nil
}

func countScaleKinds(scaleKeys []string) map[string]int {
	counts := map[string]int{
		metrics.KindInputScale:  0,
		metrics.KindWeightScale: 0,
	}
	for _, name := range scaleKeys {
		switch {
		case strings.HasSuffix(name, stconvert.InputScaleSuffix):
			counts[metrics.KindInputScale]++
		case strings.HasSuffix(name, WeightScaleSuffix):
			counts[metrics.KindWeightScale]++
		default:
			counts[metrics.KindOtherScale]++
		}
	}
	return counts
}

func dataSize(tensors []stconvert.Tensor) (int64, error) {
	var total int64
	for _, t := range tensors {
		n, err := header.Tensor{Name: t.Name(), DType: t.DType(), Shape: t.Shape()}.ByteSize()
		if err != nil {
			return 0, err
		}
		total += int64(n)
	}
	return total, nil
}

func metadataOrEmpty(md header.Metadata) header.Metadata {
	if md == nil {
		return header.Metadata{}
	}
	return md
}
