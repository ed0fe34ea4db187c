// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command stconvert converts a safetensors archive holding 8-bit float
// quantized tensors into a BF16 (or F16) archive.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/nlpodyssey/stconvert/dtype"
	"github.com/nlpodyssey/stconvert/internal/config"
	"github.com/nlpodyssey/stconvert/internal/logger"
	"github.com/nlpodyssey/stconvert/internal/metrics"
	"github.com/nlpodyssey/stconvert/internal/pipeline"
	"github.com/urfave/cli/v3"
)

const usageLine = "usage: stconvert [options] <input.safetensors>"

var errMissingInput = errors.New("missing input path")

// reportedError is an error already written to the log.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := newCommand(stdout, stderr).Run(ctx, args)
	if err == nil {
		return 0
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		_, _ = fmt.Fprintf(stderr, "stconvert: %v\n", err)
	}
	return 1
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	defaults := config.Default()
	var (
		cfg       = defaults
		target    string
		byteDType string
	)

	return &cli.Command{
		Name:      "stconvert",
		Usage:     "dequantize an FP8 safetensors archive to BF16 or F16",
		ArgsUsage: "<input.safetensors>",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output path (default: <input>-fp16.safetensors)",
				Sources:     cli.EnvVars("STCONVERT_OUTPUT"),
				Destination: &cfg.OutputPath,
			},
			&cli.StringFlag{
				Name:        "target",
				Usage:       "target type: BF16 or F16",
				Value:       defaults.Target.String(),
				Sources:     cli.EnvVars("STCONVERT_TARGET"),
				Destination: &target,
			},
			&cli.StringFlag{
				Name:        "u8-as",
				Usage:       "type U8 tensors are reinterpreted as: F8_E4M3, F8_E5M2, F16, BF16 or F32",
				Value:       defaults.ByteDType.String(),
				Sources:     cli.EnvVars("STCONVERT_U8_AS"),
				Destination: &byteDType,
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "number of tensors converted concurrently",
				Value:       defaults.Workers,
				Sources:     cli.EnvVars("STCONVERT_WORKERS"),
				Destination: &cfg.Workers,
			},
			&cli.BoolFlag{
				Name:        "verify",
				Usage:       "re-read the output and compare tensor digests",
				Sources:     cli.EnvVars("STCONVERT_VERIFY"),
				Destination: &cfg.Verify,
			},
			&cli.StringFlag{
				Name:        "metrics-file",
				Usage:       "write Prometheus metrics to this textfile",
				Sources:     cli.EnvVars("STCONVERT_METRICS_FILE"),
				Destination: &cfg.MetricsFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "debug, info, warn or error",
				Value:       defaults.LogLevel,
				Sources:     cli.EnvVars("STCONVERT_LOG_LEVEL"),
				Destination: &cfg.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "console or json",
				Value:       defaults.LogFormat,
				Sources:     cli.EnvVars("STCONVERT_LOG_FORMAT"),
				Destination: &cfg.LogFormat,
			},
		},
		Commands: []*cli.Command{scalesCommand(stdout)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				_, _ = fmt.Fprintln(stderr, usageLine)
				if cmd.Args().Len() == 0 {
					return errMissingInput
				}
				return fmt.Errorf("expected one input path, got %d arguments", cmd.Args().Len())
			}
			cfg.InputPath = cmd.Args().First()

			var err error
			if cfg.Target, err = dtype.Parse(strings.ToUpper(target)); err != nil {
				return fmt.Errorf("invalid --target: %w", err)
			}
			if cfg.ByteDType, err = dtype.Parse(strings.ToUpper(byteDType)); err != nil {
				return fmt.Errorf("invalid --u8-as: %w", err)
			}
			if err = cfg.Validate(); err != nil {
				return err
			}

			log, err := logger.New(stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			if _, err = pipeline.Run(ctx, cfg, log, metrics.New()); err != nil {
				log.Error().Err(err).Str("input", cfg.InputPath).Msg("conversion failed")
				return reportedError{err}
			}
			return nil
		},
	}
}

func scalesCommand(stdout io.Writer) *cli.Command {
	var (
		cfg   = config.Default()
		limit int
	)
	return &cli.Command{
		Name:      "scales",
		Usage:     "list the scale tensors of an archive",
		ArgsUsage: "<input.safetensors>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "header-limit",
				Usage:       "maximum header size in bytes (0 = no limit)",
				Value:       cfg.HeaderSizeLimit,
				Sources:     cli.EnvVars("STCONVERT_HEADER_LIMIT"),
				Destination: &cfg.HeaderSizeLimit,
			},
			&cli.IntFlag{
				Name:        "max",
				Usage:       "list at most this many scale tensors (0 = no limit)",
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected one input path, got %d arguments", cmd.Args().Len())
			}
			cfg.InputPath = cmd.Args().First()
			if err := cfg.Validate(); err != nil {
				return err
			}
			report, err := pipeline.ListScales(cfg.InputPath, cfg.HeaderSizeLimit)
			if err != nil {
				return err
			}
			printScales(stdout, report, limit)
			return nil
		},
	}
}

func printScales(w io.Writer, report pipeline.ScaleReport, limit int) {
	_, _ = fmt.Fprintf(w, "Total keys: %d\n", report.TotalKeys)
	_, _ = fmt.Fprintf(w, "Scale keys found: %d\n", len(report.Scales))
	for i, s := range report.Scales {
		if limit > 0 && i >= limit {
			break
		}
		if s.Value != nil {
			_, _ = fmt.Fprintf(w, "  %s: %s %v = %g\n", s.Name, s.DType, shapeString(s.Shape), *s.Value)
		} else {
			_, _ = fmt.Fprintf(w, "  %s: %s %v\n", s.Name, s.DType, shapeString(s.Shape))
		}
	}
}

func shapeString(shape []int) string {
	if shape == nil {
		return "[]"
	}
	return fmt.Sprint(shape)
}
