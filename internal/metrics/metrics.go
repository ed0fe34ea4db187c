// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics collects Prometheus metrics about a single conversion
// run, optionally dumping them to a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels of DroppedScales.
const (
	KindWeightScale = "weight_scale"
	KindInputScale  = "input_scale"
	KindOtherScale  = "other"
)

// Metrics holds the collectors of one run, registered on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	TensorsConverted   *prometheus.CounterVec
	MissingScales      prometheus.Counter
	DroppedScales      *prometheus.CounterVec
	OutputBytes        prometheus.Gauge
	ConversionDuration prometheus.Histogram
}

// New creates and registers a new set of collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TensorsConverted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stconvert_tensors_converted_total",
			Help: "Number of tensors converted, by conversion policy",
		}, []string{"policy"}),
		MissingScales: factory.NewCounter(prometheus.CounterOpts{
			Name: "stconvert_missing_scales_total",
			Help: "Number of quantized tensors converted without a scale",
		}),
		DroppedScales: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stconvert_scale_tensors_dropped_total",
			Help: "Number of scale tensors consumed and left out of the output",
		}, []string{"kind"}),
		OutputBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stconvert_output_bytes",
			Help: "Size of the tensor data written to the output archive",
		}),
		ConversionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stconvert_tensor_conversion_duration_seconds",
			Help:    "Histogram of per-tensor conversion times",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

// RecordConversion records a tensor converted with the given policy.
func (m *Metrics) RecordConversion(policy string, missingScale bool, duration time.Duration) {
	m.TensorsConverted.WithLabelValues(policy).Inc()
	if missingScale {
		m.MissingScales.Inc()
	}
	m.ConversionDuration.Observe(duration.Seconds())
}

// RecordDroppedScales adds n dropped scale tensors of the given kind.
func (m *Metrics) RecordDroppedScales(kind string, n int) {
	m.DroppedScales.WithLabelValues(kind).Add(float64(n))
}

// RecordOutputBytes sets the size of the written tensor data.
func (m *Metrics) RecordOutputBytes(n int64) {
	m.OutputBytes.Set(float64(n))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
