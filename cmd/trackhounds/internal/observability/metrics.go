// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// containerRunning is exported directly rather than through OTel so the
// last poll is visible even with the metric exporter disabled.
var (
	containerRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "trackhounds",
		Subsystem: "containers",
		Name:      "running",
		Help:      "1 if the named container was running at the last poll",
	}, []string{"container"})

	registerGaugesOnce sync.Once
)

// Metrics holds the supervisor's instruments.
//
// A nil *Metrics is valid; every method is then a no-op.
//
// # Thread Safety
//
// Safe for concurrent use after creation.
type Metrics struct {
	// StageDuration records startup stage durations by stage and outcome.
	StageDuration metric.Float64Histogram

	// CommandsTotal counts external commands by kind and outcome.
	CommandsTotal metric.Int64Counter

	// DownloadedBytes counts bytes written per asset.
	DownloadedBytes metric.Int64Counter

	// FallbacksTotal counts container start fallbacks by from/to path.
	FallbacksTotal metric.Int64Counter

	// PollsTotal counts status polls by outcome.
	PollsTotal metric.Int64Counter

	// BridgeClients tracks connected event-stream clients.
	BridgeClients metric.Int64UpDownCounter
}

// NewMetrics registers all instruments on meter.
//
// # Example
//
//	m, err := observability.NewMetrics(otel.Meter("trackhounds"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	m.RecordCommand(ctx, "compose_up", observability.OutcomeSuccess)
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	registerGaugesOnce.Do(func() {
		Registry.MustRegister(containerRunning)
	})

	m := &Metrics{}
	var err error

	m.StageDuration, err = meter.Float64Histogram(
		"trackhounds_stage_duration_seconds",
		metric.WithDescription("Startup stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_duration: %w", err)
	}

	m.CommandsTotal, err = meter.Int64Counter(
		"trackhounds_commands_total",
		metric.WithDescription("External runtime commands by kind and outcome"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create commands_total: %w", err)
	}

	m.DownloadedBytes, err = meter.Int64Counter(
		"trackhounds_downloaded_bytes_total",
		metric.WithDescription("Bytes downloaded from the release store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create downloaded_bytes: %w", err)
	}

	m.FallbacksTotal, err = meter.Int64Counter(
		"trackhounds_start_fallbacks_total",
		metric.WithDescription("Container start fallbacks"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create start_fallbacks: %w", err)
	}

	m.PollsTotal, err = meter.Int64Counter(
		"trackhounds_polls_total",
		metric.WithDescription("Container status polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create polls_total: %w", err)
	}

	m.BridgeClients, err = meter.Int64UpDownCounter(
		"trackhounds_bridge_clients",
		metric.WithDescription("Connected event-stream clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create bridge_clients: %w", err)
	}

	return m, nil
}

// MustDefault builds Metrics on the global meter, panicking on failure.
// Instrument creation only fails on invalid names, which are constants here.
func MustDefault() *Metrics {
	m, err := NewMetrics(otel.Meter("trackhounds"))
	if err != nil {
		panic(err)
	}
	return m
}

// RecordStage records how long a startup stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

// RecordCommand counts one external command.
func (m *Metrics) RecordCommand(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.CommandsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordDownload adds n downloaded bytes for asset.
func (m *Metrics) RecordDownload(ctx context.Context, asset string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DownloadedBytes.Add(ctx, n, metric.WithAttributes(attribute.String("asset", asset)))
}

// RecordFallback counts a transition between start paths.
func (m *Metrics) RecordFallback(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordPoll counts one poll and updates the container gauges.
func (m *Metrics) RecordPoll(ctx context.Context, outcome string, backend, database bool) {
	if m == nil {
		return
	}
	m.PollsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	containerRunning.WithLabelValues("backend").Set(boolGauge(backend))
	containerRunning.WithLabelValues("database").Set(boolGauge(database))
}

// ClientConnected adjusts the connected bridge client count by delta.
func (m *Metrics) ClientConnected(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.BridgeClients.Add(ctx, delta)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
