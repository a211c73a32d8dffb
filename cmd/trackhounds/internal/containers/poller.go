// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package containers

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/observability"
)

// DefaultPollInterval is the steady-state poll period.
const DefaultPollInterval = 30 * time.Second

// ContainerSink receives poll results. *status.Store implements it.
type ContainerSink interface {
	SetContainers(backend, database bool)
}

// Poller mirrors the running state of the two containers into a sink.
//
// # Description
//
// Every Poll publishes, even when nothing changed. A failed listing is
// published as both containers stopped.
//
// # Thread Safety
//
// Poll is safe for concurrent use. Run must be called at most once at a time.
type Poller struct {
	lister  Lister
	sink    ContainerSink
	metrics *observability.Metrics
	logger  *slog.Logger

	interval chan time.Duration
}

// NewPoller creates a poller. metrics and logger may be nil.
func NewPoller(lister Lister, sink ContainerSink, metrics *observability.Metrics, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		lister:   lister,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
		interval: make(chan time.Duration, 1),
	}
}

// Poll lists running containers once and publishes the result.
func (p *Poller) Poll(ctx context.Context) {
	names, err := p.lister.RunningNames(ctx)
	outcome := observability.OutcomeSuccess
	if err != nil {
		p.logger.Warn("container poll failed", "error", err)
		outcome = observability.OutcomeFailure
		names = nil
	}

	backend := slices.Contains(names, BackendContainer)
	database := slices.Contains(names, DatabaseContainer)
	p.sink.SetContainers(backend, database)
	p.metrics.RecordPoll(ctx, outcome, backend, database)

	p.logger.Debug("container poll", "backend", backend, "database", database)
}

// SetInterval changes the period of a running Run loop. Non-positive
// values are ignored. Only the latest pending change is kept.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case p.interval <- d:
			return
		default:
		}
		select {
		case <-p.interval:
		default:
		}
	}
}

// Run polls every interval until ctx is cancelled. It does not poll
// immediately; callers poll once after startup settles.
//
// # Outputs
//
//   - error: ctx.Err() when the loop stops
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-p.interval:
			p.logger.Info("poll interval changed", "from", interval, "to", d)
			interval = d
			ticker.Reset(d)
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}
