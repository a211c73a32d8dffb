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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/observability"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
)

// DefaultLoadTimeout bounds a single `docker load`.
const DefaultLoadTimeout = 10 * time.Minute

// ProgressReporter receives setup progress. *status.Store implements it.
type ProgressReporter interface {
	ReportProgress(p status.SetupProgress)
}

// Loader imports image archives into the runtime.
type Loader struct {
	Proc            process.Manager
	BackendArchive  string
	DatabaseArchive string
	Progress        ProgressReporter
	Metrics         *observability.Metrics
	Logger          *slog.Logger

	// Timeout bounds each load. Default: DefaultLoadTimeout
	Timeout time.Duration
}

type archive struct {
	label string
	path  string
}

// LoadAvailable runs `docker load -i` for each archive that is present.
//
// # Description
//
// Loads run one after another. A failed load is logged and the batch
// continues. Progress is reported before and after each image, so two
// images produce 0, 50, 50 and 100 percent.
//
// # Outputs
//
//   - bool: Always true once every attempted load has finished
func (l *Loader) LoadAvailable(ctx context.Context, hasBackend, hasDatabase bool) bool {
	logger := l.logger()

	var batch []archive
	if hasBackend {
		batch = append(batch, archive{label: "backend", path: l.BackendArchive})
	}
	if hasDatabase {
		batch = append(batch, archive{label: "database", path: l.DatabaseArchive})
	}
	if len(batch) == 0 {
		logger.Info("no image archives to load")
		return true
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	total := len(batch)
	for i, a := range batch {
		l.report(fmt.Sprintf("Loading %s image...", a.label), i*100/total)

		loadCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := l.Proc.Run(loadCtx, "docker", "load", "-i", a.path)
		cancel()

		switch {
		case err != nil:
			logger.Error("image load failed", "image", a.label, "archive", filepath.Base(a.path), "error", err)
			l.Metrics.RecordCommand(ctx, "load", observability.OutcomeFailure)
		case !res.Succeeded():
			logger.Error("image load failed",
				"image", a.label,
				"archive", filepath.Base(a.path),
				"exit_code", res.ExitCode,
				"stderr", res.Stderr)
			l.Metrics.RecordCommand(ctx, "load", observability.OutcomeFailure)
		default:
			logger.Info("image loaded", "image", a.label, "duration", res.Duration)
			l.Metrics.RecordCommand(ctx, "load", observability.OutcomeSuccess)
		}

		l.report(fmt.Sprintf("Loaded %s image", a.label), (i+1)*100/total)
	}
	return true
}

func (l *Loader) report(detail string, pct int) {
	if l.Progress == nil {
		return
	}
	l.Progress.ReportProgress(status.SetupProgress{
		Stage:    status.StageLoadingImages,
		Detail:   detail,
		Progress: pct,
	})
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
