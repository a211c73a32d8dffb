// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supervisor runs the local service startup chain and owns its
// lifecycle.
//
// The chain is strictly sequential; each stage gates the next:
//
//	probe ─▶ launch+await ─▶ verify ─▶ fetch (if incomplete) ─▶ load ─▶ start ─▶ poll
//
// After the runtime is confirmed the chain never aborts. Later failures
// are surfaced as notices and the supervisor keeps polling in a degraded
// state.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/containers"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/history"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/compose"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/notify"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/observability"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/resources"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/runtime"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/util"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrRuntimeNotInstalled is returned when the runtime CLI is absent.
	ErrRuntimeNotInstalled = errors.New("container runtime not installed")

	// ErrRuntimeNotReady is returned when the daemon could not be started.
	ErrRuntimeNotReady = errors.New("container runtime not ready")

	// ErrResourcesUnavailable is returned when missing resources could not
	// be fetched. The chain still continues with whatever exists.
	ErrResourcesUnavailable = errors.New("resources unavailable")
)

const (
	// DefaultShutdownTimeout bounds Shutdown.
	DefaultShutdownTimeout = 60 * time.Second
)

// =============================================================================
// Collaborators
// =============================================================================

// BundleChecker reports which bundle files exist. *resources.Verifier
// implements it.
type BundleChecker interface {
	Check() resources.Bundle
}

// ImageLoader imports image archives. *containers.Loader implements it.
type ImageLoader interface {
	LoadAvailable(ctx context.Context, hasBackend, hasDatabase bool) bool
}

// ContainerStarter brings up the containers. *containers.Starter implements it.
type ContainerStarter interface {
	Start(ctx context.Context) containers.StartReport
}

// StatusPoller mirrors container state. *containers.Poller implements it.
type StatusPoller interface {
	Poll(ctx context.Context)
	Run(ctx context.Context, interval time.Duration) error
}

// Config holds supervisor timing and identity.
type Config struct {
	// Version is the running app version, compared with the latest release.
	Version string

	// ReadyTimeout and ReadyInterval govern waiting for a launched runtime.
	// Defaults: runtime.DefaultReadyTimeout, runtime.DefaultReadyInterval
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration

	// PollInterval is the steady-state poll period.
	// Default: containers.DefaultPollInterval
	PollInterval time.Duration

	// ShutdownTimeout bounds Shutdown. Default: DefaultShutdownTimeout
	ShutdownTimeout time.Duration
}

// Deps are the supervisor's collaborators. Store, Prober, Launcher,
// Verifier, Fetcher, Loader, Starter, Poller, Compose and Proc are required.
type Deps struct {
	Store    *status.Store
	Prober   runtime.Prober
	Launcher runtime.Launcher
	Verifier BundleChecker
	Fetcher  resources.Fetcher
	Loader   ImageLoader
	Starter  ContainerStarter
	Poller   StatusPoller
	Compose  compose.Executor
	Proc     process.Manager

	// Optional.
	Notifier notify.Notifier
	Journal  history.Recorder
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// =============================================================================
// Supervisor
// =============================================================================

// Supervisor owns the status store and drives every stage.
//
// # Description
//
// Start runs the chain once. CheckDocker, UpdateBackend and Shutdown
// serve the UI's requests and the exit path. The supervisor holds no
// lock across stages; the Store serializes status updates.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Concurrent UpdateBackend
// calls share one fetch.
type Supervisor struct {
	cfg  Config
	deps Deps

	logger  *slog.Logger
	updates singleflight.Group

	pollMu      sync.Mutex
	pollCancel  context.CancelFunc
	pollStarted bool
}

// New creates a supervisor with defaults applied to cfg.
func New(cfg Config, deps Deps) *Supervisor {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = runtime.DefaultReadyTimeout
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = runtime.DefaultReadyInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = containers.DefaultPollInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, deps: deps, logger: logger}
}

// Status returns the current status snapshot.
func (s *Supervisor) Status() status.ServiceStatus {
	return s.deps.Store.Snapshot()
}

// Start runs the startup chain once.
//
// # Description
//
// Probes the runtime, launches and awaits it if needed, verifies the
// resource bundle (fetching when incomplete), loads available images,
// starts the containers and finally starts the status poller.
//
// # Inputs
//
//   - ctx: Also the lifetime of the status poller
//
// # Outputs
//
//   - error: ErrRuntimeNotInstalled or ErrRuntimeNotReady when the chain
//     stopped before the runtime was confirmed; ErrResourcesUnavailable
//     when a fetch failed but the chain continued; nil otherwise
//
// # Limitations
//
//   - Running Start twice runs the chain twice but starts only one poller.
func (s *Supervisor) Start(ctx context.Context) error {
	parent := ctx
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	started := time.Now()

	ctx, span := observability.StartSpan(ctx, "supervisor.start",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	logger.Info("startup chain begin")
	s.deps.Store.BeginStartup()

	path, detail, err := s.runChain(ctx, logger)
	outcome := history.OutcomeSuccess
	switch {
	case errors.Is(err, ErrRuntimeNotInstalled), errors.Is(err, ErrRuntimeNotReady):
		outcome = history.OutcomeFailure
	case err != nil:
		outcome = history.OutcomeDegraded
	}
	if err != nil {
		observability.RecordError(span, err)
	}
	s.record(ctx, logger, history.Run{
		ID:       runID,
		Kind:     history.KindStartup,
		Path:     path,
		Outcome:  outcome,
		Detail:   detail,
		Started:  started,
		Duration: time.Since(started),
	})

	if outcome != history.OutcomeFailure {
		s.startPoller(parent)
	}
	logger.Info("startup chain end", "outcome", outcome, "path", path, "duration", time.Since(started))
	return err
}

// runChain runs stages 1 to 6 and returns the container start path, a
// short detail for the journal and the chain error.
func (s *Supervisor) runChain(ctx context.Context, logger *slog.Logger) (string, string, error) {
	store := s.deps.Store

	if err := s.ensureRuntime(ctx, logger); err != nil {
		store.Finish(false)
		store.ReportProgress(status.SetupProgress{Stage: status.StageError, Detail: err.Error()})
		return "", err.Error(), err
	}
	store.SetRunning(true)

	bundle, fetchErr := s.ensureResources(ctx, logger)

	s.timed(ctx, "load", func(ctx context.Context) (string, error) {
		s.deps.Loader.LoadAvailable(ctx, bundle.HasBackend, bundle.HasDatabase)
		return observability.OutcomeSuccess, nil
	})

	var report containers.StartReport
	s.timed(ctx, "start", func(ctx context.Context) (string, error) {
		report = s.deps.Starter.Start(ctx)
		if report.Err != nil {
			return observability.OutcomeFailure, report.Err
		}
		return observability.OutcomeSuccess, nil
	})

	store.Finish(true)
	err := errors.Join(fetchErr, report.Err)
	if err != nil {
		store.ReportProgress(status.SetupProgress{Stage: status.StageError, Detail: err.Error(), Progress: 100})
		return report.Path, err.Error(), err
	}
	store.ReportProgress(status.SetupProgress{Stage: status.StageComplete, Detail: "Services started", Progress: 100})
	return report.Path, "", nil
}

// ensureRuntime runs stages 1 and 2.
func (s *Supervisor) ensureRuntime(ctx context.Context, logger *slog.Logger) error {
	_, err := s.timed(ctx, "probe", func(ctx context.Context) (string, error) {
		if !s.deps.Prober.Installed(ctx) {
			return observability.OutcomeFailure, ErrRuntimeNotInstalled
		}
		return observability.OutcomeSuccess, nil
	})
	if err != nil {
		logger.Error("container runtime not installed")
		s.notify(ctx, notify.Notice{
			Severity: status.SeverityFatal,
			Title:    "Docker is not installed",
			Message:  "Install Docker Desktop and restart the application.",
		})
		return err
	}

	if s.deps.Prober.DaemonReady(ctx) {
		logger.Info("container runtime ready")
		return nil
	}

	_, err = s.timed(ctx, "launch", func(ctx context.Context) (string, error) {
		logger.Info("launching container runtime", "command", s.deps.Launcher.Describe())
		// Launch is fire-and-forget: the daemon may still come up by
		// other means within the wait window.
		if err := s.deps.Launcher.Launch(ctx); err != nil {
			logger.Warn("launch command failed, waiting for the runtime anyway", "error", err)
		}
		if err := runtime.AwaitReady(ctx, s.deps.Prober, s.cfg.ReadyTimeout, s.cfg.ReadyInterval); err != nil {
			return observability.OutcomeFailure, err
		}
		return observability.OutcomeSuccess, nil
	})
	if err != nil {
		logger.Error("container runtime did not start", "error", err)
		s.notify(ctx, notify.Notice{
			Severity: status.SeverityError,
			Title:    "Docker did not start",
			Message:  "Docker Desktop could not be started. Start it manually and restart the application.",
		})
		return errors.Join(ErrRuntimeNotReady, err)
	}
	logger.Info("container runtime ready after launch")
	return nil
}

// ensureResources runs stages 3 and 4 and returns the bundle as it
// stands afterwards.
func (s *Supervisor) ensureResources(ctx context.Context, logger *slog.Logger) (resources.Bundle, error) {
	bundle := s.deps.Verifier.Check()
	if bundle.Complete() {
		logger.Info("resource bundle complete", "dir", bundle.Dir)
		return bundle, nil
	}
	logger.Info("resource bundle incomplete, fetching", "missing", bundle.Missing())

	var result resources.FetchResult
	_, err := s.timed(ctx, "fetch", func(ctx context.Context) (string, error) {
		var err error
		result, err = s.deps.Fetcher.FetchLatest(ctx, s.cfg.Version, s.downloadProgress(ctx))
		switch {
		case err != nil:
			return observability.OutcomeFailure, err
		case result.Success:
			return observability.OutcomeSuccess, nil
		case result.Reason == resources.ReasonAlreadyLatest:
			return observability.OutcomeSkipped, nil
		default:
			return observability.OutcomeFailure, errors.New(result.Reason)
		}
	})

	var fetchErr error
	switch {
	case err != nil:
		logger.Error("resource fetch failed", "error", err)
		s.notify(ctx, notify.Notice{
			Severity: status.SeverityError,
			Title:    "Failed to download resources",
			Message:  err.Error(),
		})
		fetchErr = errors.Join(ErrResourcesUnavailable, err)
	case result.Reason == resources.ReasonAlreadyLatest:
		// Nothing newer to download; load whatever is on disk.
		logger.Warn("resources incomplete but already on latest version, continuing", "missing", bundle.Missing())
	default:
		logger.Info("resources downloaded", "version", result.Version)
	}
	return s.deps.Verifier.Check(), fetchErr
}

// downloadProgress maps byte progress onto setup progress, publishing
// only when the whole percentage changes.
func (s *Supervisor) downloadProgress(ctx context.Context) resources.ProgressFunc {
	lastPct := map[string]int{}
	lastBytes := map[string]int64{}
	return func(asset string, received, total int64) {
		s.deps.Metrics.RecordDownload(ctx, asset, received-lastBytes[asset])
		lastBytes[asset] = received

		pct := 0
		if total > 0 {
			pct = int(received * 100 / total)
		}
		if prev, ok := lastPct[asset]; ok && prev == pct {
			return
		}
		lastPct[asset] = pct
		s.deps.Store.ReportProgress(status.SetupProgress{
			Stage:    status.StageDownloadingResources,
			Detail:   "Downloading " + asset + "...",
			Progress: pct,
		})
	}
}

// timed runs one stage inside a span and records its duration.
func (s *Supervisor) timed(ctx context.Context, stage string, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := observability.StartSpan(ctx, "stage."+stage)
	defer span.End()

	start := time.Now()
	outcome, err := fn(ctx)
	s.deps.Metrics.RecordStage(ctx, stage, outcome, time.Since(start))
	if err != nil {
		observability.RecordError(span, err, attribute.String("stage", stage))
	}
	return outcome, err
}

// startPoller polls every PollInterval until ctx ends. The first poll
// waits a full interval; the startup chain has just polled.
func (s *Supervisor) startPoller(ctx context.Context) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollStarted {
		return
	}
	s.pollStarted = true

	ctx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel
	util.SafeGo(func() {
		_ = s.deps.Poller.Run(ctx, s.cfg.PollInterval)
	}, util.LogPanic(s.logger, "status poller"))
}

// SetPollInterval forwards a new interval to the running poller.
func (s *Supervisor) SetPollInterval(d time.Duration) {
	if p, ok := s.deps.Poller.(interface{ SetInterval(time.Duration) }); ok {
		p.SetInterval(d)
	}
}

// StopPolling cancels the poller started by Start.
func (s *Supervisor) StopPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.pollCancel != nil {
		s.pollCancel()
	}
}

// CheckDocker re-probes the daemon, polls containers and returns the
// resulting snapshot.
func (s *Supervisor) CheckDocker(ctx context.Context) status.ServiceStatus {
	ready := s.deps.Prober.DaemonReady(ctx)
	s.deps.Store.SetRunning(ready)
	if ready {
		s.deps.Poller.Poll(ctx)
	} else {
		s.deps.Store.SetContainers(false, false)
	}
	return s.deps.Store.Snapshot()
}

// UpdateBackend fetches the latest release and loads its archives.
//
// # Description
//
// Concurrent calls share a single fetch and all receive its result. A
// transport error is reported as an unsuccessful result whose reason is
// the error text.
func (s *Supervisor) UpdateBackend(ctx context.Context) resources.FetchResult {
	v, _, _ := s.updates.Do("update-backend", func() (any, error) {
		return s.updateBackend(ctx), nil
	})
	return v.(resources.FetchResult)
}

func (s *Supervisor) updateBackend(ctx context.Context) resources.FetchResult {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	started := time.Now()

	ctx, span := observability.StartSpan(ctx, "supervisor.update",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	result, err := s.deps.Fetcher.FetchLatest(ctx, s.cfg.Version, s.downloadProgress(ctx))
	run := history.Run{ID: runID, Kind: history.KindUpdate, Started: started}
	switch {
	case err != nil:
		logger.Error("backend update failed", "error", err)
		observability.RecordError(span, err)
		result = resources.FetchResult{Success: false, Reason: err.Error()}
		run.Outcome = history.OutcomeFailure
	case !result.Success:
		logger.Info("backend update not applied", "reason", result.Reason)
		run.Outcome = history.OutcomeSkipped
	default:
		bundle := s.deps.Verifier.Check()
		s.deps.Loader.LoadAvailable(ctx, bundle.HasBackend, bundle.HasDatabase)
		logger.Info("backend updated", "version", result.Version)
		run.Outcome = history.OutcomeSuccess
	}
	run.Detail = result.Reason
	if result.Success {
		run.Detail = result.Version
	}
	run.Duration = time.Since(started)
	s.record(ctx, logger, run)
	return result
}

// Shutdown stops the containers if the runtime is running.
//
// # Description
//
// Runs compose down when the descriptor exists, falling back to
// `docker stop` on both containers. Nothing is retried. The call is
// bounded by ShutdownTimeout so the process can always exit.
//
// # Outputs
//
//   - error: Non-nil only when the fallback also failed. Callers log it
//     and exit regardless.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.StopPolling()
	if !s.deps.Store.Snapshot().Running {
		s.logger.Info("runtime not running, skipping container shutdown")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "supervisor.shutdown")
	defer span.End()

	started := time.Now()
	run := history.Run{ID: uuid.NewString(), Kind: history.KindShutdown, Started: started}
	err := s.stopContainers(ctx, &run)
	if err != nil {
		s.logger.Error("container shutdown failed", "error", err)
		observability.RecordError(span, err)
		run.Outcome = history.OutcomeFailure
		run.Detail = err.Error()
	} else {
		run.Outcome = history.OutcomeSuccess
	}
	run.Duration = time.Since(started)
	// The shutdown context may be spent; the journal write gets its own.
	s.record(context.WithoutCancel(ctx), s.logger, run)
	return err
}

func (s *Supervisor) stopContainers(ctx context.Context, run *history.Run) error {
	var composeErr error
	if s.deps.Compose.FileExists() {
		v := s.deps.Compose.DetectVariant(ctx)
		_, composeErr = s.deps.Compose.Down(ctx, v)
		if composeErr == nil {
			run.Path = "compose-" + v.Label()
			s.deps.Metrics.RecordCommand(ctx, "compose_down", observability.OutcomeSuccess)
			s.logger.Info("containers stopped with compose down", "variant", v.Label())
			return nil
		}
		s.deps.Metrics.RecordCommand(ctx, "compose_down", observability.OutcomeFailure)
		s.logger.Warn("compose down failed, stopping containers directly", "error", composeErr)
	} else {
		s.logger.Info("compose file missing, stopping containers directly")
	}

	run.Path = "docker-stop"
	res, err := s.deps.Proc.Run(ctx, "docker", "stop", containers.BackendContainer, containers.DatabaseContainer)
	if err == nil && !res.Succeeded() {
		err = fmt.Errorf("docker stop exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if err != nil {
		s.deps.Metrics.RecordCommand(ctx, "docker_stop", observability.OutcomeFailure)
		return errors.Join(composeErr, err)
	}
	s.deps.Metrics.RecordCommand(ctx, "docker_stop", observability.OutcomeSuccess)
	s.logger.Info("containers stopped with docker stop")
	return nil
}

// notify raises n unless ctx is already cancelled: a stage that failed
// because serve is exiting is not something to show the user.
func (s *Supervisor) notify(ctx context.Context, n notify.Notice) {
	if ctx.Err() != nil {
		s.logger.Debug("notice suppressed during shutdown", "title", n.Title)
		return
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(ctx, n)
	}
}

// record appends run to the journal. Failures are logged only.
func (s *Supervisor) record(ctx context.Context, logger *slog.Logger, run history.Run) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.Append(ctx, run); err != nil {
		logger.Warn("journal append failed", "error", err)
	}
}
