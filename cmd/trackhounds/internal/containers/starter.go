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
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/compose"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/notify"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/observability"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
)

// Start paths reported in StartReport.Path.
const (
	PathComposeModern = "compose-modern"
	PathComposeLegacy = "compose-legacy"
	PathIndividual    = "individual"
)

// ErrContainerStart is returned when a container could not be started
// or created on the individual path.
var ErrContainerStart = errors.New("container start failed")

// StartReport describes which path brought the containers up.
type StartReport struct {
	// Path is one of PathComposeModern, PathComposeLegacy or PathIndividual.
	Path string

	// FellBack is true when both compose variants failed first.
	FellBack bool

	// Err is the individual path's failure, if any. Compose failures
	// that were recovered by the individual path are not reported here.
	Err error
}

// StarterConfig holds the fixed container parameters.
type StarterConfig struct {
	// BackendImage is run as BackendContainer.
	// Default: "trackhounds/backend:latest"
	BackendImage string

	// DatabaseImage is run as DatabaseContainer.
	// Default: "mariadb:11"
	DatabaseImage string

	// DatabaseName is passed as MYSQL_DATABASE. Default: "trackhounds"
	DatabaseName string

	// RootPassword is passed as MYSQL_ROOT_PASSWORD through the child
	// environment. May be nil.
	RootPassword *Secret

	// BackendPort and DatabasePort are published on the host.
	BackendPort  int
	DatabasePort int

	// SettleDelay is the wait after each start in delay mode.
	// Default: DefaultSettleDelay
	SettleDelay time.Duration

	// Readiness selects delay or TCP waiting.
	Readiness ReadinessConfig

	// CommandTimeout bounds each docker start/run. Default: 2 minutes
	CommandTimeout time.Duration
}

func (c *StarterConfig) applyDefaults() {
	if c.BackendImage == "" {
		c.BackendImage = "trackhounds/backend:latest"
	}
	if c.DatabaseImage == "" {
		c.DatabaseImage = "mariadb:11"
	}
	if c.DatabaseName == "" {
		c.DatabaseName = "trackhounds"
	}
	if c.BackendPort == 0 {
		c.BackendPort = DefaultBackendPort
	}
	if c.DatabasePort == 0 {
		c.DatabasePort = DefaultDatabasePort
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Readiness.Mode == "" {
		c.Readiness.Mode = ReadinessDelay
	}
	if c.Readiness.Timeout <= 0 {
		c.Readiness.Timeout = DefaultReadinessTimeout
	}
	if c.Readiness.Host == "" {
		c.Readiness.Host = "127.0.0.1"
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 2 * time.Minute
	}
}

// StarterDeps are the collaborators of a Starter.
type StarterDeps struct {
	Proc     process.Manager
	Compose  compose.Executor
	Lister   Lister
	Poller   *Poller
	Progress ProgressReporter
	Notifier notify.Notifier
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Starter brings up the database and backend containers.
//
// # Description
//
// Start lists every container name first. When neither fixed name
// exists the compose descriptor is used: the detected variant, then the
// other variant. When a name already exists, or both compose variants
// fail, each container is started by name or created with docker run.
// Every path ends with a settle wait and one poll.
//
// # Thread Safety
//
// Start is not meant to run concurrently with itself.
type Starter struct {
	cfg  StarterConfig
	deps StarterDeps
}

// NewStarter creates a starter with defaults applied to cfg.
func NewStarter(cfg StarterConfig, deps StarterDeps) *Starter {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Starter{cfg: cfg, deps: deps}
}

// Start runs the container start state machine once.
func (s *Starter) Start(ctx context.Context) StartReport {
	logger := s.deps.Logger
	s.report("Checking existing containers...", 0)

	names, err := s.deps.Lister.AllNames(ctx)
	if err != nil {
		logger.Warn("listing containers failed, assuming none exist", "error", err)
		names = nil
	}
	hasDatabase := slices.Contains(names, DatabaseContainer)
	hasBackend := slices.Contains(names, BackendContainer)

	var report StartReport
	if !hasDatabase && !hasBackend {
		path, err := s.composeUp(ctx)
		if err == nil {
			s.report("Containers started, waiting for services...", 90)
			s.settle(ctx, s.cfg.BackendPort)
			s.finish(ctx)
			return StartReport{Path: path}
		}

		logger.Warn("compose up failed with both variants, starting containers individually", "error", err)
		s.deps.Metrics.RecordFallback(ctx, "compose", PathIndividual)
		s.notify(ctx, notify.Notice{
			Severity: status.SeverityWarning,
			Title:    "Compose unavailable",
			Message:  "Could not start services with docker compose. Starting containers individually.",
		})
		report.FellBack = true

		// Compose may have created one of the containers before failing.
		if names, err = s.deps.Lister.AllNames(ctx); err != nil {
			names = nil
		}
		hasDatabase = slices.Contains(names, DatabaseContainer)
		hasBackend = slices.Contains(names, BackendContainer)
	}

	report.Path = PathIndividual
	report.Err = s.individual(ctx, hasDatabase, hasBackend)
	if report.Err != nil {
		logger.Error("individual container start failed", "error", report.Err)
		s.notify(ctx, notify.Notice{
			Severity: status.SeverityError,
			Title:    "Failed to start services",
			Message:  fmt.Sprintf("The local services could not be started: %v", report.Err),
		})
	}
	s.finish(ctx)
	return report
}

// composeUp tries the detected variant, then the other one.
func (s *Starter) composeUp(ctx context.Context) (string, error) {
	v := s.deps.Compose.DetectVariant(ctx)
	s.report(fmt.Sprintf("Starting containers with %s...", v), 20)

	_, err := s.deps.Compose.Up(ctx, v)
	if err == nil {
		s.deps.Metrics.RecordCommand(ctx, "compose_up", observability.OutcomeSuccess)
		return "compose-" + v.Label(), nil
	}
	s.deps.Metrics.RecordCommand(ctx, "compose_up", observability.OutcomeFailure)
	s.deps.Logger.Warn("compose up failed, trying other variant",
		"variant", v.Label(), "other", v.Other().Label(), "error", err)
	s.deps.Metrics.RecordFallback(ctx, "compose-"+v.Label(), "compose-"+v.Other().Label())

	other := v.Other()
	s.report(fmt.Sprintf("Retrying with %s...", other), 40)
	_, otherErr := s.deps.Compose.Up(ctx, other)
	if otherErr == nil {
		s.deps.Metrics.RecordCommand(ctx, "compose_up", observability.OutcomeSuccess)
		return "compose-" + other.Label(), nil
	}
	s.deps.Metrics.RecordCommand(ctx, "compose_up", observability.OutcomeFailure)
	return "", errors.Join(err, otherErr)
}

// individual starts or creates the database, waits, then the backend.
func (s *Starter) individual(ctx context.Context, hasDatabase, hasBackend bool) error {
	s.report("Starting database container...", 60)
	dbErr := s.startOrRunDatabase(ctx, hasDatabase)
	s.settle(ctx, s.cfg.DatabasePort)

	s.report("Starting backend container...", 80)
	backendErr := s.startOrRunBackend(ctx, hasBackend)
	s.settle(ctx, s.cfg.BackendPort)

	return errors.Join(dbErr, backendErr)
}

func (s *Starter) startOrRunDatabase(ctx context.Context, exists bool) error {
	if exists {
		return s.docker(ctx, "start", nil, "start", DatabaseContainer)
	}

	var env []string
	err := s.cfg.RootPassword.Use(func(pw string) error {
		env = []string{"MYSQL_ROOT_PASSWORD=" + pw}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrContainerStart, DatabaseContainer, err)
	}
	return s.docker(ctx, "run", env,
		"run", "-d",
		"--name", DatabaseContainer,
		"-p", portMapping(s.cfg.DatabasePort, DefaultDatabasePort),
		"-e", "MYSQL_ROOT_PASSWORD",
		"-e", "MYSQL_DATABASE="+s.cfg.DatabaseName,
		s.cfg.DatabaseImage,
	)
}

func (s *Starter) startOrRunBackend(ctx context.Context, exists bool) error {
	if exists {
		return s.docker(ctx, "start", nil, "start", BackendContainer)
	}
	return s.docker(ctx, "run", nil,
		"run", "-d",
		"--name", BackendContainer,
		"-p", portMapping(s.cfg.BackendPort, DefaultBackendPort),
		"--link", DatabaseContainer,
		s.cfg.BackendImage,
	)
}

// docker runs one docker command with env added to the child environment.
func (s *Starter) docker(ctx context.Context, kind string, env []string, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	res, err := s.deps.Proc.RunInDir(runCtx, "", env, "docker", args...)
	if err == nil && !res.Succeeded() {
		err = fmt.Errorf("exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if err != nil {
		s.deps.Metrics.RecordCommand(ctx, "docker_"+kind, observability.OutcomeFailure)
		return fmt.Errorf("%w: docker %s: %w", ErrContainerStart, strings.Join(args, " "), err)
	}
	s.deps.Metrics.RecordCommand(ctx, "docker_"+kind, observability.OutcomeSuccess)
	s.deps.Logger.Info("docker command succeeded", "command", "docker "+args[0], "duration", res.Duration)
	return nil
}

// settle waits for a started container per the readiness mode. A TCP
// probe that times out is logged and the caller proceeds.
func (s *Starter) settle(ctx context.Context, port int) {
	if s.cfg.Readiness.Mode == ReadinessTCP {
		if err := awaitPort(ctx, s.cfg.Readiness.Host, port, s.cfg.Readiness.Timeout); err != nil {
			s.deps.Logger.Warn("readiness probe timed out, continuing", "port", port, "error", err)
		}
		return
	}
	_ = sleep(ctx, s.cfg.SettleDelay)
}

func (s *Starter) finish(ctx context.Context) {
	if s.deps.Poller != nil {
		s.deps.Poller.Poll(ctx)
	}
}

func (s *Starter) report(detail string, pct int) {
	if s.deps.Progress == nil {
		return
	}
	s.deps.Progress.ReportProgress(status.SetupProgress{
		Stage:    status.StageStartingContainers,
		Detail:   detail,
		Progress: pct,
	})
}

func (s *Starter) notify(ctx context.Context, n notify.Notice) {
	if ctx.Err() != nil {
		return
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(ctx, n)
	}
}

func portMapping(host, container int) string {
	return strconv.Itoa(host) + ":" + strconv.Itoa(container)
}
