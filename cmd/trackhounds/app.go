// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	goruntime "runtime"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/config"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/containers"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/history"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/compose"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/infra/process"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/notify"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/observability"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/resources"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/runtime"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/supervisor"
	"github.com/AleutianAI/trackhounds/pkg/logging"
)

// app is the wired object graph shared by the supervisor commands.
type app struct {
	cfg     *config.SupervisorConfig
	cfgPath string

	log     *logging.Logger
	logger  *slog.Logger
	bus     *status.Bus
	store   *status.Store
	metrics *observability.Metrics
	journal *history.Journal
	engine  *runtime.Engine
	poller  *containers.Poller
	notices notify.Notifier
	sup     *supervisor.Supervisor

	closers []func(context.Context) error
}

// appOptions selects the optional parts of the graph.
type appOptions struct {
	// Journal opens the run journal. Only one process may hold it.
	Journal bool

	// Terminal adds terminal notices (boxes, or huh dialogs on a TTY).
	Terminal bool

	// Service names the log file and telemetry resource.
	Service string
}

// loadConfig resolves and loads the config file.
func loadConfig() (*config.SupervisorConfig, string, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}
	cfg, created, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if created {
		slog.Info("first run, created config", "path", path)
	}
	return cfg, path, nil
}

// newApp loads the config and builds every component.
//
// # Description
//
// The order matters in two places: telemetry is initialised before
// Metrics so instruments bind to the exporting MeterProvider, and the
// poller is built before the starter because the starter's final poll
// goes through it.
//
// # Outputs
//
//   - *app: Wired graph. Call close when done.
//   - error: Config, resource path, engine client or journal failure
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cfgPath: path}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	a.log = logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: opts.Service,
		Format:  logging.Format(cfg.Logging.Format),
	})
	a.logger = a.log.Slog()
	a.closers = append(a.closers, func(context.Context) error { return a.log.Close() })

	shutdownTelemetry, err := observability.Init(ctx, observability.Config{
		ServiceName:    "trackhounds",
		ServiceVersion: Version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.closers = append(a.closers, shutdownTelemetry)
	a.metrics = observability.MustDefault()

	a.bus = status.NewBus(0, nil)
	a.store = status.NewStore(a.bus)

	if opts.Journal {
		j, err := history.Open(history.Config{
			Path:      cfg.HistoryPath(path),
			Retention: cfg.History.Retention,
			Logger:    a.logger,
		})
		if err != nil {
			// The journal is never required; run without it.
			a.logger.Warn("run journal unavailable", "error", err)
		} else {
			a.journal = j
			a.closers = append(a.closers, func(context.Context) error { return j.Close() })
		}
	}

	if err := a.wire(opts); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// wire builds the runtime, resource and container layers and the
// supervisor on top of them.
func (a *app) wire(opts appOptions) error {
	cfg := a.cfg
	proc := process.NewDefaultManager()

	base, err := resources.ResolveBase(cfg.Resources.Packaged, cfg.Resources.Dir)
	if err != nil {
		return err
	}
	verifier := resources.NewVerifier(base)

	cliProber := runtime.NewCLIProber(proc, cfg.Runtime.ProbeTimeout, a.logger)
	var prober runtime.Prober = cliProber
	var lister containers.Lister = containers.CLILister{Proc: proc}
	if cfg.Runtime.EngineAPI {
		engine, err := runtime.NewEngine(runtime.EngineConfig{Host: cfg.Runtime.EngineHost})
		if err != nil {
			return err
		}
		a.engine = engine
		a.closers = append(a.closers, func(context.Context) error { return engine.Close() })
		prober = runtime.NewEngineProber(cliProber, engine)
		lister = containers.EngineLister{Engine: engine}
	}

	notifiers := notify.Multi{
		notify.BusNotifier{Bus: a.bus},
		notify.LogNotifier{Logger: a.logger},
	}
	if opts.Terminal {
		notifiers = append(notifiers, notify.NewTerminalNotifier())
	}
	a.notices = notifiers

	composeExec := compose.NewDefaultExecutor(compose.Config{
		ComposeFile: filepath.Join(verifier.Dir(), resources.ComposeFileName),
	}, proc, a.logger)

	a.poller = containers.NewPoller(lister, a.store, a.metrics, a.logger)

	starter := containers.NewStarter(containers.StarterConfig{
		BackendImage:  cfg.Containers.BackendImage,
		DatabaseImage: cfg.Containers.DatabaseImage,
		DatabaseName:  cfg.Containers.DatabaseName,
		RootPassword:  containers.NewSecret(cfg.Containers.RootPassword),
		BackendPort:   cfg.Containers.BackendPort,
		DatabasePort:  cfg.Containers.DatabasePort,
		SettleDelay:   cfg.Containers.SettleDelay,
		Readiness: containers.ReadinessConfig{
			Mode:    cfg.Containers.Readiness.Mode,
			Timeout: cfg.Containers.Readiness.Timeout,
			Host:    cfg.Containers.Readiness.Host,
		},
	}, containers.StarterDeps{
		Proc:     proc,
		Compose:  composeExec,
		Lister:   lister,
		Poller:   a.poller,
		Progress: a.store,
		Notifier: notifiers,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})
	// The plaintext copy in the config struct is no longer needed.
	cfg.Containers.RootPassword = ""

	loader := &containers.Loader{
		Proc:            proc,
		BackendArchive:  filepath.Join(verifier.Dir(), resources.BackendArchiveName),
		DatabaseArchive: filepath.Join(verifier.Dir(), resources.DatabaseArchiveName),
		Progress:        a.store,
		Metrics:         a.metrics,
		Logger:          a.logger,
		Timeout:         cfg.Containers.LoadTimeout,
	}

	fetcher := resources.NewDefaultFetcher(resources.FetcherConfig{
		APIBaseURL: cfg.Resources.APIBaseURL,
		Owner:      cfg.Resources.Owner,
		Repo:       cfg.Resources.Repo,
		DestDir:    verifier.Dir(),
	}, a.logger)

	deps := supervisor.Deps{
		Store:    a.store,
		Prober:   prober,
		Launcher: runtime.NewLauncher(goruntime.GOOS, proc, runtime.LauncherConfig{DesktopPath: cfg.Runtime.DesktopPath, ServiceName: cfg.Runtime.ServiceName}),
		Verifier: verifier,
		Fetcher:  fetcher,
		Loader:   loader,
		Starter:  starter,
		Poller:   a.poller,
		Compose:  composeExec,
		Proc:     proc,
		Notifier: notifiers,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}
	// A nil *Journal in the interface would not compare equal to nil.
	if a.journal != nil {
		deps.Journal = a.journal
	}

	a.sup = supervisor.New(supervisor.Config{
		Version:         Version,
		ReadyTimeout:    cfg.Runtime.ReadyTimeout,
		ReadyInterval:   cfg.Runtime.ReadyInterval,
		PollInterval:    cfg.Poller.Interval,
		ShutdownTimeout: cfg.Shutdown.Timeout,
	}, deps)
	return nil
}

// close releases everything in reverse order and wipes sealed secrets.
func (a *app) close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	containers.PurgeSecrets()
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("shutdown cleanup failed", "error", err)
	}
}

// notifier returns the notifier chain shared by every component.
func (a *app) notifier() notify.Notifier {
	return a.notices
}

// acquireLock takes the single-instance lock next to the config file.
func acquireLock(cfgPath string) (*process.Lock, error) {
	lock := process.NewLock(process.LockConfig{
		LockDir:  filepath.Dir(cfgPath),
		LockName: "supervisor",
	})
	if err := lock.Acquire(); err != nil {
		return nil, fmt.Errorf("acquire supervisor lock: %w", err)
	}
	return lock, nil
}
