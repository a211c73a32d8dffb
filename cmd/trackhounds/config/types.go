// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the supervisor's YAML configuration.
package config

import (
	"time"
)

// SupervisorConfig is the on-disk configuration at
// ~/.trackhounds/supervisor.yaml.
type SupervisorConfig struct {
	Resources  ResourcesConfig  `yaml:"resources"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Containers ContainersConfig `yaml:"containers"`
	Poller     PollerConfig     `yaml:"poller"`
	History    HistoryConfig    `yaml:"history"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Updater    UpdaterConfig    `yaml:"updater"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ResourcesConfig locates the image bundle and the release that ships it.
type ResourcesConfig struct {
	// Packaged selects the bundle next to the executable instead of the
	// working directory.
	Packaged bool   `yaml:"packaged"`
	Dir      string `yaml:"dir,omitempty"`

	APIBaseURL string `yaml:"api_base_url" validate:"required,url"`
	Owner      string `yaml:"owner" validate:"required"`
	Repo       string `yaml:"repo" validate:"required"`
}

// RuntimeConfig controls Docker detection and launch.
type RuntimeConfig struct {
	// EngineAPI probes the daemon over the Engine API socket instead of
	// the docker CLI.
	EngineAPI  bool   `yaml:"engine_api"`
	EngineHost string `yaml:"engine_host,omitempty"`

	ReadyTimeout  time.Duration `yaml:"ready_timeout" validate:"gt=0"`
	ReadyInterval time.Duration `yaml:"ready_interval" validate:"gt=0"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" validate:"gt=0"`

	// Linux systemd unit and Windows Docker Desktop path.
	ServiceName string `yaml:"service_name" validate:"required"`
	DesktopPath string `yaml:"desktop_path,omitempty"`
}

// ContainersConfig describes the two application containers.
type ContainersConfig struct {
	BackendImage  string `yaml:"backend_image" validate:"required"`
	DatabaseImage string `yaml:"database_image" validate:"required"`
	DatabaseName  string `yaml:"database_name" validate:"required"`

	// RootPassword is sealed into memory protection once loaded. Prefer
	// TRACKHOUNDS_DB_ROOT_PASSWORD over storing it here.
	RootPassword string `yaml:"root_password"`

	BackendPort  int `yaml:"backend_port" validate:"min=1,max=65535"`
	DatabasePort int `yaml:"database_port" validate:"min=1,max=65535"`

	SettleDelay time.Duration   `yaml:"settle_delay" validate:"gte=0"`
	Readiness   ReadinessConfig `yaml:"readiness"`
	LoadTimeout time.Duration   `yaml:"load_timeout" validate:"gt=0"`
}

// ReadinessConfig selects how the starter waits after a start command.
type ReadinessConfig struct {
	Mode    string        `yaml:"mode" validate:"oneof=delay tcp"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	Host    string        `yaml:"host" validate:"required"`
}

// PollerConfig controls container status polling. Hot-reloaded.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gte=1s"`
}

// HistoryConfig controls the run journal.
type HistoryConfig struct {
	// Path defaults to ~/.trackhounds/history.
	Path      string        `yaml:"path,omitempty"`
	Retention time.Duration `yaml:"retention"`
}

// BridgeConfig controls the local UI bridge.
type BridgeConfig struct {
	Listen         string        `yaml:"listen" validate:"required,hostname_port"`
	UpdateInterval time.Duration `yaml:"update_interval" validate:"gt=0"`
}

// ShutdownConfig bounds the shutdown coordinator.
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// UpdaterConfig controls the application update check.
type UpdaterConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Owner        string        `yaml:"owner" validate:"required_if=Enabled true"`
	Repo         string        `yaml:"repo" validate:"required_if=Enabled true"`
	InitialRetry time.Duration `yaml:"initial_retry" validate:"gt=0"`
	MaxRetry     time.Duration `yaml:"max_retry" validate:"gtefield=InitialRetry"`
}

// LoggingConfig controls pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
	Dir    string `yaml:"dir,omitempty"`
}

// TelemetryConfig controls tracing and metrics export.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none prometheus stdout"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// DefaultConfig returns the configuration written on first run, minus
// the generated database password.
func DefaultConfig() SupervisorConfig {
	return SupervisorConfig{
		Resources: ResourcesConfig{
			APIBaseURL: "https://api.github.com",
			Owner:      "trackhounds",
			Repo:       "trackhounds-resources",
		},
		Runtime: RuntimeConfig{
			ReadyTimeout:  120 * time.Second,
			ReadyInterval: 5 * time.Second,
			ProbeTimeout:  10 * time.Second,
			ServiceName:   "docker",
		},
		Containers: ContainersConfig{
			BackendImage:  "trackhounds/backend:latest",
			DatabaseImage: "mariadb:11",
			DatabaseName:  "trackhounds",
			BackendPort:   8080,
			DatabasePort:  3306,
			SettleDelay:   5 * time.Second,
			Readiness: ReadinessConfig{
				Mode:    "delay",
				Timeout: 60 * time.Second,
				Host:    "127.0.0.1",
			},
			LoadTimeout: 10 * time.Minute,
		},
		Poller:   PollerConfig{Interval: 30 * time.Second},
		History:  HistoryConfig{Retention: 720 * time.Hour},
		Bridge:   BridgeConfig{Listen: "127.0.0.1:17345", UpdateInterval: 30 * time.Second},
		Shutdown: ShutdownConfig{Timeout: 60 * time.Second},
		Updater: UpdaterConfig{
			Enabled:      true,
			Owner:        "trackhounds",
			Repo:         "trackhounds",
			InitialRetry: time.Minute,
			MaxRetry:     time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			Dir:    "~/.trackhounds/logs",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}
