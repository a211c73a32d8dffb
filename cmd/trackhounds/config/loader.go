// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/trackhounds/pkg/validation"
)

// Environment overrides, applied after the file is parsed.
const (
	EnvRootPassword = "TRACKHOUNDS_DB_ROOT_PASSWORD"
	EnvBridgeListen = "TRACKHOUNDS_BRIDGE_LISTEN"
	EnvPollInterval = "TRACKHOUNDS_POLL_INTERVAL"
	EnvLogLevel     = "TRACKHOUNDS_LOG_LEVEL"
	EnvResourcesDir = "TRACKHOUNDS_RESOURCES_DIR"
	EnvEngineAPI    = "TRACKHOUNDS_ENGINE_API"
	EnvOTLPEndpoint = "TRACKHOUNDS_OTLP_ENDPOINT"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// DefaultPath returns ~/.trackhounds/supervisor.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".trackhounds", "supervisor.yaml"), nil
}

// Load reads the config at path, creating a default file first if none
// exists. Environment overrides are applied before validation.
//
// # Outputs
//
//   - *SupervisorConfig: Parsed, overridden and validated config
//   - bool: true when the file was created by this call
//   - error: Read, parse or validation failure (validation wraps ErrInvalidConfig)
func Load(path string) (*SupervisorConfig, bool, error) {
	created := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, false, err
		}
		created = true
	}

	cfg, err := Read(path)
	if err != nil {
		return nil, created, err
	}
	return cfg, created, nil
}

// Read parses an existing config file. Used by Load and by the reload
// watcher, which must never create files.
func Read(path string) (*SupervisorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig, so omitted keys keep their
// defaults, then applies environment overrides and validates.
func Parse(data []byte) (*SupervisorConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func Validate(cfg *SupervisorConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c := cfg.Containers
	for _, check := range []struct {
		field string
		err   error
	}{
		{"containers.backend_image", validation.ValidateImageRef(c.BackendImage)},
		{"containers.database_image", validation.ValidateImageRef(c.DatabaseImage)},
		{"containers.database_name", validation.ValidateDatabaseName(c.DatabaseName)},
	} {
		if check.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, check.field, check.err)
		}
	}
	return nil
}

func applyEnv(cfg *SupervisorConfig) error {
	if v := os.Getenv(EnvRootPassword); v != "" {
		cfg.Containers.RootPassword = v
	}
	if v := os.Getenv(EnvBridgeListen); v != "" {
		cfg.Bridge.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvResourcesDir); v != "" {
		cfg.Resources.Dir = v
		cfg.Resources.Packaged = true
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.TraceExporter = "otlp"
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvPollInterval, err)
		}
		cfg.Poller.Interval = d
	}
	if v := os.Getenv(EnvEngineAPI); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvEngineAPI, err)
		}
		cfg.Runtime.EngineAPI = b
	}
	return nil
}

// createDefault writes DefaultConfig with a freshly generated database
// password. The file is private to the user.
func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	cfg := DefaultConfig()
	pw, err := generatePassword()
	if err != nil {
		return err
	}
	cfg.Containers.RootPassword = pw

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func generatePassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate database password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HistoryPath resolves History.Path, defaulting next to the config file.
func (c *SupervisorConfig) HistoryPath(configPath string) string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(filepath.Dir(configPath), "history")
}
