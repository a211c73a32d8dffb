// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package updater checks whether a newer application release exists.
//
// Installing the update is not handled here; the checker only tells the
// user. Network failures schedule a retry with doubling delay, and a
// manual check cancels any pending retry.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/notify"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/resources"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/util"
)

const (
	// DefaultInitialRetry is the first retry delay after a failed check.
	DefaultInitialRetry = time.Minute

	// DefaultMaxRetry caps the retry delay.
	DefaultMaxRetry = time.Hour

	checkTimeout = 30 * time.Second
)

// AppUpdater checks for application updates.
type AppUpdater interface {
	// CheckNow runs one check, cancelling any scheduled retry first.
	CheckNow(ctx context.Context) (CheckResult, error)
}

// CheckResult is the outcome of one successful check.
type CheckResult struct {
	Current   string `json:"current"`
	Latest    string `json:"latest"`
	Available bool   `json:"available"`
}

// Config configures a Checker.
type Config struct {
	// APIBaseURL is the release API root. Default: resources.DefaultAPIBaseURL
	APIBaseURL string

	// Owner and Repo identify the application repository.
	Owner string
	Repo  string

	// CurrentVersion is the running version.
	CurrentVersion string

	// InitialRetry and MaxRetry bound the doubling retry delay.
	InitialRetry time.Duration
	MaxRetry     time.Duration

	HTTPClient *http.Client
}

// Checker is the default AppUpdater.
//
// # Thread Safety
//
// Safe for concurrent use.
type Checker struct {
	cfg     Config
	release *resources.ReleaseClient
	notices *notify.Once
	logger  *slog.Logger

	mu      sync.Mutex
	delays  *backoff.ExponentialBackOff
	retry   *time.Timer
	stopped bool
}

// NewChecker creates a Checker. notifier may be nil.
func NewChecker(cfg Config, notifier notify.Notifier, logger *slog.Logger) *Checker {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = resources.DefaultAPIBaseURL
	}
	if cfg.InitialRetry <= 0 {
		cfg.InitialRetry = DefaultInitialRetry
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Multi(nil)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = cfg.InitialRetry
	delays.MaxInterval = cfg.MaxRetry
	delays.Multiplier = 2
	delays.RandomizationFactor = 0
	delays.Reset()

	return &Checker{
		cfg:     cfg,
		release: &resources.ReleaseClient{BaseURL: cfg.APIBaseURL, HTTP: client},
		notices: &notify.Once{Next: notifier},
		logger:  logger,
		delays:  delays,
	}
}

// CheckNow implements AppUpdater.
//
// # Description
//
// Cancels a pending retry, queries the latest release and notifies once
// per newer version. A failed query schedules the next retry.
func (c *Checker) CheckNow(ctx context.Context) (CheckResult, error) {
	c.mu.Lock()
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	return c.check(ctx)
}

// PendingRetry reports whether a retry is scheduled.
func (c *Checker) PendingRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry != nil
}

// Stop cancels any pending retry and prevents new ones.
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Checker) check(ctx context.Context) (CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	rel, err := c.release.Latest(ctx, c.cfg.Owner, c.cfg.Repo)
	if err != nil {
		delay := c.scheduleRetry()
		c.logger.Warn("update check failed", "error", err, "retry_in", delay)
		return CheckResult{}, fmt.Errorf("check for updates: %w", err)
	}

	c.mu.Lock()
	c.delays.Reset()
	c.mu.Unlock()

	res := CheckResult{
		Current:   c.cfg.CurrentVersion,
		Latest:    rel.TagName,
		Available: resources.IsNewer(rel.TagName, c.cfg.CurrentVersion),
	}
	if !res.Available {
		c.logger.Info("application is up to date", "version", c.cfg.CurrentVersion, "latest", rel.TagName)
		return res, nil
	}

	c.logger.Info("application update available", "current", c.cfg.CurrentVersion, "latest", rel.TagName)
	c.notices.NotifyOnce(ctx, "app-update:"+rel.TagName, notify.Notice{
		Severity: status.SeverityInfo,
		Title:    "Update available",
		Message:  fmt.Sprintf("Version %s is available (you have %s).", rel.TagName, c.cfg.CurrentVersion),
	})
	return res, nil
}

// scheduleRetry arms the retry timer and returns its delay.
func (c *Checker) scheduleRetry() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	delay := c.delays.NextBackOff()
	if delay == backoff.Stop {
		delay = c.cfg.MaxRetry
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer util.RecoverPanic(util.LogPanic(c.logger, "update retry"))()
		c.mu.Lock()
		// A manual check or a newer retry replaced this timer.
		if c.retry != t {
			c.mu.Unlock()
			return
		}
		c.retry = nil
		c.mu.Unlock()
		_, _ = c.check(context.Background())
	})
	c.retry = t
	return delay
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockUpdater counts CheckNow calls.
type MockUpdater struct {
	Result CheckResult
	Err    error

	mu    sync.Mutex
	calls int
}

// CheckNow implements AppUpdater.
func (m *MockUpdater) CheckNow(ctx context.Context) (CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Result, m.Err
}

// Calls returns the number of CheckNow calls.
func (m *MockUpdater) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Compile-time interface satisfaction checks
var (
	_ AppUpdater = (*Checker)(nil)
	_ AppUpdater = (*MockUpdater)(nil)
)
