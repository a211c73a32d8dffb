// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/notify"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/resources"
	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
)

// releaseAPI serves /repos/acme/app/releases/latest. While failing is
// set it answers 503.
type releaseAPI struct {
	tag     string
	failing atomic.Bool
	hits    atomic.Int32
}

func (r *releaseAPI) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.hits.Add(1)
	if req.URL.Path != "/repos/acme/app/releases/latest" {
		http.NotFound(w, req)
		return
	}
	if r.failing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"tag_name":"` + r.tag + `","assets":[]}`))
}

func newChecker(t *testing.T, api *releaseAPI, cfg Config, n notify.Notifier) *Checker {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	cfg.APIBaseURL = srv.URL
	cfg.Owner, cfg.Repo = "acme", "app"
	if cfg.CurrentVersion == "" {
		cfg.CurrentVersion = "1.0.0"
	}
	c := NewChecker(cfg, n, nil)
	t.Cleanup(c.Stop)
	return c
}

func TestCheckNow_NewerVersionNotifiesOnce(t *testing.T) {
	api := &releaseAPI{tag: "v1.1.0"}
	n := &notify.MockNotifier{}
	c := newChecker(t, api, Config{}, n)

	res, err := c.CheckNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CheckResult{Current: "1.0.0", Latest: "v1.1.0", Available: true}, res)

	_, err = c.CheckNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n.Count(status.SeverityInfo))
}

func TestCheckNow_UpToDate(t *testing.T) {
	api := &releaseAPI{tag: "v1.0.0"}
	n := &notify.MockNotifier{}
	c := newChecker(t, api, Config{}, n)

	res, err := c.CheckNow(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Empty(t, n.Notices())
	assert.False(t, c.PendingRetry())
}

func TestCheckNow_FailureSchedulesRetry(t *testing.T) {
	api := &releaseAPI{tag: "v1.1.0"}
	api.failing.Store(true)
	n := &notify.MockNotifier{}
	c := newChecker(t, api, Config{InitialRetry: 10 * time.Millisecond}, n)

	_, err := c.CheckNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, resources.ErrReleaseLookup)
	assert.True(t, c.PendingRetry())

	api.failing.Store(false)
	assert.Eventually(t, func() bool { return n.Count(status.SeverityInfo) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.PendingRetry())
}

func TestCheckNow_ClearsPendingRetry(t *testing.T) {
	api := &releaseAPI{tag: "v1.0.0"}
	api.failing.Store(true)
	c := newChecker(t, api, Config{InitialRetry: time.Hour}, nil)

	_, err := c.CheckNow(context.Background())
	require.Error(t, err)
	require.True(t, c.PendingRetry())

	api.failing.Store(false)
	_, err = c.CheckNow(context.Background())
	require.NoError(t, err)
	assert.False(t, c.PendingRetry())
	assert.Equal(t, int32(2), api.hits.Load())
}

func TestScheduleRetry_Doubles(t *testing.T) {
	c := NewChecker(Config{InitialRetry: time.Minute, MaxRetry: 3 * time.Minute}, nil, nil)
	defer c.Stop()

	assert.Equal(t, time.Minute, c.scheduleRetry())
	assert.Equal(t, 2*time.Minute, c.scheduleRetry())
	assert.Equal(t, 3*time.Minute, c.scheduleRetry())
	assert.Equal(t, 3*time.Minute, c.scheduleRetry())

	c.Stop()
	assert.Zero(t, c.scheduleRetry())
	assert.False(t, c.PendingRetry())
}

func TestMockUpdater(t *testing.T) {
	m := &MockUpdater{Result: CheckResult{Available: true}}
	res, err := m.CheckNow(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, 1, m.Calls())
}
