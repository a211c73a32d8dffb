// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// TestJournal_RecentNewestFirst verifies ordering and the limit.
func TestJournal_RecentNewestFirst(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(ctx, Run{
			ID:      fmt.Sprintf("run-%d", i),
			Kind:    KindStartup,
			Outcome: OutcomeSuccess,
			Started: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, "run-2", runs[2].ID)

	all, err := j.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestJournal_RoundTripFields verifies every field survives storage.
func TestJournal_RoundTripFields(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	want := Run{
		ID:       "abc",
		Kind:     KindUpdate,
		Path:     "compose-legacy",
		Outcome:  OutcomeDegraded,
		Detail:   "already on latest version",
		Started:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration: 1500 * time.Millisecond,
	}
	require.NoError(t, j.Append(ctx, want))

	runs, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, want.ID, runs[0].ID)
	assert.Equal(t, want.Path, runs[0].Path)
	assert.Equal(t, want.Detail, runs[0].Detail)
	assert.Equal(t, want.Duration, runs[0].Duration)
	assert.True(t, want.Started.Equal(runs[0].Started))
}

// TestJournal_AppendValidation rejects incomplete runs.
func TestJournal_AppendValidation(t *testing.T) {
	j := openInMemory(t)
	assert.ErrorIs(t, j.Append(context.Background(), Run{Started: time.Now()}), ErrInvalidRun)
	assert.ErrorIs(t, j.Append(context.Background(), Run{ID: "x"}), ErrInvalidRun)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, j.Append(ctx, Run{ID: "x", Started: time.Now()}))
}

// TestJournal_Prune removes only runs older than the cutoff.
func TestJournal_Prune(t *testing.T) {
	j := openInMemory(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.Append(ctx, Run{ID: "old-1", Started: now.Add(-48 * time.Hour)}))
	require.NoError(t, j.Append(ctx, Run{ID: "old-2", Started: now.Add(-25 * time.Hour)}))
	require.NoError(t, j.Append(ctx, Run{ID: "new", Started: now.Add(-time.Hour)}))

	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	n, err = j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestJournal_PersistsAndPrunesOnOpen verifies the retention applies at open.
func TestJournal_PersistsAndPrunesOnOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := Open(Config{Path: dir, Retention: -1})
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, Run{ID: "ancient", Started: time.Now().Add(-60 * 24 * time.Hour)}))
	require.NoError(t, j.Append(ctx, Run{ID: "recent", Started: time.Now().Add(-time.Minute)}))
	require.NoError(t, j.Close())

	j, err = Open(Config{Path: dir, Retention: 24 * time.Hour})
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "recent", runs[0].ID)
}

// TestOpen_RequiresPath verifies a persistent journal needs a directory.
func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestMockRecorder(t *testing.T) {
	m := &MockRecorder{}
	require.NoError(t, m.Append(context.Background(), Run{ID: "a"}))
	assert.Len(t, m.Runs(), 1)

	m.Err = assert.AnError
	assert.ErrorIs(t, m.Append(context.Background(), Run{ID: "b"}), assert.AnError)
	assert.Len(t, m.Runs(), 1)
}
