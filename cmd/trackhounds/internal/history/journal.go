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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Run kinds.
const (
	KindStartup  = "startup"
	KindUpdate   = "update"
	KindShutdown = "shutdown"
)

// Run outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeDegraded = "degraded"
	OutcomeSkipped  = "skipped"
)

const runPrefix = "run/"

// ErrInvalidRun is returned when a Run lacks an ID or start time.
var ErrInvalidRun = errors.New("run requires id and start time")

// Run is one journal record.
type Run struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Path     string        `json:"path,omitempty"`
	Outcome  string        `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Recorder appends runs. Supervisor code depends on this, not on Journal.
type Recorder interface {
	Append(ctx context.Context, r Run) error
}

// Journal is a BadgerDB-backed Recorder.
//
// Thread Safety: Safe for concurrent use.
type Journal struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
}

// Open opens the journal and prunes runs older than the retention.
//
// Description:
//
//	A prune failure is logged and the journal is still returned; only a
//	failure to open the database is an error.
//
// Inputs:
//
//	cfg - Journal configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Journal - Open journal. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Journal, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 10 * time.Minute
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db, logger: logger}

	if cfg.Retention > 0 {
		n, err := j.Prune(context.Background(), time.Now().Add(-cfg.Retention))
		if err != nil {
			logger.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			logger.Info("journal pruned", "removed", n)
		}
	}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		j.gc = startGC(db, cfg.GCInterval, logger)
	}
	return j, nil
}

// Close stops garbage collection and closes the database.
func (j *Journal) Close() error {
	if j.gc != nil {
		j.gc.stop()
	}
	return j.db.Close()
}

// Append stores r under run/{started unix nanos}/{id}.
func (j *Journal) Append(ctx context.Context, r Run) error {
	if r.ID == "" || r.Started.IsZero() {
		return ErrInvalidRun
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.ID, err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(r), val)
	})
}

// Recent returns up to n runs, newest first. n <= 0 returns nothing.
func (j *Journal) Recent(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	runs := make([]Run, 0, n)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key <= seek.
		for it.Seek([]byte(runPrefix + "\xff")); it.Valid() && len(runs) < n; it.Next() {
			var r Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Prune deletes runs that started before cutoff and returns how many.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context cancelled: %w", err)
	}

	limit := []byte(fmt.Sprintf("%s%020d", runPrefix, cutoff.UnixNano()))
	var stale [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(limit) {
				break
			}
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	wb := j.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush prune batch: %w", err)
	}
	return len(stale), nil
}

func runKey(r Run) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, r.Started.UnixNano(), r.ID))
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockRecorder records appended runs in memory.
type MockRecorder struct {
	Err error

	mu   sync.Mutex
	runs []Run
}

// Append implements Recorder.
func (m *MockRecorder) Append(ctx context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.runs = append(m.runs, r)
	return nil
}

// Runs returns a copy of everything appended.
func (m *MockRecorder) Runs() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, len(m.runs))
	copy(out, m.runs)
	return out
}

// Compile-time interface satisfaction checks
var (
	_ Recorder = (*Journal)(nil)
	_ Recorder = (*MockRecorder)(nil)
)
