// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package status

import "sync"

// Store is the single owner of the supervisor's ServiceStatus.
//
// # Description
//
// Every mutator takes the lock, applies its change, copies the result and
// publishes the copy on the docker-status channel. Snapshots handed out are
// values, so callers can never alias the live state.
//
// The last SetupProgress is retained so late subscribers (a UI window that
// connects mid-startup) can be replayed the current stage.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	status      ServiceStatus
	progress    SetupProgress
	hasProgress bool
	bus         *Bus
}

// NewStore creates a Store publishing onto bus. bus may be nil.
func NewStore(bus *Bus) *Store {
	return &Store{bus: bus}
}

// Snapshot returns a copy of the current status.
func (s *Store) Snapshot() ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastProgress returns the most recent progress report, if any.
func (s *Store) LastProgress() (SetupProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, s.hasProgress
}

// BeginStartup marks the startup chain as in flight.
func (s *Store) BeginStartup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Checking = true
	s.publish()
}

// SetRunning records whether the runtime daemon is reachable.
func (s *Store) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = running
	s.publish()
}

// Finish ends the startup chain with a terminal runtime state.
func (s *Store) Finish(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Checking = false
	s.status.Running = running
	s.publish()
}

// SetContainers records the result of a poll. It always publishes, even
// when nothing changed.
func (s *Store) SetContainers(backend, database bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Containers.Backend.Running = backend
	s.status.Containers.Database.Running = database
	s.publish()
}

// ReportProgress records and publishes a setup-progress event.
func (s *Store) ReportProgress(p SetupProgress) {
	if p.Progress < 0 {
		p.Progress = 0
	}
	if p.Progress > 100 {
		p.Progress = 100
	}

	s.mu.Lock()
	s.progress = p
	s.hasProgress = true
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(Event{Channel: ChannelSetupProgress, Data: p})
	}
}

// Navigate publishes a routing hint. Navigation is not retained.
func (s *Store) Navigate(route string) {
	if s.bus != nil {
		s.bus.Publish(Event{Channel: ChannelNavigation, Data: Navigation{Route: route}})
	}
}

// publish broadcasts the current snapshot. Callers hold s.mu.
func (s *Store) publish() {
	snap := s.status
	if s.bus != nil {
		s.bus.Publish(Event{Channel: ChannelDockerStatus, Data: snap})
	}
}
