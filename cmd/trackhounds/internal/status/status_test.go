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

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Bus Tests
// =============================================================================

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4, nil)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	bus.Publish(Event{Channel: ChannelNavigation, Data: Navigation{Route: "/x"}})

	for _, sub := range []*Subscription{a, b} {
		select {
		case e := <-sub.C:
			assert.Equal(t, ChannelNavigation, e.Channel)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	var dropped []Event
	bus := NewBus(2, func(e Event) { dropped = append(dropped, e) })
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Channel: ChannelSetupProgress, Data: i})
	}

	// Publisher never blocked; the two newest events survive.
	assert.Equal(t, 3, (<-sub.C).Data)
	assert.Equal(t, 4, (<-sub.C).Data)
	require.Len(t, dropped, 3)
	assert.Equal(t, 0, dropped[0].Data)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus(1, nil)
	sub := bus.Subscribe()
	assert.Equal(t, 1, bus.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.Subscribers())

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after close must not panic.
	bus.Publish(Event{Channel: ChannelDockerStatus})
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := NewBus(8, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(Event{Channel: ChannelDockerStatus})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, sub.C, 8)
}

// =============================================================================
// Store Tests
// =============================================================================

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case e := <-sub.C:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestStore_EveryMutatorPublishes(t *testing.T) {
	bus := NewBus(32, nil)
	sub := bus.Subscribe()
	defer sub.Close()
	store := NewStore(bus)

	store.BeginStartup()
	store.SetRunning(true)
	store.SetContainers(true, false)
	store.SetContainers(true, false)
	store.Finish(true)

	events := drain(sub)
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, ChannelDockerStatus, e.Channel)
	}

	last := events[4].Data.(ServiceStatus)
	assert.False(t, last.Checking)
	assert.True(t, last.Running)
	assert.True(t, last.Containers.Backend.Running)
	assert.False(t, last.Containers.Database.Running)
}

func TestStore_CheckingLifecycle(t *testing.T) {
	store := NewStore(nil)
	assert.False(t, store.Snapshot().Checking)

	store.BeginStartup()
	assert.True(t, store.Snapshot().Checking)

	store.Finish(false)
	snap := store.Snapshot()
	assert.False(t, snap.Checking)
	assert.False(t, snap.Running)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	store := NewStore(nil)
	snap := store.Snapshot()
	snap.Running = true
	assert.False(t, store.Snapshot().Running)
}

func TestStore_ReportProgress(t *testing.T) {
	bus := NewBus(4, nil)
	sub := bus.Subscribe()
	defer sub.Close()
	store := NewStore(bus)

	_, ok := store.LastProgress()
	assert.False(t, ok)

	store.ReportProgress(SetupProgress{Stage: StageLoadingImages, Detail: "Loading backend image", Progress: 150})

	p, ok := store.LastProgress()
	require.True(t, ok)
	assert.Equal(t, 100, p.Progress)

	e := <-sub.C
	assert.Equal(t, ChannelSetupProgress, e.Channel)
	assert.Equal(t, StageLoadingImages, e.Data.(SetupProgress).Stage)
}

func TestServiceStatus_JSONShape(t *testing.T) {
	data, err := json.Marshal(ServiceStatus{Running: true, Containers: Containers{Backend: ContainerState{Running: true}}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"checking":false,"running":true,"containers":{"backend":{"running":true},"database":{"running":false}}}`,
		string(data))
}
