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

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 16

// Bus fans events out to subscribers without ever blocking the publisher.
//
// # Description
//
// Each subscriber owns a buffered channel. When a subscriber falls behind
// and its buffer is full, the oldest queued event is discarded to make room
// for the new one. Delivery is fire-and-forget.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	buffer int
	onDrop func(Event)
}

// NewBus creates a Bus. buffer <= 0 uses DefaultSubscriberBuffer. onDrop,
// if non-nil, is called with every discarded event (under the bus lock, so
// it must not publish).
func NewBus(buffer int, onDrop func(Event)) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
		onDrop: onDrop,
	}
}

// Subscription is a live registration on the Bus.
type Subscription struct {
	// C delivers events. It is closed by Close.
	C <-chan Event

	id  uint64
	bus *Bus
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return &Subscription{C: ch, id: id, bus: b}
}

// Close unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if ch, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(ch)
	}
}

// Publish delivers e to every subscriber, evicting the oldest queued event
// of any subscriber whose buffer is full.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
			continue
		default:
		}

		select {
		case old := <-ch:
			if b.onDrop != nil {
				b.onDrop(old)
			}
		default:
		}

		select {
		case ch <- e:
		default:
			if b.onDrop != nil {
				b.onDrop(e)
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
