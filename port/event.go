// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package port

import (
	"fmt"
	"sync"
)

// Event is posted by a transport and consumed by the poll loop.
type Event int

const (
	EventReady Event = iota
	EventFrameReceived
	EventExecute
	EventFrameSent
)

func (e Event) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventFrameReceived:
		return "frame-received"
	case EventExecute:
		return "execute"
	case EventFrameSent:
		return "frame-sent"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// EventQueue hands events from driver context to the poll loop. Post and
// Get never block.
type EventQueue interface {
	Init() error
	Post(ev Event) bool
	Get() (Event, bool)
}

// Notifier is implemented by queues that can wake a waiting poll loop.
type Notifier interface {
	// Notify returns a channel that receives after a Post.
	Notify() <-chan struct{}
}

// SingleSlotQueue holds at most one event. Posting while an event is
// pending replaces it.
type SingleSlotQueue struct {
	mu      sync.Mutex
	ev      Event
	pending bool
	notify  chan struct{}
}

func NewSingleSlotQueue() *SingleSlotQueue {
	return &SingleSlotQueue{notify: make(chan struct{}, 1)}
}

func (q *SingleSlotQueue) Init() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = false
	if q.notify == nil {
		q.notify = make(chan struct{}, 1)
	}
	return nil
}

func (q *SingleSlotQueue) Post(ev Event) bool {
	q.mu.Lock()
	q.ev = ev
	q.pending = true
	q.mu.Unlock()

	wake(q.notify)
	return true
}

func (q *SingleSlotQueue) Get() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.pending {
		return 0, false
	}
	q.pending = false
	return q.ev, true
}

func (q *SingleSlotQueue) Notify() <-chan struct{} {
	return q.notify
}

// BufferedQueue is a FIFO of fixed capacity. Post fails when it is full.
type BufferedQueue struct {
	mu     sync.Mutex
	ring   []Event
	head   int
	n      int
	notify chan struct{}
}

func NewBufferedQueue(size int) *BufferedQueue {
	if size < 1 {
		size = 1
	}
	return &BufferedQueue{
		ring:   make([]Event, size),
		notify: make(chan struct{}, 1),
	}
}

func (q *BufferedQueue) Init() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.head, q.n = 0, 0
	return nil
}

func (q *BufferedQueue) Post(ev Event) bool {
	q.mu.Lock()
	if q.n == len(q.ring) {
		q.mu.Unlock()
		return false
	}
	q.ring[(q.head+q.n)%len(q.ring)] = ev
	q.n++
	q.mu.Unlock()

	wake(q.notify)
	return true
}

func (q *BufferedQueue) Get() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == 0 {
		return 0, false
	}
	ev := q.ring[q.head]
	q.head = (q.head + 1) % len(q.ring)
	q.n--
	return ev, true
}

func (q *BufferedQueue) Notify() <-chan struct{} {
	return q.notify
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
