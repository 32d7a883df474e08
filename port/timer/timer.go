// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package timer implements port.Timer on top of the runtime timer.
package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/ffutop/modbus-slave/port"
)

var ErrClosed = errors.New("timer: closed")

// Timer fires the handler from its own goroutine. An expiry that lost a
// race against Disable or a later Enable is dropped.
type Timer struct {
	mu     sync.Mutex
	h      port.TimerHandler
	t      *time.Timer
	token  uint64
	armed  bool
	closed bool
}

func New() *Timer {
	return &Timer{}
}

func (tm *Timer) Init(h port.TimerHandler) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.h = h
	tm.closed = false
	return nil
}

func (tm *Timer) Enable(d time.Duration) uint64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.token++
	if tm.closed {
		return tm.token
	}
	token := tm.token
	tm.armed = true
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.t = time.AfterFunc(d, func() { tm.fire(token) })
	return token
}

func (tm *Timer) Disable() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.disable()
}

// disable stops the timer. Caller must hold the mutex.
func (tm *Timer) disable() {
	tm.armed = false
	tm.token++
	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
}

func (tm *Timer) Close() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.closed {
		return ErrClosed
	}
	tm.disable()
	tm.closed = true
	return nil
}

func (tm *Timer) fire(token uint64) {
	tm.mu.Lock()
	if !tm.armed || token != tm.token || tm.h == nil {
		tm.mu.Unlock()
		return
	}
	tm.armed = false
	h := tm.h
	tm.mu.Unlock()

	// The handler may re-arm the timer, so it runs unlocked.
	h.TimerExpired(token)
}
