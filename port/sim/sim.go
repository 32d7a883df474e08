// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sim provides deterministic in-memory port drivers. Nothing runs
// on its own: the caller injects bytes, pumps the transmitter and fires
// the timer explicitly.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/ffutop/modbus-slave/port"
)

var ErrNoData = errors.New("sim: no byte available")

// Serial is a simulated UART.
type Serial struct {
	// InitErr, when set, is returned by Init.
	InitErr error

	mu        sync.Mutex
	cfg       port.SerialConfig
	h         port.SerialHandler
	rxEnabled bool
	txEnabled bool
	rx        byte
	hasRx     bool
	sent      []byte
	closed    bool
}

func NewSerial() *Serial {
	return &Serial{}
}

func (s *Serial) Init(cfg port.SerialConfig, h port.SerialHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InitErr != nil {
		return s.InitErr
	}
	s.cfg = cfg
	s.h = h
	s.closed = false
	return nil
}

func (s *Serial) Enable(rx, tx bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rxEnabled, s.txEnabled = rx, tx
}

func (s *Serial) PutByte(b byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, b)
	return nil
}

func (s *Serial) GetByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasRx {
		return 0, ErrNoData
	}
	s.hasRx = false
	return s.rx, nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.rxEnabled, s.txEnabled = false, false
	return nil
}

// Config returns the settings passed to Init.
func (s *Serial) Config() port.SerialConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Enabled reports the receiver and transmitter switches.
func (s *Serial) Enabled() (rx, tx bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxEnabled, s.txEnabled
}

func (s *Serial) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Inject delivers bs one receive interrupt at a time. Bytes arriving while
// the receiver is disabled are lost.
func (s *Serial) Inject(bs ...byte) {
	for _, b := range bs {
		s.mu.Lock()
		if !s.rxEnabled || s.h == nil {
			s.mu.Unlock()
			continue
		}
		s.rx, s.hasRx = b, true
		h := s.h
		s.mu.Unlock()

		h.ByteReceived()
	}
}

// Pump raises transmitter-empty interrupts until the transmitter is
// switched off or limit calls were made, and returns the bytes written.
func (s *Serial) Pump(limit int) []byte {
	for i := 0; i < limit; i++ {
		s.mu.Lock()
		if !s.txEnabled || s.h == nil {
			s.mu.Unlock()
			break
		}
		h := s.h
		s.mu.Unlock()

		h.TransmitterEmpty()
	}
	return s.Drain()
}

// Drain returns and clears everything written so far.
func (s *Serial) Drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sent
	s.sent = nil
	return out
}

// Timer is a manually driven port.Timer.
type Timer struct {
	mu       sync.Mutex
	h        port.TimerHandler
	token    uint64
	armed    bool
	duration time.Duration
	closed   bool
}

func NewTimer() *Timer {
	return &Timer{}
}

func (t *Timer) Init(h port.TimerHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.h = h
	t.closed = false
	return nil
}

func (t *Timer) Enable(d time.Duration) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token++
	t.armed = true
	t.duration = d
	return t.token
}

func (t *Timer) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.armed = false
}

func (t *Timer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.armed = false
	t.closed = true
	return nil
}

// Armed reports whether the timer is running and for how long it was set.
func (t *Timer) Armed() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration, t.armed
}

func (t *Timer) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Token returns the token of the most recent Enable.
func (t *Timer) Token() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// Fire expires an armed timer. It reports false when nothing was armed.
func (t *Timer) Fire() bool {
	t.mu.Lock()
	if !t.armed || t.h == nil {
		t.mu.Unlock()
		return false
	}
	t.armed = false
	token, h := t.token, t.h
	t.mu.Unlock()

	h.TimerExpired(token)
	return true
}

// FireToken delivers an expiry carrying token regardless of the timer
// state, as a late runtime timer would.
func (t *Timer) FireToken(token uint64) {
	t.mu.Lock()
	h := t.h
	t.mu.Unlock()

	if h != nil {
		h.TimerExpired(token)
	}
}
