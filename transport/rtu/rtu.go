// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu implements the RTU framing state machine. Frame boundaries
// are found by line silence: a gap longer than t1.5 inside a frame breaks
// it, a gap of t3.5 ends it.
package rtu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-slave/modbus"
	rtupacket "github.com/ffutop/modbus-slave/modbus/rtu"
	"github.com/ffutop/modbus-slave/port"
	"github.com/ffutop/modbus-slave/transport"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// State of the RTU state machine.
type State int

const (
	// StateOff: stopped, all input ignored.
	StateOff State = iota
	// StateRcvInit waits for t3.5 of silence after start-up.
	StateRcvInit
	StateIdle
	StateRcv
	// StateWaitEOF: t1.5 elapsed, waiting for t3.5 to confirm the frame.
	StateWaitEOF
	// StateError discards input until t3.5 of silence.
	StateError
	StateXmitInit
	StateXmit
	// StateXmitFinish keeps the inter-frame gap after a transmission.
	StateXmitFinish
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateRcvInit:
		return "rcv-init"
	case StateIdle:
		return "idle"
	case StateRcv:
		return "rcv"
	case StateWaitEOF:
		return "wait-eof"
	case StateError:
		return "error"
	case StateXmitInit:
		return "xmit-init"
	case StateXmit:
		return "xmit"
	case StateXmitFinish:
		return "xmit-finish"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transport is the RTU implementation of transport.Transport.
type Transport struct {
	serial port.Serial
	timer  port.Timer
	events port.EventQueue
	logger *slog.Logger

	t15, t35 time.Duration

	mu    sync.Mutex
	state State
	token uint64
	armed bool

	rxBuf [rtupacket.MaxSize]byte
	rxPos int

	frame    [rtupacket.MaxSize]byte
	frameLen int

	txBuf [rtupacket.MaxSize]byte
	txLen int
	txPos int

	overruns atomic.Uint32
}

var _ transport.Transport = (*Transport)(nil)

// New creates an RTU transport on the given drivers.
func New(serial port.Serial, timer port.Timer, events port.EventQueue, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		serial: serial,
		timer:  timer,
		events: events,
		logger: logger.With("transport", "rtu"),
	}
}

func (t *Transport) Init(cfg port.SerialConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.t15, t.t35 = rtupacket.Timeouts(cfg.BaudRate)
	if cfg.TimeoutSlack > 0 {
		t.t15 += cfg.TimeoutSlack
		t.t35 += cfg.TimeoutSlack
	}
	if err := t.serial.Init(cfg, t); err != nil {
		return fmt.Errorf("rtu: serial init: %w", err)
	}
	if err := t.timer.Init(t); err != nil {
		t.serial.Close()
		return fmt.Errorf("rtu: timer init: %w", err)
	}
	t.state = StateOff
	t.logger.Debug("RTU timing", "baud", cfg.BaudRate, "t1.5", t.t15, "t3.5", t.t35)
	return nil
}

// Start waits for t3.5 of silence before accepting frames, then posts
// port.EventReady.
func (t *Transport) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rxPos = 0
	t.frameLen = 0
	t.state = StateRcvInit
	t.serial.Enable(true, false)
	t.arm(t.t35)
}

func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.serial.Enable(false, false)
	t.timer.Disable()
	t.armed = false
	t.state = StateOff
	t.rxPos = 0
	t.frameLen = 0
	t.txLen, t.txPos = 0, 0
}

func (t *Transport) Close() error {
	return multierr.Combine(t.serial.Close(), t.timer.Close())
}

// State returns the current state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Overruns() uint32 {
	return t.overruns.Load()
}

func (t *Transport) Receive(dst []byte) (byte, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.frameLen
	t.frameLen = 0
	if n == 0 {
		return 0, 0, transport.ErrNoFrame
	}
	adu, err := rtupacket.Decode(t.frame[:n])
	switch {
	case errors.Is(err, rtupacket.ErrShortFrame):
		return 0, 0, fmt.Errorf("%w: %v", transport.ErrFrameTooShort, err)
	case errors.Is(err, rtupacket.ErrLongFrame):
		return 0, 0, fmt.Errorf("%w: %v", transport.ErrFrameTooLong, err)
	case err != nil:
		return 0, 0, fmt.Errorf("%w: %v", transport.ErrChecksum, err)
	}
	n, err = transport.CopyPDU(dst, adu.Pdu)
	if err != nil {
		return 0, 0, err
	}
	return adu.SlaveID, n, nil
}

func (t *Transport) Send(address byte, pdu []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle {
		return fmt.Errorf("%w: state %v", transport.ErrBusy, t.state)
	}
	if len(pdu) == 0 {
		return transport.ErrFrameTooShort
	}
	adu := rtupacket.ApplicationDataUnit{
		SlaveID: address,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: pdu[0], Data: pdu[1:]},
	}
	n, err := adu.EncodeTo(t.txBuf[:])
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrFrameTooLong, err)
	}
	t.txLen, t.txPos = n, 0

	t.state = StateXmitInit
	t.serial.Enable(false, true)
	return nil
}

// ByteReceived advances the receive state machine by one character.
func (t *Transport) ByteReceived() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, err := t.serial.GetByte()
	if err != nil {
		return false
	}

	switch t.state {
	case StateRcvInit, StateXmitFinish, StateError:
		// Line not silent yet.
		t.arm(t.t35)
	case StateIdle:
		t.rxPos = 0
		t.rxBuf[t.rxPos] = b
		t.rxPos++
		t.state = StateRcv
		t.arm(t.t15)
	case StateRcv:
		if t.rxPos < len(t.rxBuf) {
			t.rxBuf[t.rxPos] = b
			t.rxPos++
			t.arm(t.t15)
		} else {
			t.overruns.Inc()
			t.logger.Debug("Receive buffer overrun, discarding frame")
			t.state = StateError
			t.arm(t.t35)
		}
	case StateWaitEOF:
		// Gap between characters exceeded t1.5.
		t.logger.Debug("Inter-character timeout, discarding frame", "bytes", t.rxPos)
		t.state = StateError
		t.arm(t.t35)
	}
	return false
}

// TransmitterEmpty pushes the next character of the pending frame.
func (t *Transport) TransmitterEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateXmitInit:
		t.state = StateXmit
		fallthrough
	case StateXmit:
		if t.txPos < t.txLen {
			if err := t.serial.PutByte(t.txBuf[t.txPos]); err != nil {
				t.logger.Error("Serial put byte failed", "err", err)
			}
			t.txPos++
			return false
		}
		t.serial.Enable(true, false)
		t.state = StateXmitFinish
		t.arm(t.t35)
		return t.events.Post(port.EventFrameSent)
	default:
		t.serial.Enable(t.state != StateOff, false)
	}
	return false
}

// TimerExpired handles t1.5 and t3.5 expiry.
func (t *Transport) TimerExpired(token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed || token != t.token {
		t.logger.Debug("Ignoring stale timer expiry", "token", token, "state", t.state)
		return false
	}
	t.armed = false

	switch t.state {
	case StateRcvInit:
		t.state = StateIdle
		return t.events.Post(port.EventReady)
	case StateRcv:
		t.state = StateWaitEOF
		t.arm(t.t35 - t.t15)
	case StateWaitEOF:
		copy(t.frame[:], t.rxBuf[:t.rxPos])
		t.frameLen = t.rxPos
		t.rxPos = 0
		t.state = StateIdle
		return t.events.Post(port.EventFrameReceived)
	case StateError, StateXmitFinish:
		t.rxPos = 0
		t.state = StateIdle
	}
	return false
}

// arm restarts the timer. Caller must hold the mutex.
func (t *Transport) arm(d time.Duration) {
	t.token = t.timer.Enable(d)
	t.armed = true
}
