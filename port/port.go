// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package port defines the hardware collaborators the protocol stack is
// driven by: a byte oriented serial line, a one-shot timer and an event
// queue between driver context and the poll loop.
package port

import (
	"time"
)

// SerialConfig describes the line settings of a serial port.
type SerialConfig struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string // "N", "E" or "O"
	StopBits int

	// TimeoutSlack is added to the RTU t1.5 and t3.5 timers. Host drivers
	// deliver bytes late (USB adapters batch them every few milliseconds),
	// which the receiver would otherwise see as silence inside a frame.
	TimeoutSlack time.Duration

	// RS485 specific
	RS485              bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

// SerialHandler receives the interrupt style callbacks of a Serial driver.
// The return value reports whether an event was posted for the poll loop.
type SerialHandler interface {
	// ByteReceived is called once per received character while the
	// receiver is enabled. The handler fetches the byte with GetByte.
	ByteReceived() bool
	// TransmitterEmpty is called while the transmitter is enabled and
	// ready to accept the next character through PutByte.
	TransmitterEmpty() bool
}

// Serial is a byte-at-a-time serial line driver.
type Serial interface {
	Init(cfg SerialConfig, h SerialHandler) error
	// Enable switches receiver and transmitter. Callers may invoke it
	// from inside a SerialHandler callback.
	Enable(rx, tx bool)
	PutByte(b byte) error
	GetByte() (byte, error)
	Close() error
}

// TimerHandler receives timer expiry. token is the value returned by the
// Enable call that armed the timer.
type TimerHandler interface {
	TimerExpired(token uint64) bool
}

// Timer is a restartable one-shot timer.
type Timer interface {
	Init(h TimerHandler) error
	// Enable (re)arms the timer for d and returns a token identifying
	// this arming. A previous arming is cancelled.
	Enable(d time.Duration) uint64
	Disable()
	Close() error
}
