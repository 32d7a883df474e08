// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ascii implements the ASCII framing state machine: a frame starts
// with ':', carries every byte as two hex characters and ends with CR LF.
package ascii

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-slave/modbus"
	asciipacket "github.com/ffutop/modbus-slave/modbus/ascii"
	"github.com/ffutop/modbus-slave/port"
	"github.com/ffutop/modbus-slave/transport"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// DefaultTimeout is the inter-character timeout.
const DefaultTimeout = time.Second

// RxState of the receiver.
type RxState int

const (
	RxOff RxState = iota
	RxIdle
	// RxRcv: ':' seen, collecting hex characters.
	RxRcv
	// RxWaitEOF: CR seen, waiting for LF.
	RxWaitEOF
)

// TxState of the transmitter.
type TxState int

const (
	TxIdle TxState = iota
	TxStart
	TxData
	TxEnd
	TxNotify
)

// nibble phase of the hex decoder and encoder
type phase int

const (
	phaseHi phase = iota
	phaseLo
)

// Options tune the ASCII framing.
type Options struct {
	// Timeout between two characters of a frame. Zero selects DefaultTimeout.
	Timeout time.Duration
	// EndOfFrame is the second end character. Zero selects LF.
	EndOfFrame byte
}

// Transport is the ASCII implementation of transport.Transport.
type Transport struct {
	serial port.Serial
	timer  port.Timer
	events port.EventQueue
	logger *slog.Logger

	timeout time.Duration
	eof     byte

	mu      sync.Mutex
	rxState RxState
	rxPhase phase
	txState TxState
	txPhase phase
	token   uint64
	armed   bool

	rxBuf [asciipacket.MaxSize]byte
	rxPos int

	frame    [asciipacket.MaxSize]byte
	frameLen int

	txBuf [asciipacket.MaxSize]byte
	txLen int
	txPos int

	overruns atomic.Uint32
}

var _ transport.Transport = (*Transport)(nil)

// New creates an ASCII transport on the given drivers.
func New(serial port.Serial, timer port.Timer, events port.EventQueue, opts Options, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.EndOfFrame == 0 {
		opts.EndOfFrame = asciipacket.LF
	}
	return &Transport{
		serial:  serial,
		timer:   timer,
		events:  events,
		logger:  logger.With("transport", "ascii"),
		timeout: opts.Timeout,
		eof:     opts.EndOfFrame,
	}
}

func (t *Transport) Init(cfg port.SerialConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.serial.Init(cfg, t); err != nil {
		return fmt.Errorf("ascii: serial init: %w", err)
	}
	if err := t.timer.Init(t); err != nil {
		t.serial.Close()
		return fmt.Errorf("ascii: timer init: %w", err)
	}
	t.rxState, t.txState = RxOff, TxIdle
	return nil
}

// Start enables the receiver and posts port.EventReady right away.
func (t *Transport) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rxState = RxIdle
	t.txState = TxIdle
	t.rxPos = 0
	t.frameLen = 0
	t.serial.Enable(true, false)
	t.events.Post(port.EventReady)
}

func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.serial.Enable(false, false)
	t.timer.Disable()
	t.armed = false
	t.rxState = RxOff
	t.txState = TxIdle
	t.rxPos = 0
	t.frameLen = 0
	t.txLen, t.txPos = 0, 0
}

func (t *Transport) Close() error {
	return multierr.Combine(t.serial.Close(), t.timer.Close())
}

// SetEndOfFrame changes the character expected after CR.
func (t *Transport) SetEndOfFrame(c byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eof = c
}

// States returns receiver and transmitter state.
func (t *Transport) States() (RxState, TxState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rxState, t.txState
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
	adu, err := asciipacket.Unpack(t.frame[:n])
	switch {
	case errors.Is(err, asciipacket.ErrShortFrame):
		return 0, 0, fmt.Errorf("%w: %v", transport.ErrFrameTooShort, err)
	case errors.Is(err, asciipacket.ErrLongFrame):
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

	if t.rxState != RxIdle || t.txState != TxIdle {
		return fmt.Errorf("%w: rx %d tx %d", transport.ErrBusy, t.rxState, t.txState)
	}
	if len(pdu) == 0 {
		return transport.ErrFrameTooShort
	}
	adu := asciipacket.ApplicationDataUnit{
		SlaveID: address,
		Pdu:     modbus.ProtocolDataUnit{FunctionCode: pdu[0], Data: pdu[1:]},
	}
	n, err := adu.Pack(t.txBuf[:])
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrFrameTooLong, err)
	}
	t.txLen, t.txPos = n, 0

	t.txState = TxStart
	t.serial.Enable(false, true)
	return nil
}

// ByteReceived advances the receive state machine by one character.
func (t *Transport) ByteReceived() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.serial.GetByte()
	if err != nil || t.txState != TxIdle {
		return false
	}

	switch t.rxState {
	case RxIdle:
		if c == asciipacket.Start {
			t.startFrame()
		}
	case RxRcv:
		switch {
		case c == asciipacket.Start:
			t.startFrame()
		case c == asciipacket.CR:
			t.rxState = RxWaitEOF
			t.arm()
		default:
			nib, ok := asciipacket.Nibble(c)
			if !ok {
				t.discard("invalid character", c)
				return false
			}
			if t.rxPhase == phaseHi {
				if t.rxPos >= len(t.rxBuf) {
					t.overruns.Inc()
					t.discard("receive buffer overrun", c)
					return false
				}
				t.rxBuf[t.rxPos] = nib << 4
				t.rxPhase = phaseLo
			} else {
				t.rxBuf[t.rxPos] |= nib
				t.rxPos++
				t.rxPhase = phaseHi
			}
			t.arm()
		}
	case RxWaitEOF:
		switch c {
		case t.eof:
			t.timer.Disable()
			t.armed = false
			t.rxState = RxIdle
			if t.rxPhase == phaseLo {
				t.logger.Debug("Odd number of hex characters, discarding frame")
				t.rxPos = 0
				return false
			}
			copy(t.frame[:], t.rxBuf[:t.rxPos])
			t.frameLen = t.rxPos
			t.rxPos = 0
			return t.events.Post(port.EventFrameReceived)
		case asciipacket.Start:
			t.startFrame()
		default:
			t.discard("unexpected character after CR", c)
		}
	}
	return false
}

// TransmitterEmpty emits the next character of the pending frame.
func (t *Transport) TransmitterEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.txState {
	case TxStart:
		t.put(asciipacket.Start)
		t.txState = TxData
		t.txPhase = phaseHi
	case TxData:
		if t.txPos == t.txLen {
			t.put(asciipacket.CR)
			t.txState = TxEnd
			break
		}
		b := t.txBuf[t.txPos]
		if t.txPhase == phaseHi {
			t.put(asciipacket.HexDigit(b >> 4))
			t.txPhase = phaseLo
		} else {
			t.put(asciipacket.HexDigit(b))
			t.txPhase = phaseHi
			t.txPos++
		}
	case TxEnd:
		t.put(t.eof)
		t.txState = TxNotify
	case TxNotify:
		t.txState = TxIdle
		t.serial.Enable(t.rxState != RxOff, false)
		return t.events.Post(port.EventFrameSent)
	default:
		t.serial.Enable(t.rxState != RxOff, false)
	}
	return false
}

// TimerExpired aborts a frame whose characters stopped arriving.
func (t *Transport) TimerExpired(token uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed || token != t.token {
		t.logger.Debug("Ignoring stale timer expiry", "token", token)
		return false
	}
	t.armed = false
	if t.rxState == RxRcv || t.rxState == RxWaitEOF {
		t.logger.Debug("Inter-character timeout, discarding frame", "bytes", t.rxPos)
		t.rxState = RxIdle
		t.rxPos = 0
	}
	return false
}

// startFrame resets the receive buffer. Caller must hold the mutex.
func (t *Transport) startFrame() {
	t.rxPos = 0
	t.rxPhase = phaseHi
	t.rxState = RxRcv
	t.arm()
}

// discard drops the frame in progress. Caller must hold the mutex.
func (t *Transport) discard(reason string, c byte) {
	t.logger.Debug("Discarding frame", "reason", reason, "char", c)
	t.timer.Disable()
	t.armed = false
	t.rxState = RxIdle
	t.rxPos = 0
}

// Caller must hold the mutex.
func (t *Transport) arm() {
	t.token = t.timer.Enable(t.timeout)
	t.armed = true
}

// Caller must hold the mutex.
func (t *Transport) put(c byte) {
	if err := t.serial.PutByte(c); err != nil {
		t.logger.Error("Serial put byte failed", "err", err)
	}
}
