// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-slave/modbus"
	"go.uber.org/atomic"
)

// Diagnostics sub-functions.
const (
	diagReturnQueryData          uint16 = 0x00
	diagRestartCommunications    uint16 = 0x01
	diagReturnDiagnosticRegister uint16 = 0x02
	diagForceListenOnly          uint16 = 0x04
	diagClearCounters            uint16 = 0x0A
	diagBusMessageCount          uint16 = 0x0B
	diagBusCommErrorCount        uint16 = 0x0C
	diagBusExceptionErrorCount   uint16 = 0x0D
	diagSlaveMessageCount        uint16 = 0x0E
	diagSlaveNoResponseCount     uint16 = 0x0F
	diagSlaveNAKCount            uint16 = 0x10
	diagSlaveBusyCount           uint16 = 0x11
	diagBusCharacterOverrunCount uint16 = 0x12
)

const restartClearLog uint16 = 0xFF00

// Diagnostics is a snapshot of the serial line counters.
type Diagnostics struct {
	BusMessages       uint32
	BusCommErrors     uint32
	ExceptionErrors   uint32
	SlaveMessages     uint32
	SlaveNoResponse   uint32
	SlaveNAK          uint32
	SlaveBusy         uint32
	CharacterOverruns uint32
	CommEvents        uint16
	Register          uint16
	ListenOnly        bool
}

type counters struct {
	busMessages     atomic.Uint32
	busCommErrors   atomic.Uint32
	exceptionErrors atomic.Uint32
	slaveMessages   atomic.Uint32
	slaveNoResponse atomic.Uint32
	slaveNAK        atomic.Uint32
	slaveBusy       atomic.Uint32
	commEvents      atomic.Uint32
	register        atomic.Uint32
	listenOnly      atomic.Bool

	// transport overrun count at the last clear
	overrunBase atomic.Uint32
}

// reset clears every counter. Listen-only mode is left alone.
func (c *counters) reset(overruns uint32) {
	c.busMessages.Store(0)
	c.busCommErrors.Store(0)
	c.exceptionErrors.Store(0)
	c.slaveMessages.Store(0)
	c.slaveNoResponse.Store(0)
	c.slaveNAK.Store(0)
	c.slaveBusy.Store(0)
	c.commEvents.Store(0)
	c.register.Store(0)
	c.overrunBase.Store(overruns)
}

// count records the outcome of an executed request.
func (c *counters) count(fc byte, ex modbus.Exception) {
	if ex != modbus.ExceptionCodeNone {
		c.exceptionErrors.Inc()
		switch ex {
		case modbus.ExceptionCodeSlaveDeviceBusy:
			c.slaveBusy.Inc()
		case modbus.ExceptionCodeNegativeAcknowledge:
			c.slaveNAK.Inc()
		}
		return
	}
	if fc != modbus.FuncCodeDiagnostics && fc != modbus.FuncCodeGetCommEventCounter {
		c.commEvents.Inc()
	}
}

// Diagnostics returns the current counters.
func (e *Engine) Diagnostics() Diagnostics {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Diagnostics{
		BusMessages:       e.counters.busMessages.Load(),
		BusCommErrors:     e.counters.busCommErrors.Load(),
		ExceptionErrors:   e.counters.exceptionErrors.Load(),
		SlaveMessages:     e.counters.slaveMessages.Load(),
		SlaveNoResponse:   e.counters.slaveNoResponse.Load(),
		SlaveNAK:          e.counters.slaveNAK.Load(),
		SlaveBusy:         e.counters.slaveBusy.Load(),
		CharacterOverruns: e.overruns(),
		CommEvents:        uint16(e.counters.commEvents.Load()),
		Register:          uint16(e.counters.register.Load()),
		ListenOnly:        e.counters.listenOnly.Load(),
	}
}

// SetDiagnosticRegister sets the value returned by sub-function 0x02.
func (e *Engine) SetDiagnosticRegister(v uint16) {
	e.counters.register.Store(uint32(v))
}

// overruns is the transport overrun count since the last clear. Caller
// must hold the mutex.
func (e *Engine) overruns() uint32 {
	if e.tr == nil {
		return 0
	}
	return e.tr.Overruns() - e.counters.overrunBase.Load()
}

func (e *Engine) clearCounters() {
	var base uint32
	if e.tr != nil {
		base = e.tr.Overruns()
	}
	e.counters.reset(base)
}

// isRestartRequest reports whether the pending frame is the one request
// still executed in listen-only mode.
func (e *Engine) isRestartRequest() bool {
	return e.length >= 3 &&
		e.frame[0] == modbus.FuncCodeDiagnostics &&
		binary.BigEndian.Uint16(e.frame[1:]) == diagRestartCommunications
}

// serialDiagnostics serves function 0x08. The reply echoes the request
// with the sub-function result in the data field.
func (e *Engine) serialDiagnostics(frame []byte, n int) (int, modbus.Exception) {
	if n < 3 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	sub := binary.BigEndian.Uint16(frame[1:])
	if sub == diagReturnQueryData {
		return n, modbus.ExceptionCodeNone
	}
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	data := binary.BigEndian.Uint16(frame[3:])

	var value uint32
	switch sub {
	case diagRestartCommunications:
		if data != 0 && data != restartClearLog {
			return n, modbus.ExceptionCodeIllegalDataValue
		}
		if e.counters.listenOnly.Load() {
			e.noReply = true
		}
		e.counters.listenOnly.Store(false)
		e.clearCounters()
		return n, modbus.ExceptionCodeNone
	case diagForceListenOnly:
		e.counters.listenOnly.Store(true)
		e.noReply = true
		return n, modbus.ExceptionCodeNone
	case diagClearCounters:
		e.clearCounters()
		return n, modbus.ExceptionCodeNone
	case diagReturnDiagnosticRegister:
		value = e.counters.register.Load()
	case diagBusMessageCount:
		value = e.counters.busMessages.Load()
	case diagBusCommErrorCount:
		value = e.counters.busCommErrors.Load()
	case diagBusExceptionErrorCount:
		value = e.counters.exceptionErrors.Load()
	case diagSlaveMessageCount:
		value = e.counters.slaveMessages.Load()
	case diagSlaveNoResponseCount:
		value = e.counters.slaveNoResponse.Load()
	case diagSlaveNAKCount:
		value = e.counters.slaveNAK.Load()
	case diagSlaveBusyCount:
		value = e.counters.slaveBusy.Load()
	case diagBusCharacterOverrunCount:
		value = e.overruns()
	default:
		return n, modbus.ExceptionCodeIllegalFunction
	}
	binary.BigEndian.PutUint16(frame[3:], uint16(value))
	return 5, modbus.ExceptionCodeNone
}

// getCommEventCounter serves function 0x0B: a status word and the number
// of requests completed without exception.
func (e *Engine) getCommEventCounter(frame []byte, n int) (int, modbus.Exception) {
	if n != 1 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	binary.BigEndian.PutUint16(frame[1:], 0x0000)
	binary.BigEndian.PutUint16(frame[3:], uint16(e.counters.commEvents.Load()))
	return 5, modbus.ExceptionCodeNone
}
