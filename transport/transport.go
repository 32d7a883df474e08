// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the contract between the slave engine and the
// serial line framing state machines.
package transport

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-slave/modbus"
	"github.com/ffutop/modbus-slave/port"
)

var (
	ErrChecksum      = errors.New("transport: checksum mismatch")
	ErrFrameTooShort = errors.New("transport: frame too short")
	ErrFrameTooLong  = errors.New("transport: frame too long")
	ErrNoFrame       = errors.New("transport: no frame available")
	ErrBusy          = errors.New("transport: receiver busy")
)

// Transport frames PDUs on a serial line. Its driver facing side is the
// port handler callbacks; its engine facing side is Receive and Send.
//
// A received frame is announced by posting port.EventFrameReceived and a
// completed transmission by port.EventFrameSent.
type Transport interface {
	port.SerialHandler
	port.TimerHandler

	// Init initialises the serial and timer drivers.
	Init(cfg port.SerialConfig) error
	// Start enables the receiver. Stop disables receiver, transmitter
	// and timer and discards any partial frame.
	Start()
	Stop()
	// Close releases the drivers.
	Close() error

	// Receive copies the PDU of the last complete frame into dst and
	// returns the address it was sent to.
	Receive(dst []byte) (address byte, n int, err error)
	// Send frames pdu for address and starts transmission. It returns
	// before the frame is on the wire.
	Send(address byte, pdu []byte) error

	// Overruns counts frames lost to receive buffer overflow.
	Overruns() uint32
}

// CopyPDU writes function code and data of pdu into dst.
func CopyPDU(dst []byte, pdu modbus.ProtocolDataUnit) (int, error) {
	n := 1 + len(pdu.Data)
	if n > len(dst) {
		return 0, fmt.Errorf("%w: pdu of %d bytes", ErrFrameTooLong, n)
	}
	dst[0] = pdu.FunctionCode
	copy(dst[1:], pdu.Data)
	return n, nil
}
