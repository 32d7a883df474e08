// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol level definitions shared by the serial
// line transports and the slave engine.
package modbus

import (
	"fmt"
	"strings"
)

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeDiagnostics            = 0x08
	FuncCodeGetCommEventCounter    = 0x0B
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeReportSlaveID          = 0x11
	FuncCodeReadFileRecord         = 0x14
	FuncCodeWriteFileRecord        = 0x15

	FuncCodeReadWriteMultipleRegisters = 0x17

	// FuncCodeError is or'ed into the function code of an exception response.
	FuncCodeError = 0x80
)

// Slave addresses on a serial line.
const (
	AddressBroadcast = 0
	AddressMin       = 1
	AddressMax       = 247
)

// PDU sizes. A serial line PDU is limited to 253 bytes so that the ADU
// including address and checksum fits 256 bytes.
const (
	PDUSizeMin = 1
	PDUSizeMax = 253
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Bytes returns the PDU in wire order.
func (pdu ProtocolDataUnit) Bytes() []byte {
	b := make([]byte, 0, 1+len(pdu.Data))
	b = append(b, pdu.FunctionCode)
	return append(b, pdu.Data...)
}

// RegisterMode tells a register accessor whether to fill or consume the buffer.
type RegisterMode int

const (
	RegisterRead RegisterMode = iota
	RegisterWrite
)

func (m RegisterMode) String() string {
	if m == RegisterWrite {
		return "write"
	}
	return "read"
}

// Mode selects the serial line framing.
type Mode int

const (
	ModeRTU Mode = iota
	ModeASCII
)

func (m Mode) String() string {
	switch m {
	case ModeRTU:
		return "rtu"
	case ModeASCII:
		return "ascii"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses "rtu" or "ascii", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rtu":
		return ModeRTU, nil
	case "ascii":
		return ModeASCII, nil
	}
	return 0, fmt.Errorf("modbus: unknown mode '%v'", s)
}
