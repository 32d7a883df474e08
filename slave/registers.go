// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import "github.com/ffutop/modbus-slave/modbus"

// Registers gives the engine access to the application's data tables.
// Addresses are 1-based: the wire address plus one.
//
// Register values travel big-endian, two bytes per register. Coil and
// discrete values are packed eight per byte, first bit in the least
// significant position, and a read buffer arrives zeroed.
//
// Implementations return nil, modbus.ErrNoRegister, modbus.ErrTimeout,
// modbus.ErrIO, or a modbus.Exception to choose the exception directly.
type Registers interface {
	ReadInput(buf []byte, address, count uint16) error
	ReadWriteHolding(buf []byte, address, count uint16, mode modbus.RegisterMode) error
	ReadWriteCoils(buf []byte, address, count uint16, mode modbus.RegisterMode) error
	ReadDiscrete(buf []byte, address, count uint16) error
}

// FileRecords gives access to extended memory files. count is the number
// of 16-bit registers starting at record.
type FileRecords interface {
	ReadWriteFileRecord(buf []byte, file, record, count uint16, mode modbus.RegisterMode) error
}
