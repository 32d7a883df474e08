// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-slave/modbus"
)

// Quantity limits for bit access.
const (
	readBitsMax   = 0x07D0
	writeCoilsMax = 0x07B0
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// requestAddress decodes the 16-bit wire address at frame[1:] and returns
// the 1-based accessor address.
func requestAddress(frame []byte) uint16 {
	return binary.BigEndian.Uint16(frame[1:]) + 1
}

func (e *Engine) readCoils(frame []byte, n int) (int, modbus.Exception) {
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	count := binary.BigEndian.Uint16(frame[3:])
	if e.opts.TruncatedQuantity {
		count = uint16(frame[4])
	}
	if count < 1 || count > readBitsMax {
		return n, modbus.ExceptionCodeIllegalDataValue
	}

	size := modbus.PackedSize(count)
	frame[1] = byte(size)
	buf := frame[2 : 2+size]
	clear(buf)
	if err := e.regs.ReadWriteCoils(buf, address, count, modbus.RegisterRead); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 2 + size, modbus.ExceptionCodeNone
}

func (e *Engine) writeSingleCoil(frame []byte, n int) (int, modbus.Exception) {
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	switch binary.BigEndian.Uint16(frame[3:]) {
	case coilOn:
		e.scratch[0] = 1
	case coilOff:
		e.scratch[0] = 0
	default:
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	e.scratch[1] = 0
	if err := e.regs.ReadWriteCoils(e.scratch[:1], address, 1, modbus.RegisterWrite); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return n, modbus.ExceptionCodeNone
}

func (e *Engine) writeMultipleCoils(frame []byte, n int) (int, modbus.Exception) {
	if n <= 6 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	count := binary.BigEndian.Uint16(frame[3:])
	size := int(frame[5])
	if count < 1 || count > writeCoilsMax || size != modbus.PackedSize(count) || n < 6+size {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	if err := e.regs.ReadWriteCoils(frame[6:6+size], address, count, modbus.RegisterWrite); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	// Reply with function, address and quantity.
	return 5, modbus.ExceptionCodeNone
}

func (e *Engine) readDiscreteInputs(frame []byte, n int) (int, modbus.Exception) {
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	count := binary.BigEndian.Uint16(frame[3:])
	if count < 1 || count > readBitsMax {
		return n, modbus.ExceptionCodeIllegalDataValue
	}

	size := modbus.PackedSize(count)
	frame[1] = byte(size)
	buf := frame[2 : 2+size]
	clear(buf)
	if err := e.regs.ReadDiscrete(buf, address, count); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 2 + size, modbus.ExceptionCodeNone
}
