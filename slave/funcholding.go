// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-slave/modbus"
)

// Quantity limits for register access.
const (
	readRegistersMax      = 0x007D
	writeRegistersMax     = 0x0078
	readWriteRegistersMax = 0x0079
)

func (e *Engine) readHoldingRegisters(frame []byte, n int) (int, modbus.Exception) {
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	count := binary.BigEndian.Uint16(frame[3:])
	if e.opts.TruncatedQuantity {
		count = uint16(frame[4])
	}
	if count < 1 || count > readRegistersMax {
		return n, modbus.ExceptionCodeIllegalDataValue
	}

	size := 2 * int(count)
	frame[1] = byte(size)
	buf := frame[2 : 2+size]
	clear(buf)
	if err := e.regs.ReadWriteHolding(buf, address, count, modbus.RegisterRead); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 2 + size, modbus.ExceptionCodeNone
}

func (e *Engine) writeSingleRegister(frame []byte, n int) (int, modbus.Exception) {
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	if err := e.regs.ReadWriteHolding(frame[3:5], address, 1, modbus.RegisterWrite); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return n, modbus.ExceptionCodeNone
}

func (e *Engine) writeMultipleRegisters(frame []byte, n int) (int, modbus.Exception) {
	if n < 6 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	count := binary.BigEndian.Uint16(frame[3:])
	size := int(frame[5])
	if count < 1 || count > writeRegistersMax || size != 2*int(count) || n < 6+size {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	if err := e.regs.ReadWriteHolding(frame[6:6+size], address, count, modbus.RegisterWrite); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 5, modbus.ExceptionCodeNone
}

// readWriteMultipleRegisters performs the write before the read, so a
// read of the written range returns the new values.
func (e *Engine) readWriteMultipleRegisters(frame []byte, n int) (int, modbus.Exception) {
	if n < 10 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	readAddress := requestAddress(frame)
	readCount := binary.BigEndian.Uint16(frame[3:])
	writeAddress := requestAddress(frame[4:])
	writeCount := binary.BigEndian.Uint16(frame[7:])
	size := int(frame[9])
	if readCount < 1 || readCount > readRegistersMax ||
		writeCount < 1 || writeCount > readWriteRegistersMax ||
		size != 2*int(writeCount) || n < 10+size {
		return n, modbus.ExceptionCodeIllegalDataValue
	}

	if err := e.regs.ReadWriteHolding(frame[10:10+size], writeAddress, writeCount, modbus.RegisterWrite); err != nil {
		return n, modbus.ExceptionFromError(err)
	}

	readSize := 2 * int(readCount)
	frame[1] = byte(readSize)
	buf := frame[2 : 2+readSize]
	clear(buf)
	if err := e.regs.ReadWriteHolding(buf, readAddress, readCount, modbus.RegisterRead); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 2 + readSize, modbus.ExceptionCodeNone
}

func (e *Engine) readInputRegisters(frame []byte, n int) (int, modbus.Exception) {
	if n != 5 {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	address := requestAddress(frame)
	count := binary.BigEndian.Uint16(frame[3:])
	if count < 1 || count > readRegistersMax {
		return n, modbus.ExceptionCodeIllegalDataValue
	}

	size := 2 * int(count)
	frame[1] = byte(size)
	buf := frame[2 : 2+size]
	clear(buf)
	if err := e.regs.ReadInput(buf, address, count); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 2 + size, modbus.ExceptionCodeNone
}
