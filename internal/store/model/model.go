// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ffutop/modbus-slave/modbus"
)

const (
	MaxAddress = 65535
	// RecordsPerFile is the number of 16-bit records in each file.
	RecordsPerFile = 10000
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
	TableFileRecords
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	case TableFileRecords:
		return "file_records"
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// DataModel holds the modbus data in memory.
// Addresses are 0-based indexes covering the full 16-bit address space.
type DataModel struct {
	mu sync.RWMutex

	// 0x Coils (Read/Write). Stored as 1 (ON) or 0 (OFF).
	Coils []byte
	// 1x Discrete Inputs (Read Only). Stored as 1 (ON) or 0 (OFF).
	DiscreteInputs []byte
	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
	// 3x Input Registers (Read Only).
	InputRegisters []uint16
	// 6x File records, RecordsPerFile per file, file 1 first.
	FileRecords []uint16
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel(files int) *DataModel {
	return &DataModel{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
		FileRecords:      make([]uint16, files*RecordsPerFile),
	}
}

// Files returns the number of record files.
func (m *DataModel) Files() int {
	return len(m.FileRecords) / RecordsPerFile
}

func (m *DataModel) bits(table TableType) []byte {
	if table == TableCoils {
		return m.Coils
	}
	return m.DiscreteInputs
}

func (m *DataModel) words(table TableType) []uint16 {
	switch table {
	case TableHoldingRegisters:
		return m.HoldingRegisters
	case TableInputRegisters:
		return m.InputRegisters
	}
	return m.FileRecords
}

// ReadBits packs quantity coils or discrete inputs into buf, first bit in
// the least significant position.
func (m *DataModel) ReadBits(table TableType, buf []byte, address, quantity uint16) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.bits(table)
	if err := validateRange(int(address), int(quantity), len(src)); err != nil {
		return err
	}
	for i := 0; i < int(quantity); i += 8 {
		n := min(int(quantity)-i, 8)
		var v byte
		for j := 0; j < n; j++ {
			if src[int(address)+i+j] != 0 {
				v |= 1 << uint(j)
			}
		}
		modbus.SetBits(buf, uint16(i), uint8(n), v)
	}
	return nil
}

// WriteCoils writes quantity coils from packed bytes.
func (m *DataModel) WriteCoils(buf []byte, address, quantity uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(int(address), int(quantity), len(m.Coils)); err != nil {
		return err
	}
	for i := 0; i < int(quantity); i++ {
		m.Coils[int(address)+i] = modbus.GetBits(buf, uint16(i), 1)
	}
	return nil
}

// SetDiscreteInputs is used by the application to update inputs.
func (m *DataModel) SetDiscreteInputs(address uint16, values ...bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(int(address), len(values), len(m.DiscreteInputs)); err != nil {
		return err
	}
	for i, v := range values {
		var b byte
		if v {
			b = 1
		}
		m.DiscreteInputs[int(address)+i] = b
	}
	return nil
}

// ReadRegisters copies quantity registers of table into buf as BigEndian
// bytes. For TableFileRecords address is the flat record index.
func (m *DataModel) ReadRegisters(table TableType, buf []byte, address, quantity int) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.words(table)
	if err := validateRange(address, quantity, len(src)); err != nil {
		return err
	}
	for i := 0; i < quantity; i++ {
		binary.BigEndian.PutUint16(buf[i*2:], src[address+i])
	}
	return nil
}

// WriteRegisters writes quantity registers of table from BigEndian bytes.
func (m *DataModel) WriteRegisters(table TableType, buf []byte, address, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst := m.words(table)
	if err := validateRange(address, quantity, len(dst)); err != nil {
		return err
	}
	for i := 0; i < quantity; i++ {
		dst[address+i] = binary.BigEndian.Uint16(buf[i*2:])
	}
	return nil
}

// SetInputRegisters is used by the application to update input registers.
func (m *DataModel) SetInputRegisters(address uint16, values ...uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(int(address), len(values), len(m.InputRegisters)); err != nil {
		return err
	}
	copy(m.InputRegisters[address:], values)
	return nil
}

// Value returns one entry of table, for persistence backends.
func (m *DataModel) Value(table TableType, address int) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch table {
	case TableCoils, TableDiscreteInputs:
		return int64(m.bits(table)[address])
	}
	return int64(m.words(table)[address])
}

func validateRange(address, quantity, size int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", modbus.ErrNoRegister)
	}
	if address < 0 || address+quantity > size {
		return fmt.Errorf("%w: range %d+%d out of bounds", modbus.ErrNoRegister, address, quantity)
	}
	return nil
}
