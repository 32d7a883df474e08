// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"unsafe"

	"github.com/ffutop/modbus-slave/internal/store/model"
)

// On-disk layout shared by the file and mmap backends:
//
//	Coils            65536 bytes       offset 0
//	DiscreteInputs   65536 bytes       offset 65536
//	HoldingRegisters 65536 * 2 bytes   offset 131072
//	InputRegisters   65536 * 2 bytes   offset 262144
//	FileRecords      files * 10000 * 2 offset 393216
const (
	sizeCoils    = model.MaxAddress + 1
	sizeDiscrete = model.MaxAddress + 1
	sizeHolding  = (model.MaxAddress + 1) * 2
	sizeInput    = (model.MaxAddress + 1) * 2

	offsetCoils    = 0
	offsetDiscrete = offsetCoils + sizeCoils
	offsetHolding  = offsetDiscrete + sizeDiscrete
	offsetInput    = offsetHolding + sizeHolding
	offsetFiles    = offsetInput + sizeInput
)

func totalSize(files int) int {
	return offsetFiles + files*model.RecordsPerFile*2
}

// span returns the byte range backing quantity entries of table.
func span(table model.TableType, address, quantity int) (off, n int) {
	switch table {
	case model.TableCoils:
		return offsetCoils + address, quantity
	case model.TableDiscreteInputs:
		return offsetDiscrete + address, quantity
	case model.TableHoldingRegisters:
		return offsetHolding + address*2, quantity * 2
	case model.TableInputRegisters:
		return offsetInput + address*2, quantity * 2
	}
	return offsetFiles + address*2, quantity * 2
}

// mapBytesToModel constructs a DataModel backed by data, zero-copy.
// Registers are stored in host byte order, so a data file is only portable
// between hosts of the same endianness.
func mapBytesToModel(data []byte, files int) *model.DataModel {
	return &model.DataModel{
		Coils:            data[offsetCoils : offsetCoils+sizeCoils],
		DiscreteInputs:   data[offsetDiscrete : offsetDiscrete+sizeDiscrete],
		HoldingRegisters: words(data[offsetHolding : offsetHolding+sizeHolding]),
		InputRegisters:   words(data[offsetInput : offsetInput+sizeInput]),
		FileRecords:      words(data[offsetFiles:totalSize(files)]),
	}
}

func words(b []byte) []uint16 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}
