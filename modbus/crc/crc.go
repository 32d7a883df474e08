// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the CRC-16/MODBUS checksum used by RTU framing.
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC is an incremental CRC-16/MODBUS. Call Reset before first use.
type CRC struct {
	crc uint16
}

func (crc *CRC) Reset() *CRC {
	crc.crc = crc16.Init(table)
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	crc.crc = crc16.Update(crc.crc, bs, table)
	return crc
}

func (crc *CRC) PushByte(b byte) *CRC {
	var one [1]byte
	one[0] = b
	return crc.PushBytes(one[:])
}

func (crc *CRC) Value() uint16 {
	return crc16.Complete(crc.crc, table)
}

// Checksum returns the CRC of data. A frame with its trailing checksum
// (low byte first) included yields zero.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}
