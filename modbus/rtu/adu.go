// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu implements the RTU serial line frame layout and timing.
package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-slave/modbus"
	"github.com/ffutop/modbus-slave/modbus/crc"
)

var (
	ErrShortFrame = errors.New("rtu: frame too short")
	ErrLongFrame  = errors.New("rtu: frame too long")
	ErrCRC        = errors.New("rtu: crc mismatch")
)

// ApplicationDataUnit is an addressed RTU frame.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode parses and checks raw. The returned PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("%w: length '%v' does not meet minimum '%v'", ErrShortFrame, length, MinSize)
		return
	}
	if length > MaxSize {
		err = fmt.Errorf("%w: length '%v' exceeds maximum '%v'", ErrLongFrame, length, MaxSize)
		return
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-crcSize])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = fmt.Errorf("%w: received '%#04x', expected '%#04x'", ErrCRC, checksum, c.Value())
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-crcSize]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes, low byte first
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	raw = make([]byte, len(adu.Pdu.Data)+MinSize)
	n, err := adu.EncodeTo(raw)
	if err != nil {
		return nil, err
	}
	return raw[:n], nil
}

// EncodeTo writes the frame into dst and returns its length.
func (adu *ApplicationDataUnit) EncodeTo(dst []byte) (int, error) {
	length := len(adu.Pdu.Data) + MinSize
	if length > MaxSize || length > len(dst) {
		return 0, fmt.Errorf("%w: length of data '%v' must not be bigger than '%v'", ErrLongFrame, length, min(MaxSize, len(dst)))
	}
	dst[0] = adu.SlaveID
	dst[1] = adu.Pdu.FunctionCode
	copy(dst[2:], adu.Pdu.Data)

	AppendCRC(dst[:length-crcSize], dst[length-crcSize:length])
	return length, nil
}

// AppendCRC writes the checksum of frame into dst[0:2], low byte first.
func AppendCRC(frame, dst []byte) {
	sum := crc.Checksum(frame)
	dst[0] = byte(sum)
	dst[1] = byte(sum >> 8)
}
