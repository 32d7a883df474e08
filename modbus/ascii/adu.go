// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ascii implements the ASCII serial line frame layout.
package ascii

import (
	"errors"
	"fmt"

	"github.com/ffutop/modbus-slave/modbus"
	"github.com/ffutop/modbus-slave/modbus/lrc"
)

const (
	Start = ':'
	CR    = '\r'
	LF    = '\n'

	// MinSize is the decoded minimum: address, function code and LRC.
	MinSize = 3
	// MaxSize is the decoded maximum.
	MaxSize = 256
)

var (
	ErrShortFrame = errors.New("ascii: frame too short")
	ErrLongFrame  = errors.New("ascii: frame too long")
	ErrLRC        = errors.New("ascii: lrc mismatch")
	ErrFormat     = errors.New("ascii: malformed frame")
)

const hexDigits = "0123456789ABCDEF"

// HexDigit returns the upper case hex character for the low nibble of n.
func HexDigit(n byte) byte {
	return hexDigits[n&0x0F]
}

// Nibble decodes one hex character. Lower case is accepted.
func Nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// ApplicationDataUnit is an addressed ASCII frame.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Encode renders the frame as ':' hex(address pdu lrc) CR LF.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	var bin [MaxSize]byte
	n, err := adu.Pack(bin[:])
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, 1+2*n+2)
	raw = append(raw, Start)
	for _, b := range bin[:n] {
		raw = appendHex(raw, b)
	}
	return append(raw, CR, LF), nil
}

// Pack writes address, pdu and LRC into dst in binary form, the frame a
// transmitter sends as hex characters. It returns the length.
func (adu *ApplicationDataUnit) Pack(dst []byte) (int, error) {
	n := 2 + len(adu.Pdu.Data) + 1
	if n > MaxSize || n > len(dst) {
		return 0, fmt.Errorf("%w: length '%v' exceeds maximum '%v'", ErrLongFrame, n, min(MaxSize, len(dst)))
	}
	dst[0] = adu.SlaveID
	dst[1] = adu.Pdu.FunctionCode
	copy(dst[2:], adu.Pdu.Data)
	dst[n-1] = lrc.Checksum(dst[:n-1])
	return n, nil
}

// Decode parses a complete ASCII frame including ':' and CR LF.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	if len(raw) < 3 || raw[0] != Start || raw[len(raw)-2] != CR || raw[len(raw)-1] != LF {
		return nil, ErrFormat
	}
	body := raw[1 : len(raw)-2]
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of hex characters", ErrFormat)
	}
	if len(body)/2 > MaxSize {
		return nil, fmt.Errorf("%w: length '%v' exceeds maximum '%v'", ErrLongFrame, len(body)/2, MaxSize)
	}
	frame := make([]byte, len(body)/2)
	for i := range frame {
		hi, ok1 := Nibble(body[2*i])
		lo, ok2 := Nibble(body[2*i+1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: invalid hex at %d", ErrFormat, 2*i+1)
		}
		frame[i] = hi<<4 | lo
	}
	return Unpack(frame)
}

// Unpack checks a binary frame of address, pdu and LRC, as assembled by a
// receiver from the hex characters. The returned PDU data aliases frame.
func Unpack(frame []byte) (*ApplicationDataUnit, error) {
	n := len(frame)
	if n < MinSize {
		return nil, fmt.Errorf("%w: length '%v' does not meet minimum '%v'", ErrShortFrame, n, MinSize)
	}
	if n > MaxSize {
		return nil, fmt.Errorf("%w: length '%v' exceeds maximum '%v'", ErrLongFrame, n, MaxSize)
	}
	if sum := lrc.Checksum(frame); sum != 0 {
		return nil, fmt.Errorf("%w: residue '%#02x'", ErrLRC, sum)
	}
	return &ApplicationDataUnit{
		SlaveID: frame[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: frame[1],
			Data:         frame[2 : n-1],
		},
	}, nil
}

func appendHex(dst []byte, b byte) []byte {
	return append(dst, HexDigit(b>>4), HexDigit(b))
}
