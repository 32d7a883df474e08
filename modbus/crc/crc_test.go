// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestCRCCheckValue(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0x4B37 {
		t.Fatalf("crc expected %#x, actual %#x", 0x4B37, got)
	}
}

func TestCRCIncremental(t *testing.T) {
	data := []byte{0x0A, 0x03, 0x03, 0xE8, 0x00, 0x04}
	var crc CRC
	crc.Reset()
	for _, b := range data {
		crc.PushByte(b)
	}
	if crc.Value() != Checksum(data) {
		t.Fatalf("incremental %#x != one-shot %#x", crc.Value(), Checksum(data))
	}
}

func TestCRCResidueIsZero(t *testing.T) {
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}
	sum := Checksum(frame)
	frame = append(frame, byte(sum), byte(sum>>8))
	if got := Checksum(frame); got != 0 {
		t.Fatalf("residue expected 0, actual %#x", got)
	}
}
