// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// SetBits writes the n low bits of value into buf starting at bit offset.
// Bit 0 of buf[0] is the first bit. n must be in 1..8; the bits may straddle
// a byte boundary. Bits outside the window are left untouched.
func SetBits(buf []byte, offset uint16, n uint8, value byte) {
	if n == 0 || n > 8 {
		panic("modbus: SetBits bit count out of range")
	}
	idx := int(offset / 8)
	shift := offset % 8
	mask := uint16(1)<<n - 1

	word := uint16(buf[idx])
	if shift+uint16(n) > 8 {
		word |= uint16(buf[idx+1]) << 8
	}
	word &^= mask << shift
	word |= (uint16(value) & mask) << shift

	buf[idx] = byte(word)
	if shift+uint16(n) > 8 {
		buf[idx+1] = byte(word >> 8)
	}
}

// GetBits reads n bits (1..8) from buf starting at bit offset.
func GetBits(buf []byte, offset uint16, n uint8) byte {
	if n == 0 || n > 8 {
		panic("modbus: GetBits bit count out of range")
	}
	idx := int(offset / 8)
	shift := offset % 8
	mask := uint16(1)<<n - 1

	word := uint16(buf[idx])
	if shift+uint16(n) > 8 {
		word |= uint16(buf[idx+1]) << 8
	}
	return byte(word >> shift & mask)
}

// PackedSize returns the number of bytes needed to hold count bits.
func PackedSize(count uint16) int {
	return (int(count) + 7) / 8
}
