// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package lrc computes the longitudinal redundancy check used by ASCII framing.
package lrc

// LRC is the two's complement of the 8-bit sum of all bytes.
type LRC struct {
	sum byte
}

func (lrc *LRC) Reset() *LRC {
	lrc.sum = 0
	return lrc
}

func (lrc *LRC) PushByte(b byte) *LRC {
	lrc.sum += b
	return lrc
}

func (lrc *LRC) PushBytes(bs []byte) *LRC {
	for _, b := range bs {
		lrc.sum += b
	}
	return lrc
}

func (lrc *LRC) Value() byte {
	return -lrc.sum
}

// Checksum returns the LRC of data. Data that already ends in its LRC
// yields zero.
func Checksum(data []byte) byte {
	var lrc LRC
	return lrc.PushBytes(data).Value()
}
