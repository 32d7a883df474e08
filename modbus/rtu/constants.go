// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "time"

const (
	// MinSize covers address, function code and CRC.
	MinSize = 4
	MaxSize = 256

	crcSize = 2
)

const (
	// Above this rate the silence intervals are fixed.
	fixedTimingBaudRate = 19200

	fixedT15 = 750 * time.Microsecond
	fixedT35 = 1750 * time.Microsecond

	// One character on the wire: start, 8 data, parity or second stop, stop.
	bitsPerChar = 11
)

// CharTime returns the time one character occupies the line at baud.
func CharTime(baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(bitsPerChar) * time.Second / time.Duration(baud)
}

// Timeouts returns the inter-character (t1.5) and inter-frame (t3.5)
// silence intervals for baud.
func Timeouts(baud int) (t15, t35 time.Duration) {
	if baud > fixedTimingBaudRate || baud <= 0 {
		return fixedT15, fixedT35
	}
	c := CharTime(baud)
	return c * 3 / 2, c * 7 / 2
}
