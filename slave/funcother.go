// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"fmt"

	"github.com/ffutop/modbus-slave/modbus"
)

const slaveIDBufSize = 32

const (
	runIndicatorOn  byte = 0xFF
	runIndicatorOff byte = 0x00
)

// SetSlaveID sets the payload of Report Slave ID: the id byte, the run
// indicator and additional device specific data.
func (e *Engine) SetSlaveID(id byte, running bool, additional []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if 2+len(additional) >= slaveIDBufSize {
		return fmt.Errorf("%w: %d bytes of additional slave id data", ErrInsufficientResources, len(additional))
	}
	e.slaveID[0] = id
	e.slaveID[1] = runIndicatorOff
	if running {
		e.slaveID[1] = runIndicatorOn
	}
	copy(e.slaveID[2:], additional)
	e.slaveIDLen = 2 + len(additional)
	return nil
}

func (e *Engine) reportSlaveID(frame []byte, n int) (int, modbus.Exception) {
	frame[1] = byte(e.slaveIDLen)
	copy(frame[2:], e.slaveID[:e.slaveIDLen])
	return 2 + e.slaveIDLen, modbus.ExceptionCodeNone
}
