// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// Exception is a Modbus exception code. The zero value means no exception.
//
// Exception implements error so that a register accessor can fail with a
// specific code instead of one of the generic register errors.
type Exception byte

// Exception Codes
const (
	ExceptionCodeNone                               Exception = 0x00
	ExceptionCodeIllegalFunction                    Exception = 0x01
	ExceptionCodeIllegalDataAddress                 Exception = 0x02
	ExceptionCodeIllegalDataValue                   Exception = 0x03
	ExceptionCodeSlaveDeviceFailure                 Exception = 0x04
	ExceptionCodeAcknowledge                        Exception = 0x05
	ExceptionCodeSlaveDeviceBusy                    Exception = 0x06
	ExceptionCodeNegativeAcknowledge                Exception = 0x07
	ExceptionCodeMemoryParityError                  Exception = 0x08
	ExceptionCodeGatewayPathUnavailable             Exception = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond Exception = 0x0B
)

func (e Exception) Error() string {
	var name string
	switch e {
	case ExceptionCodeNone:
		name = "none"
	case ExceptionCodeIllegalFunction:
		name = "illegal function"
	case ExceptionCodeIllegalDataAddress:
		name = "illegal data address"
	case ExceptionCodeIllegalDataValue:
		name = "illegal data value"
	case ExceptionCodeSlaveDeviceFailure:
		name = "slave device failure"
	case ExceptionCodeAcknowledge:
		name = "acknowledge"
	case ExceptionCodeSlaveDeviceBusy:
		name = "slave device busy"
	case ExceptionCodeNegativeAcknowledge:
		name = "negative acknowledge"
	case ExceptionCodeMemoryParityError:
		name = "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		name = "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		name = "gateway target device failed to respond"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception '%v' (%s)", byte(e), name)
}

// Errors returned by register accessors.
var (
	ErrNoRegister = errors.New("modbus: no such register")
	ErrTimeout    = errors.New("modbus: register access timed out")
	ErrIO         = errors.New("modbus: register i/o error")
)

// ExceptionFromError maps a register accessor error to the exception sent
// back to the master.
func ExceptionFromError(err error) Exception {
	if err == nil {
		return ExceptionCodeNone
	}
	var ex Exception
	if errors.As(err, &ex) {
		return ex
	}
	switch {
	case errors.Is(err, ErrNoRegister):
		return ExceptionCodeIllegalDataAddress
	case errors.Is(err, ErrTimeout):
		return ExceptionCodeSlaveDeviceBusy
	default:
		return ExceptionCodeSlaveDeviceFailure
	}
}
