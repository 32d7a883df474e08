// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
	"testing"
)

func TestExceptionFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Exception
	}{
		{"nil", nil, ExceptionCodeNone},
		{"no register", ErrNoRegister, ExceptionCodeIllegalDataAddress},
		{"wrapped no register", fmt.Errorf("holding 40001: %w", ErrNoRegister), ExceptionCodeIllegalDataAddress},
		{"timeout", ErrTimeout, ExceptionCodeSlaveDeviceBusy},
		{"io", ErrIO, ExceptionCodeSlaveDeviceFailure},
		{"other", errors.New("disk on fire"), ExceptionCodeSlaveDeviceFailure},
		{"explicit exception", ExceptionCodeAcknowledge, ExceptionCodeAcknowledge},
		{"wrapped exception", fmt.Errorf("x: %w", ExceptionCodeIllegalDataValue), ExceptionCodeIllegalDataValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExceptionFromError(tt.err); got != tt.want {
				t.Errorf("ExceptionFromError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"rtu", ModeRTU, false},
		{"RTU", ModeRTU, false},
		{"", ModeRTU, false},
		{" ascii ", ModeASCII, false},
		{"tcp", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
