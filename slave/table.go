// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import "github.com/ffutop/modbus-slave/modbus"

// MaxHandlers is the capacity of a FunctionTable.
const MaxHandlers = 16

// HandlerFunc executes one request. frame holds the request PDU in its
// first n bytes and has room for a full PDU; the handler writes the
// response in place and returns its length. A non-zero exception makes
// the engine reply with an exception PDU instead.
//
// Handlers run from Poll with the engine lock held. They must not call
// back into the Engine (Diagnostics, SetSlaveID, RegisterHandler or the
// lifecycle methods): that deadlocks.
type HandlerFunc func(frame []byte, n int) (int, modbus.Exception)

type handlerEntry struct {
	code    byte
	handler HandlerFunc
}

// FunctionTable maps function codes to handlers. Lookup stops at the
// first free slot, so entries are kept contiguous.
type FunctionTable struct {
	entries [MaxHandlers]handlerEntry
}

// Register adds or replaces the handler for code.
func (t *FunctionTable) Register(code byte, h HandlerFunc) error {
	if code == 0 || h == nil {
		return ErrInvalidArgument
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.code == 0 {
			e.code, e.handler = code, h
			return nil
		}
		if e.code == code {
			e.handler = h
			return nil
		}
	}
	return ErrInsufficientResources
}

// Remove deletes the handler for code and reports whether it existed.
func (t *FunctionTable) Remove(code byte) bool {
	for i := range t.entries {
		if t.entries[i].code == 0 {
			return false
		}
		if t.entries[i].code == code {
			copy(t.entries[i:], t.entries[i+1:])
			t.entries[len(t.entries)-1] = handlerEntry{}
			return true
		}
	}
	return false
}

func (t *FunctionTable) Lookup(code byte) HandlerFunc {
	for _, e := range t.entries {
		if e.code == 0 {
			break
		}
		if e.code == code {
			return e.handler
		}
	}
	return nil
}

// Codes returns the registered function codes in table order.
func (t *FunctionTable) Codes() []byte {
	var codes []byte
	for _, e := range t.entries {
		if e.code == 0 {
			break
		}
		codes = append(codes, e.code)
	}
	return codes
}

// Functions selects the built-in handlers installed by New.
type Functions struct {
	ReportSlaveID              bool `mapstructure:"report_slave_id" yaml:"report_slave_id"`
	ReadInputRegisters         bool `mapstructure:"read_input_registers" yaml:"read_input_registers"`
	ReadHoldingRegisters       bool `mapstructure:"read_holding_registers" yaml:"read_holding_registers"`
	WriteSingleRegister        bool `mapstructure:"write_single_register" yaml:"write_single_register"`
	WriteMultipleRegisters     bool `mapstructure:"write_multiple_registers" yaml:"write_multiple_registers"`
	ReadWriteMultipleRegisters bool `mapstructure:"read_write_multiple_registers" yaml:"read_write_multiple_registers"`
	ReadCoils                  bool `mapstructure:"read_coils" yaml:"read_coils"`
	WriteSingleCoil            bool `mapstructure:"write_single_coil" yaml:"write_single_coil"`
	WriteMultipleCoils         bool `mapstructure:"write_multiple_coils" yaml:"write_multiple_coils"`
	ReadDiscreteInputs         bool `mapstructure:"read_discrete_inputs" yaml:"read_discrete_inputs"`
	ReadFileRecord             bool `mapstructure:"read_file_record" yaml:"read_file_record"`
	WriteFileRecord            bool `mapstructure:"write_file_record" yaml:"write_file_record"`
	Diagnostics                bool `mapstructure:"diagnostics" yaml:"diagnostics"`
	GetCommEventCounter        bool `mapstructure:"get_comm_event_counter" yaml:"get_comm_event_counter"`
}

// DefaultFunctions enables every built-in handler.
func DefaultFunctions() Functions {
	return Functions{
		ReportSlaveID:              true,
		ReadInputRegisters:         true,
		ReadHoldingRegisters:       true,
		WriteSingleRegister:        true,
		WriteMultipleRegisters:     true,
		ReadWriteMultipleRegisters: true,
		ReadCoils:                  true,
		WriteSingleCoil:            true,
		WriteMultipleCoils:         true,
		ReadDiscreteInputs:         true,
		ReadFileRecord:             true,
		WriteFileRecord:            true,
		Diagnostics:                true,
		GetCommEventCounter:        true,
	}
}
