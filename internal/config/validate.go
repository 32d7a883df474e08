// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"

	"github.com/ffutop/modbus-slave/modbus"
)

const (
	maxAddressSpace = 65536
	maxFiles        = 0xFFFF
	maxSlaveIDExtra = 29
)

// Validate checks configuration correctness. It does not modify cfg.
func Validate(cfg *Config) error {
	if _, err := modbus.ParseMode(cfg.Slave.Mode); err != nil {
		return fmt.Errorf("slave.mode: %w", err)
	}
	if cfg.Slave.Address < modbus.AddressMin || cfg.Slave.Address > modbus.AddressMax {
		return fmt.Errorf("slave.address %d out of range %d..%d", cfg.Slave.Address, modbus.AddressMin, modbus.AddressMax)
	}
	if cfg.Slave.QueueSize < 1 {
		return fmt.Errorf("slave.queue_size must be at least 1, got %d", cfg.Slave.QueueSize)
	}
	if cfg.Slave.ID.Value < 0 || cfg.Slave.ID.Value > 0xFF {
		return fmt.Errorf("slave.id.value %d does not fit in a byte", cfg.Slave.ID.Value)
	}
	if len(cfg.Slave.ID.Additional) > maxSlaveIDExtra {
		return fmt.Errorf("slave.id.additional is %d bytes, at most %d allowed", len(cfg.Slave.ID.Additional), maxSlaveIDExtra)
	}
	if cfg.Slave.ASCII.Timeout <= 0 {
		return fmt.Errorf("slave.ascii.timeout must be positive")
	}
	if len(cfg.Slave.ASCII.EndOfFrame) != 1 {
		return fmt.Errorf("slave.ascii.end_of_frame must be a single character, got %q", cfg.Slave.ASCII.EndOfFrame)
	}

	if err := validateSerial(&cfg.Serial); err != nil {
		return err
	}
	if err := validateStore(&cfg.Store); err != nil {
		return err
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	return nil
}

func validateSerial(s *SerialConfig) error {
	if s.Device == "" {
		return fmt.Errorf("serial.device is required")
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", s.BaudRate)
	}
	if s.DataBits != 7 && s.DataBits != 8 {
		return fmt.Errorf("serial.data_bits must be 7 or 8, got %d", s.DataBits)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity %q is not one of N, E, O", s.Parity)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits must be 1 or 2, got %d", s.StopBits)
	}
	if s.TimeoutSlack < 0 {
		return fmt.Errorf("serial.timeout_slack must not be negative, got %v", s.TimeoutSlack)
	}
	return nil
}

func validateStore(s *StoreConfig) error {
	p := s.Persistence
	switch p.Type {
	case "memory":
	case "file", "mmap":
		if p.Path == "" {
			return fmt.Errorf("store.persistence.path is required for %q persistence", p.Type)
		}
	case "sql":
		if p.Driver == "" || p.DSN == "" {
			return fmt.Errorf("store.persistence.driver and dsn are required for sql persistence")
		}
	default:
		return fmt.Errorf("store.persistence.type %q is not one of memory, file, mmap, sql", p.Type)
	}

	if s.Files < 0 || s.Files > maxFiles {
		return fmt.Errorf("store.files %d out of range 0..%d", s.Files, maxFiles)
	}

	windows := []struct {
		name string
		w    WindowConfig
	}{
		{"coils", s.Coils},
		{"discrete_inputs", s.Discrete},
		{"holding_registers", s.Holding},
		{"input_registers", s.Input},
	}
	for _, tw := range windows {
		if tw.w.Start < 1 || tw.w.Count < 0 || tw.w.Start-1+tw.w.Count > maxAddressSpace {
			return fmt.Errorf("store.%s: window start %d count %d exceeds the address space", tw.name, tw.w.Start, tw.w.Count)
		}
	}
	return nil
}
