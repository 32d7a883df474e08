// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package store backs the slave register callbacks with a DataModel and a
// persistence backend.
package store

import (
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-slave/internal/store/model"
	"github.com/ffutop/modbus-slave/internal/store/persistence"
	"github.com/ffutop/modbus-slave/modbus"
	"github.com/ffutop/modbus-slave/slave"
	"go.uber.org/multierr"
)

// Window exposes Count entries of a table starting at the 1-based address
// Start. A zero Count hides the table.
type Window struct {
	Start int
	Count int
}

// contains reports whether the 1-based range address..address+count-1 is
// inside w.
func (w Window) contains(address, count int) bool {
	return address >= w.Start && address+count <= w.Start+w.Count
}

// Windows holds the visible range of each table.
type Windows struct {
	Coils    Window
	Discrete Window
	Holding  Window
	Input    Window
}

// FullWindows exposes the entire address space of every table.
func FullWindows() Windows {
	full := Window{Start: 1, Count: model.MaxAddress + 1}
	return Windows{Coils: full, Discrete: full, Holding: full, Input: full}
}

// Store implements slave.Registers and slave.FileRecords.
type Store struct {
	model   *model.DataModel
	storage persistence.Storage
	windows Windows
	logger  *slog.Logger
}

var (
	_ slave.Registers   = (*Store)(nil)
	_ slave.FileRecords = (*Store)(nil)
)

// New loads the data model from storage.
func New(storage persistence.Storage, windows Windows, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load data model: %w", err)
	}
	return &Store{
		model:   m,
		storage: storage,
		windows: windows,
		logger:  logger.With("component", "store"),
	}, nil
}

// Model returns the underlying data model.
func (s *Store) Model() *model.DataModel {
	return s.model
}

func (s *Store) check(table model.TableType, w Window, address, count uint16) error {
	if !w.contains(int(address), int(count)) {
		return fmt.Errorf("%w: %s %d+%d outside %d..%d", modbus.ErrNoRegister,
			table, address, count, w.Start, w.Start+w.Count-1)
	}
	return nil
}

func (s *Store) ReadInput(buf []byte, address, count uint16) error {
	if err := s.check(model.TableInputRegisters, s.windows.Input, address, count); err != nil {
		return err
	}
	return s.model.ReadRegisters(model.TableInputRegisters, buf, int(address)-1, int(count))
}

func (s *Store) ReadWriteHolding(buf []byte, address, count uint16, mode modbus.RegisterMode) error {
	if err := s.check(model.TableHoldingRegisters, s.windows.Holding, address, count); err != nil {
		return err
	}
	if mode == modbus.RegisterRead {
		return s.model.ReadRegisters(model.TableHoldingRegisters, buf, int(address)-1, int(count))
	}
	if err := s.model.WriteRegisters(model.TableHoldingRegisters, buf, int(address)-1, int(count)); err != nil {
		return err
	}
	s.written(model.TableHoldingRegisters, int(address)-1, int(count))
	return nil
}

func (s *Store) ReadWriteCoils(buf []byte, address, count uint16, mode modbus.RegisterMode) error {
	if err := s.check(model.TableCoils, s.windows.Coils, address, count); err != nil {
		return err
	}
	if mode == modbus.RegisterRead {
		return s.model.ReadBits(model.TableCoils, buf, address-1, count)
	}
	if err := s.model.WriteCoils(buf, address-1, count); err != nil {
		return err
	}
	s.written(model.TableCoils, int(address)-1, int(count))
	return nil
}

func (s *Store) ReadDiscrete(buf []byte, address, count uint16) error {
	if err := s.check(model.TableDiscreteInputs, s.windows.Discrete, address, count); err != nil {
		return err
	}
	return s.model.ReadBits(model.TableDiscreteInputs, buf, address-1, count)
}

// ReadWriteFileRecord accesses files 1..N of RecordsPerFile records each.
func (s *Store) ReadWriteFileRecord(buf []byte, file, record, count uint16, mode modbus.RegisterMode) error {
	if file == 0 || int(file) > s.model.Files() || int(record)+int(count) > model.RecordsPerFile {
		return fmt.Errorf("%w: file %d record %d+%d", modbus.ErrNoRegister, file, record, count)
	}
	index := (int(file)-1)*model.RecordsPerFile + int(record)
	if mode == modbus.RegisterRead {
		return s.model.ReadRegisters(model.TableFileRecords, buf, index, int(count))
	}
	if err := s.model.WriteRegisters(model.TableFileRecords, buf, index, int(count)); err != nil {
		return err
	}
	s.written(model.TableFileRecords, index, int(count))
	return nil
}

func (s *Store) written(table model.TableType, index, count int) {
	s.storage.OnWrite(table, index, count)
	s.logger.Debug("Table written", "table", table, "index", index, "count", count)
}

// SetInputRegisters updates input registers from the application side.
// address is 1-based.
func (s *Store) SetInputRegisters(address uint16, values ...uint16) error {
	if address == 0 {
		return fmt.Errorf("%w: address 0", modbus.ErrNoRegister)
	}
	if err := s.model.SetInputRegisters(address-1, values...); err != nil {
		return err
	}
	s.storage.OnWrite(model.TableInputRegisters, int(address)-1, len(values))
	return nil
}

// SetDiscreteInputs updates discrete inputs from the application side.
// address is 1-based.
func (s *Store) SetDiscreteInputs(address uint16, values ...bool) error {
	if address == 0 {
		return fmt.Errorf("%w: address 0", modbus.ErrNoRegister)
	}
	if err := s.model.SetDiscreteInputs(address-1, values...); err != nil {
		return err
	}
	s.storage.OnWrite(model.TableDiscreteInputs, int(address)-1, len(values))
	return nil
}

// Close flushes the model and releases the backend.
func (s *Store) Close() error {
	return multierr.Combine(
		s.storage.Save(s.model),
		s.storage.Close(),
	)
}
