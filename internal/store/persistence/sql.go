// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-slave/internal/store/model"
)

const (
	schema = `
	CREATE TABLE IF NOT EXISTS modbus_registers (
		table_type INTEGER,
		address INTEGER,
		value INTEGER,
		PRIMARY KEY (table_type, address)
	);
	`
	upsert = "INSERT INTO modbus_registers (table_type, address, value) VALUES (?, ?, ?) " +
		"ON CONFLICT(table_type, address) DO UPDATE SET value=excluded.value"
)

// SQLStorage keeps one row per written entry in the table
// modbus_registers, created on Load.
type SQLStorage struct {
	driver string
	dsn    string
	files  int
	db     *sql.DB
	model  *model.DataModel
}

// NewSQLStorage creates a new SQLStorage. The driver (e.g. sqlite3) must be
// imported by the main package.
func NewSQLStorage(driver, dsn string, files int) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
		files:  files,
	}
}

// Load connects to the DB and replays the stored rows into a new model.
func (s *SQLStorage) Load() (*model.DataModel, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := model.NewDataModel(s.files)
	rows, err := db.Query("SELECT table_type, address, value FROM modbus_registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t, addr int
		var val int64
		if err := rows.Scan(&t, &addr, &val); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to scan register: %w", err)
		}
		restore(m, model.TableType(t), addr, val)
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read registers: %w", err)
	}

	s.db = db
	s.model = m
	return m, nil
}

func restore(m *model.DataModel, table model.TableType, addr int, val int64) {
	if addr < 0 {
		return
	}
	switch table {
	case model.TableCoils:
		if addr < len(m.Coils) {
			m.Coils[addr] = byte(val)
		}
	case model.TableDiscreteInputs:
		if addr < len(m.DiscreteInputs) {
			m.DiscreteInputs[addr] = byte(val)
		}
	case model.TableHoldingRegisters:
		if addr < len(m.HoldingRegisters) {
			m.HoldingRegisters[addr] = uint16(val)
		}
	case model.TableInputRegisters:
		if addr < len(m.InputRegisters) {
			m.InputRegisters[addr] = uint16(val)
		}
	case model.TableFileRecords:
		if addr < len(m.FileRecords) {
			m.FileRecords[addr] = uint16(val)
		}
	}
}

// Save is a no-op: OnWrite already stored every change.
func (s *SQLStorage) Save(m *model.DataModel) error {
	return nil
}

// OnWrite upserts the changed entries in one transaction.
func (s *SQLStorage) OnWrite(table model.TableType, address, quantity int) {
	if s.db == nil || s.model == nil {
		return
	}
	if err := s.persist(table, address, quantity); err != nil {
		slog.Error("Failed to persist registers", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

func (s *SQLStorage) persist(table model.TableType, address, quantity int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(upsert)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < quantity; i++ {
		addr := address + i
		if _, err := stmt.Exec(int(table), addr, s.model.Value(table, addr)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
