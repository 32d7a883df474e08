// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"

	"github.com/ffutop/modbus-slave/internal/store/model"
)

// Storage defines the interface for persisting the slave data model.
type Storage interface {
	// Load returns the stored data model, or a zeroed one on first use.
	Load() (*model.DataModel, error)

	// Save flushes the whole model.
	Save(model *model.DataModel) error

	// OnWrite is called after the master modified a range of the model.
	OnWrite(table model.TableType, address, quantity int)

	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	Type   string // "memory", "file", "mmap", "sql"
	Path   string
	Driver string
	DSN    string
	Files  int
}

// New creates the backend named by cfg.Type. The database/sql driver of the
// "sql" backend must be registered by the caller.
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStorage(cfg.Files), nil
	case "file":
		return NewFileStorage(cfg.Path, cfg.Files), nil
	case "mmap":
		return NewMmapStorage(cfg.Path, cfg.Files), nil
	case "sql":
		return NewSQLStorage(cfg.Driver, cfg.DSN, cfg.Files), nil
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.Type)
}
