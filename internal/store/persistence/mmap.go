// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-slave/internal/store/model"
	"go.uber.org/multierr"
)

// MmapStorage maps the data file into memory; the model aliases the
// mapping and writes reach the page cache immediately.
type MmapStorage struct {
	path  string
	files int
	file  *os.File
	data  mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string, files int) *MmapStorage {
	return &MmapStorage{
		path:  path,
		files: files,
	}
}

// Load maps the data file, creating or resizing it when necessary.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	f, err := openSized(ms.path, totalSize(ms.files))
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data

	return mapBytesToModel(data, ms.files), nil
}

// Save flushes the mapping to disk.
func (ms *MmapStorage) Save(m *model.DataModel) error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	return ms.data.Flush()
}

// OnWrite flushes the mapping so a power loss keeps the write.
func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity int) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "table", table, "address", address, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		err = multierr.Append(err, ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		err = multierr.Append(err, ms.file.Close())
		ms.file = nil
	}
	return err
}
