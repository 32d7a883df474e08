// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-slave/internal/store/model"
	"go.uber.org/multierr"
)

// FileStorage keeps the model in memory and writes each modified range
// back to a data file using the shared layout.
type FileStorage struct {
	path  string
	files int
	file  *os.File
	data  []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string, files int) *FileStorage {
	return &FileStorage{
		path:  path,
		files: files,
	}
}

// Load reads the data file, creating or resizing it when necessary.
func (fs *FileStorage) Load() (*model.DataModel, error) {
	f, err := openSized(fs.path, totalSize(fs.files))
	if err != nil {
		return nil, err
	}

	data := make([]byte, totalSize(fs.files))
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f
	fs.data = data

	return mapBytesToModel(data, fs.files), nil
}

// Save writes the whole model to disk.
func (fs *FileStorage) Save(m *model.DataModel) error {
	if fs.file == nil {
		return nil
	}
	return fs.writeAt(0, len(fs.data))
}

// OnWrite writes the modified range and syncs it.
func (fs *FileStorage) OnWrite(table model.TableType, address, quantity int) {
	if fs.file == nil {
		return
	}
	off, n := span(table, address, quantity)
	if err := fs.writeAt(off, n); err != nil {
		slog.Error("Failed to persist range", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

func (fs *FileStorage) writeAt(off, n int) error {
	if _, err := fs.file.WriteAt(fs.data[off:off+n], int64(off)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := multierr.Combine(fs.Save(nil), fs.file.Close())
	fs.file = nil
	fs.data = nil
	return err
}

// openSized opens path read-write, creating it and fixing its size.
func openSized(path string, size int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}
	return f, nil
}
