// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/modbus-slave/internal/store/model"

// MemoryStorage keeps nothing across restarts.
type MemoryStorage struct {
	files int
}

func NewMemoryStorage(files int) *MemoryStorage {
	return &MemoryStorage{files: files}
}

func (ms *MemoryStorage) Load() (*model.DataModel, error) {
	return model.NewDataModel(ms.files), nil
}

func (ms *MemoryStorage) Save(model *model.DataModel) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(table model.TableType, address, quantity int) {}

func (ms *MemoryStorage) Close() error {
	return nil
}
