// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-slave/modbus"
)

// A file sub-request carries reference type, file number, record number
// and record length after the byte count.
const (
	fileRefType     = 6
	fileSubReqSize  = 7
	fileRequestSize = 2 + fileSubReqSize
	fileDataMax     = modbus.PDUSizeMax - fileSubReqSize
)

type fileRequest struct {
	file, record, count uint16
	size                int
}

// parseFileRequest decodes the single sub-request at frame[2:].
func parseFileRequest(frame []byte) (fileRequest, bool) {
	req := fileRequest{
		file:   binary.BigEndian.Uint16(frame[3:]),
		record: binary.BigEndian.Uint16(frame[5:]),
		count:  binary.BigEndian.Uint16(frame[7:]),
	}
	req.size = 2 * int(req.count)
	if frame[2] != fileRefType || req.count < 1 || req.size > fileDataMax {
		return req, false
	}
	return req, true
}

// readFileRecord serves function 0x14 for one sub-request.
func (e *Engine) readFileRecord(frame []byte, n int) (int, modbus.Exception) {
	if n != fileRequestSize || frame[1] != fileSubReqSize {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	req, ok := parseFileRequest(frame)
	if !ok {
		return n, modbus.ExceptionCodeIllegalDataValue
	}

	frame[1] = byte(2 + req.size)
	frame[2] = byte(1 + req.size)
	frame[3] = fileRefType
	buf := frame[4 : 4+req.size]
	clear(buf)
	if err := e.files.ReadWriteFileRecord(buf, req.file, req.record, req.count, modbus.RegisterRead); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return 4 + req.size, modbus.ExceptionCodeNone
}

// writeFileRecord serves function 0x15 for one sub-request. The reply
// echoes the request.
func (e *Engine) writeFileRecord(frame []byte, n int) (int, modbus.Exception) {
	if n < fileRequestSize {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	req, ok := parseFileRequest(frame)
	if !ok || int(frame[1]) != fileSubReqSize+req.size || n < fileRequestSize+req.size {
		return n, modbus.ExceptionCodeIllegalDataValue
	}
	end := fileRequestSize + req.size
	if err := e.files.ReadWriteFileRecord(frame[fileRequestSize:end], req.file, req.record, req.count, modbus.RegisterWrite); err != nil {
		return n, modbus.ExceptionFromError(err)
	}
	return end, modbus.ExceptionCodeNone
}
