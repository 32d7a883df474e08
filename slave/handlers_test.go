// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"testing"

	"github.com/ffutop/modbus-slave/modbus"
)

func TestHandlers(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		setup     func(m *memRegisters)
		request   []byte
		want      []byte
		wantCalls []call
		check     func(t *testing.T, m *memRegisters)
	}{
		{
			name: "read coils",
			setup: func(m *memRegisters) {
				// Coils 20..29: 1 0 1 1 0 0 1 1 0 1
				modbus.SetBits(m.coils, 19, 8, 0xCD)
				modbus.SetBits(m.coils, 27, 2, 0x02)
			},
			request:   []byte{0x01, 0x00, 0x13, 0x00, 0x0A},
			want:      []byte{0x01, 0x02, 0xCD, 0x02},
			wantCalls: []call{{"coils", 20, 10, modbus.RegisterRead}},
		},
		{
			name:    "read coils zero quantity",
			request: []byte{0x01, 0x00, 0x00, 0x00, 0x00},
			want:    []byte{0x81, 0x03},
		},
		{
			name:      "read coils maximum quantity",
			request:   []byte{0x01, 0x00, 0x00, 0x07, 0xD0},
			want:      append([]byte{0x01, 0xFA}, make([]byte, 250)...),
			wantCalls: []call{{"coils", 1, 2000, modbus.RegisterRead}},
		},
		{
			name:    "read coils above maximum",
			request: []byte{0x01, 0x00, 0x00, 0x07, 0xD1},
			want:    []byte{0x81, 0x03},
		},
		{
			name:    "read coils short request",
			request: []byte{0x01, 0x00, 0x00, 0x00},
			want:    []byte{0x81, 0x03},
		},
		{
			name:      "read coils truncated quantity",
			opts:      Options{TruncatedQuantity: true},
			request:   []byte{0x01, 0x00, 0x00, 0x01, 0x03},
			want:      []byte{0x01, 0x01, 0x00},
			wantCalls: []call{{"coils", 1, 3, modbus.RegisterRead}},
		},
		{
			name:      "read discrete inputs",
			setup:     func(m *memRegisters) { modbus.SetBits(m.discrete, 196, 8, 0xAC) },
			request:   []byte{0x02, 0x00, 0xC4, 0x00, 0x08},
			want:      []byte{0x02, 0x01, 0xAC},
			wantCalls: []call{{"discrete", 197, 8, modbus.RegisterRead}},
		},
		{
			name:      "write single coil on",
			request:   []byte{0x05, 0x00, 0xAC, 0xFF, 0x00},
			want:      []byte{0x05, 0x00, 0xAC, 0xFF, 0x00},
			wantCalls: []call{{"coils", 173, 1, modbus.RegisterWrite}},
			check: func(t *testing.T, m *memRegisters) {
				if modbus.GetBits(m.coils, 172, 1) != 1 {
					t.Error("coil 173 not set")
				}
			},
		},
		{
			name:    "write single coil invalid value",
			request: []byte{0x05, 0x00, 0xAC, 0x12, 0x34},
			want:    []byte{0x85, 0x03},
		},
		{
			name:      "write multiple coils",
			request:   []byte{0x0F, 0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01},
			want:      []byte{0x0F, 0x00, 0x13, 0x00, 0x0A},
			wantCalls: []call{{"coils", 20, 10, modbus.RegisterWrite}},
			check: func(t *testing.T, m *memRegisters) {
				if got := modbus.GetBits(m.coils, 19, 8); got != 0xCD {
					t.Errorf("coils 20..27 = %#x, want 0xCD", got)
				}
				if got := modbus.GetBits(m.coils, 27, 2); got != 0x01 {
					t.Errorf("coils 28..29 = %#x, want 0x01", got)
				}
			},
		},
		{
			name:    "write multiple coils byte count mismatch",
			request: []byte{0x0F, 0x00, 0x13, 0x00, 0x0A, 0x01, 0xCD},
			want:    []byte{0x8F, 0x03},
		},
		{
			name:      "read holding registers out of range",
			request:   []byte{0x03, 0x07, 0xFF, 0x00, 0x02},
			want:      []byte{0x83, 0x02},
			wantCalls: []call{{"holding", 2048, 2, modbus.RegisterRead}},
		},
		{
			name:    "read holding registers above maximum",
			request: []byte{0x03, 0x00, 0x00, 0x00, 0x7E},
			want:    []byte{0x83, 0x03},
		},
		{
			name:      "read holding registers truncated quantity",
			opts:      Options{TruncatedQuantity: true},
			setup:     func(m *memRegisters) { m.holding[0] = 0xABCD },
			request:   []byte{0x03, 0x00, 0x00, 0x01, 0x01},
			want:      []byte{0x03, 0x02, 0xAB, 0xCD},
			wantCalls: []call{{"holding", 1, 1, modbus.RegisterRead}},
		},
		{
			name:      "read holding registers wire address wraps",
			request:   []byte{0x03, 0xFF, 0xFF, 0x00, 0x01},
			want:      []byte{0x83, 0x02},
			wantCalls: []call{{"holding", 0, 1, modbus.RegisterRead}},
		},
		{
			name:      "write single register",
			request:   []byte{0x06, 0x00, 0x01, 0x00, 0x03},
			want:      []byte{0x06, 0x00, 0x01, 0x00, 0x03},
			wantCalls: []call{{"holding", 2, 1, modbus.RegisterWrite}},
			check: func(t *testing.T, m *memRegisters) {
				if m.holding[1] != 0x0003 {
					t.Errorf("holding[2] = %#x, want 0x0003", m.holding[1])
				}
			},
		},
		{
			name:      "write multiple registers",
			request:   []byte{0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02},
			want:      []byte{0x10, 0x00, 0x01, 0x00, 0x02},
			wantCalls: []call{{"holding", 2, 2, modbus.RegisterWrite}},
			check: func(t *testing.T, m *memRegisters) {
				if m.holding[1] != 0x000A || m.holding[2] != 0x0102 {
					t.Errorf("holding[2:4] = %#x", m.holding[1:3])
				}
			},
		},
		{
			name:    "write multiple registers above maximum",
			request: append([]byte{0x10, 0x00, 0x00, 0x00, 0x79, 0xF2}, make([]byte, 0xF2)...),
			want:    []byte{0x90, 0x03},
		},
		{
			name:    "read write multiple registers",
			setup:   func(m *memRegisters) { m.holding[3] = 0x00FE },
			request: []byte{0x17, 0x00, 0x03, 0x00, 0x02, 0x00, 0x04, 0x00, 0x01, 0x02, 0x00, 0xFF},
			want:    []byte{0x17, 0x04, 0x00, 0xFE, 0x00, 0xFF},
			wantCalls: []call{
				{"holding", 5, 1, modbus.RegisterWrite},
				{"holding", 4, 2, modbus.RegisterRead},
			},
		},
		{
			name:    "read write multiple registers byte count mismatch",
			request: []byte{0x17, 0x00, 0x03, 0x00, 0x02, 0x00, 0x04, 0x00, 0x01, 0x04, 0x00, 0xFF},
			want:    []byte{0x97, 0x03},
		},
		{
			name:      "read input registers",
			setup:     func(m *memRegisters) { m.input[8] = 0x000A },
			request:   []byte{0x04, 0x00, 0x08, 0x00, 0x01},
			want:      []byte{0x04, 0x02, 0x00, 0x0A},
			wantCalls: []call{{"input", 9, 1, modbus.RegisterRead}},
		},
		{
			name:      "accessor timeout",
			setup:     func(m *memRegisters) { m.err = modbus.ErrTimeout },
			request:   []byte{0x04, 0x00, 0x00, 0x00, 0x01},
			want:      []byte{0x84, 0x06},
			wantCalls: []call{{"input", 1, 1, modbus.RegisterRead}},
		},
		{
			name:      "accessor i/o error",
			setup:     func(m *memRegisters) { m.err = modbus.ErrIO },
			request:   []byte{0x06, 0x00, 0x00, 0x00, 0x01},
			want:      []byte{0x86, 0x04},
			wantCalls: []call{{"holding", 1, 1, modbus.RegisterWrite}},
		},
		{
			name:      "accessor chooses exception",
			setup:     func(m *memRegisters) { m.err = modbus.ExceptionCodeAcknowledge },
			request:   []byte{0x06, 0x00, 0x00, 0x00, 0x01},
			want:      []byte{0x86, 0x05},
			wantCalls: []call{{"holding", 1, 1, modbus.RegisterWrite}},
		},
		{
			name:      "read file record",
			setup:     func(m *memRegisters) { m.files[4] = []uint16{0, 0, 0x0DFE, 0x0020} },
			request:   []byte{0x14, 0x07, 0x06, 0x00, 0x04, 0x00, 0x02, 0x00, 0x02},
			want:      []byte{0x14, 0x06, 0x05, 0x06, 0x0D, 0xFE, 0x00, 0x20},
			wantCalls: []call{{"file", 2, 2, modbus.RegisterRead}},
		},
		{
			name:    "read file record bad reference type",
			request: []byte{0x14, 0x07, 0x05, 0x00, 0x04, 0x00, 0x02, 0x00, 0x02},
			want:    []byte{0x94, 0x03},
		},
		{
			name:    "read file record bad length",
			request: []byte{0x14, 0x08, 0x06, 0x00, 0x04, 0x00, 0x02, 0x00, 0x02},
			want:    []byte{0x94, 0x03},
		},
		{
			name:      "write file record",
			setup:     func(m *memRegisters) { m.files[4] = make([]uint16, 10) },
			request:   []byte{0x15, 0x0B, 0x06, 0x00, 0x04, 0x00, 0x07, 0x00, 0x02, 0x06, 0xAF, 0x04, 0xBE},
			want:      []byte{0x15, 0x0B, 0x06, 0x00, 0x04, 0x00, 0x07, 0x00, 0x02, 0x06, 0xAF, 0x04, 0xBE},
			wantCalls: []call{{"file", 7, 2, modbus.RegisterWrite}},
			check: func(t *testing.T, m *memRegisters) {
				if m.files[4][7] != 0x06AF || m.files[4][8] != 0x04BE {
					t.Errorf("file 4 records 7..8 = %#x", m.files[4][7:9])
				}
			},
		},
		{
			name:    "write file record length mismatch",
			request: []byte{0x15, 0x09, 0x06, 0x00, 0x04, 0x00, 0x07, 0x00, 0x02, 0x06, 0xAF, 0x04, 0xBE},
			want:    []byte{0x95, 0x03},
		},
		{
			name:      "write file record unknown file",
			request:   []byte{0x15, 0x09, 0x06, 0x00, 0x09, 0x00, 0x00, 0x00, 0x01, 0x12, 0x34},
			want:      []byte{0x95, 0x02},
			wantCalls: []call{{"file", 0, 1, modbus.RegisterWrite}},
		},
		{
			name:    "diagnostics return query data",
			request: []byte{0x08, 0x00, 0x00, 0xA5, 0x37, 0x01},
			want:    []byte{0x08, 0x00, 0x00, 0xA5, 0x37, 0x01},
		},
		{
			name:    "diagnostics unknown sub-function",
			request: []byte{0x08, 0x00, 0x03, 0x00, 0x00},
			want:    []byte{0x88, 0x01},
		},
		{
			name:    "diagnostics restart invalid data",
			request: []byte{0x08, 0x00, 0x01, 0x12, 0x34},
			want:    []byte{0x88, 0x03},
		},
		{
			name:    "diagnostics slave message count",
			request: []byte{0x08, 0x00, 0x0E, 0x00, 0x00},
			want:    []byte{0x08, 0x00, 0x0E, 0x00, 0x01},
		},
		{
			name:    "comm event counter",
			request: []byte{0x0B},
			want:    []byte{0x0B, 0x00, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := enabledRTU(t, tt.opts)
			if tt.setup != nil {
				tt.setup(f.regs)
			}
			got := f.transact(t, testAddress, tt.request...)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("response = % X, want % X", got, tt.want)
			}
			if len(f.regs.calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %+v, want %+v", f.regs.calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if f.regs.calls[i] != tt.wantCalls[i] {
					t.Errorf("call %d = %+v, want %+v", i, f.regs.calls[i], tt.wantCalls[i])
				}
			}
			if tt.check != nil {
				tt.check(t, f.regs)
			}
		})
	}
}

func TestCommEventCounterSkipsExceptions(t *testing.T) {
	f := enabledRTU(t, Options{})

	f.transact(t, testAddress, 0x03, 0x00, 0x00, 0x00, 0x01)
	f.transact(t, testAddress, 0x06, 0x00, 0x00, 0x00, 0x01)
	f.transact(t, testAddress, 0x03, 0x00, 0x00, 0x00, 0x00) // exception
	f.transact(t, testAddress, 0x08, 0x00, 0x00, 0x00, 0x00)

	got := f.transact(t, testAddress, 0x0B)
	if want := []byte{0x0B, 0x00, 0x00, 0x00, 0x02}; !bytes.Equal(got, want) {
		t.Fatalf("response = % X, want % X", got, want)
	}
	d := f.engine.Diagnostics()
	if d.ExceptionErrors != 1 || d.SlaveMessages != 5 || d.CommEvents != 2 {
		t.Fatalf("diagnostics = %+v", d)
	}
}

func TestListenOnlyMode(t *testing.T) {
	f := enabledRTU(t, Options{})

	if got := f.transact(t, testAddress, 0x08, 0x00, 0x04, 0x00, 0x00); got != nil {
		t.Fatalf("force listen only answered with % X", got)
	}
	if got := f.transact(t, testAddress, 0x06, 0x00, 0x00, 0x00, 0x01); got != nil {
		t.Fatalf("request in listen only mode answered with % X", got)
	}
	if f.regs.holding[0] != 0 || len(f.regs.calls) != 0 {
		t.Fatal("request executed in listen only mode")
	}
	if !f.engine.Diagnostics().ListenOnly {
		t.Fatal("ListenOnly = false")
	}

	// Restart leaves listen only mode without answering.
	if got := f.transact(t, testAddress, 0x08, 0x00, 0x01, 0x00, 0x00); got != nil {
		t.Fatalf("restart answered with % X", got)
	}
	d := f.engine.Diagnostics()
	if d.ListenOnly || d.BusMessages != 0 {
		t.Fatalf("diagnostics after restart = %+v", d)
	}

	got := f.transact(t, testAddress, 0x06, 0x00, 0x00, 0x00, 0x01)
	if want := []byte{0x06, 0x00, 0x00, 0x00, 0x01}; !bytes.Equal(got, want) {
		t.Fatalf("response = % X, want % X", got, want)
	}
}

func TestDiagnosticCounters(t *testing.T) {
	f := enabledRTU(t, Options{})
	f.engine.SetDiagnosticRegister(0x1234)

	f.transact(t, testAddress+1, 0x03, 0x00, 0x00, 0x00, 0x01)
	f.transact(t, modbus.AddressBroadcast, 0x06, 0x00, 0x00, 0x00, 0x01)

	tests := []struct {
		sub   byte
		value uint16
	}{
		{0x02, 0x1234},
		{0x0B, 4}, // every frame so far, this one included
		{0x0E, 4}, // broadcast and three diagnostics requests
		{0x0F, 1}, // broadcast
		{0x0C, 0},
		{0x12, 0},
	}
	for _, tt := range tests {
		got := f.transact(t, testAddress, 0x08, 0x00, tt.sub, 0x00, 0x00)
		want := []byte{0x08, 0x00, tt.sub, byte(tt.value >> 8), byte(tt.value)}
		if !bytes.Equal(got, want) {
			t.Errorf("sub-function %#x response = % X, want % X", tt.sub, got, want)
		}
	}

	if got := f.transact(t, testAddress, 0x08, 0x00, 0x0A, 0x00, 0x00); !bytes.Equal(got, []byte{0x08, 0x00, 0x0A, 0x00, 0x00}) {
		t.Fatalf("clear counters response = % X", got)
	}
	if d := f.engine.Diagnostics(); d.BusMessages != 0 || d.SlaveMessages != 0 || d.Register != 0 {
		t.Fatalf("diagnostics after clear = %+v", d)
	}
}

func TestFileFunctionsNeedBackend(t *testing.T) {
	f := newFixture(t, Options{})
	f.engine = New(Drivers{Serial: f.serial, Timer: f.timer, Events: f.events}, f.regs, Options{Functions: DefaultFunctions()})
	if codes := f.engine.table.Codes(); bytes.Contains(codes, []byte{modbus.FuncCodeReadFileRecord}) {
		t.Fatalf("file record handler installed without backend: % X", codes)
	}
}
