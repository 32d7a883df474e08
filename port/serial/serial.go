// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial implements port.Serial over an operating system serial
// device. Receive and transmit interrupts are emulated by two goroutines:
// the reader hands every received byte to ByteReceived, the writer calls
// TransmitterEmpty until the transmitter is switched off and then writes
// the collected frame in one go.
//
// Bytes reach the reader with the latency of the host driver, and a
// delay inside a frame looks like line silence to the RTU receiver. USB
// adapters commonly hold bytes back for several milliseconds, more than
// t1.5 at 9600 baud. Set port.SerialConfig.TimeoutSlack for such devices.
package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-slave/port"
	"github.com/grid-x/serial"
	"github.com/sourcegraph/conc"
)

const (
	// Read timeout of the reader loop.
	serialTimeout = 100 * time.Millisecond

	txBufferSize = 2*256 + 3
)

var (
	ErrNotOpen    = errors.New("serial: port not open")
	ErrNoData     = errors.New("serial: no byte available")
	ErrTxOverflow = errors.New("serial: transmit buffer full")
)

type openFunc func(*serial.Config) (io.ReadWriteCloser, error)

func openPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// Driver has configuration and I/O controller.
type Driver struct {
	// Serial port configuration.
	serial.Config

	Logger *slog.Logger

	open openFunc

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port      io.ReadWriteCloser
	h         port.SerialHandler
	rxEnabled bool
	txEnabled bool
	rx        byte
	hasRx     bool
	tx        []byte
	out       []byte

	kick chan struct{}
	done chan struct{}
	wg   conc.WaitGroup
}

// New returns a driver that opens the device named in the config passed
// to Init.
func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{Logger: logger, open: openPort}
}

// NewWithPort returns a driver bound to an already open stream.
func NewWithPort(rwc io.ReadWriteCloser, logger *slog.Logger) *Driver {
	d := New(logger)
	d.open = func(*serial.Config) (io.ReadWriteCloser, error) { return rwc, nil }
	return d
}

// Init opens the port and starts the reader and writer goroutines. Both
// directions start disabled.
func (d *Driver) Init(cfg port.SerialConfig, h port.SerialHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return fmt.Errorf("serial: %s already open", d.Config.Address)
	}

	d.Config = serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  serialTimeout,
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	}

	p, err := d.open(&d.Config)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", d.Config.Address, err)
	}
	d.port = p
	d.h = h
	d.rxEnabled, d.txEnabled = false, false
	d.hasRx = false
	d.tx = make([]byte, 0, txBufferSize)
	d.out = make([]byte, 0, txBufferSize)
	d.kick = make(chan struct{}, 1)
	d.done = make(chan struct{})

	d.wg.Go(func() { d.readLoop(p, d.done) })
	d.wg.Go(func() { d.writeLoop(d.kick, d.done) })

	d.Logger.Info("Serial port opened", "device", cfg.Device, "baud", cfg.BaudRate, "parity", cfg.Parity)
	return nil
}

func (d *Driver) Enable(rx, tx bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rxEnabled = rx
	wasTx := d.txEnabled
	d.txEnabled = tx
	if tx && !wasTx && d.kick != nil {
		select {
		case d.kick <- struct{}{}:
		default:
		}
	}
}

func (d *Driver) PutByte(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return ErrNotOpen
	}
	if len(d.tx) == cap(d.tx) {
		return ErrTxOverflow
	}
	d.tx = append(d.tx, b)
	return nil
}

func (d *Driver) GetByte() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasRx {
		return 0, ErrNoData
	}
	d.hasRx = false
	return d.rx, nil
}

// Close stops both goroutines and closes the port.
func (d *Driver) Close() (err error) {
	d.mu.Lock()
	if d.port == nil {
		d.mu.Unlock()
		return ErrNotOpen
	}
	close(d.done)
	err = d.port.Close()
	d.port = nil
	d.rxEnabled, d.txEnabled = false, false
	d.mu.Unlock()

	d.wg.Wait()
	return
}

func (d *Driver) readLoop(p io.Reader, done <-chan struct{}) {
	buf := make([]byte, 64)
	for {
		n, err := p.Read(buf)
		for i := 0; i < n; i++ {
			d.deliver(buf[i])
		}
		if err == nil {
			continue
		}
		select {
		case <-done:
			return
		default:
		}
		if errors.Is(err, serial.ErrTimeout) {
			continue
		}
		if err == io.EOF {
			d.Logger.Debug("Serial port reached end of stream", "device", d.Config.Address)
		} else {
			d.Logger.Error("Serial port read failed", "device", d.Config.Address, "err", err)
		}
		return
	}
}

// deliver emulates one receive interrupt.
func (d *Driver) deliver(b byte) {
	d.mu.Lock()
	if !d.rxEnabled || d.h == nil {
		d.mu.Unlock()
		return
	}
	d.rx = b
	d.hasRx = true
	h := d.h
	d.mu.Unlock()

	h.ByteReceived()
}

func (d *Driver) writeLoop(kick <-chan struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-kick:
		}

		for d.transmitting() {
			d.h.TransmitterEmpty()
		}
		if err := d.flush(); err != nil {
			d.Logger.Error("Serial port write failed", "device", d.Config.Address, "err", err)
		}
	}
}

func (d *Driver) transmitting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.txEnabled && d.port != nil
}

func (d *Driver) flush() error {
	d.mu.Lock()
	p := d.port
	frame := append(d.out[:0], d.tx...)
	d.tx = d.tx[:0]
	d.mu.Unlock()

	if p == nil || len(frame) == 0 {
		return nil
	}
	d.Logger.Debug("Serial port write", "device", d.Config.Address, "frame", fmt.Sprintf("% X", frame))
	_, err := p.Write(frame)
	return err
}
