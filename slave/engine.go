// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the Modbus serial line slave: it takes frames
// from an RTU or ASCII transport, runs them through the function table
// against the application's registers and sends the reply.
package slave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-slave/modbus"
	"github.com/ffutop/modbus-slave/port"
	"github.com/ffutop/modbus-slave/port/serial"
	"github.com/ffutop/modbus-slave/port/timer"
	"github.com/ffutop/modbus-slave/transport"
	"github.com/ffutop/modbus-slave/transport/ascii"
	"github.com/ffutop/modbus-slave/transport/rtu"
)

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateDisabled
	StateEnabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDisabled:
		return "disabled"
	case StateEnabled:
		return "enabled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Fallback poll interval of Run for queues without notification.
const runPollInterval = 10 * time.Millisecond

// Config is passed to Init.
type Config struct {
	Mode    modbus.Mode
	Address byte
	Serial  port.SerialConfig
	ASCII   ascii.Options
}

// Drivers are the hardware collaborators. Nil members are replaced by the
// operating system serial driver, the runtime timer and a single slot
// event queue.
type Drivers struct {
	Serial port.Serial
	Timer  port.Timer
	Events port.EventQueue
}

// Options tune the engine.
type Options struct {
	Logger *slog.Logger
	// Functions selects the built-in handlers. The zero value installs none;
	// use DefaultFunctions.
	Functions Functions
	// Files backs the file record functions; they are not installed
	// without it.
	Files FileRecords
	// TruncatedQuantity decodes the quantity of read coils and read
	// holding registers from its low byte only, as some legacy slaves do.
	TruncatedQuantity bool
}

// Engine is a Modbus serial line slave.
type Engine struct {
	regs    Registers
	files   FileRecords
	opts    Options
	drivers Drivers
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	address byte
	mode    modbus.Mode
	tr      transport.Transport
	events  port.EventQueue
	table   FunctionTable

	frame      [modbus.PDUSizeMax]byte
	length     int
	rcvAddress byte
	noReply    bool
	scratch    [2]byte

	slaveID    [slaveIDBufSize]byte
	slaveIDLen int

	counters counters
}

// New creates an engine serving regs. It starts Uninitialized.
func New(drivers Drivers, regs Registers, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		regs:    regs,
		files:   opts.Files,
		opts:    opts,
		drivers: drivers,
		logger:  opts.Logger,
	}
	e.installFunctions(opts.Functions)
	return e
}

func (e *Engine) installFunctions(f Functions) {
	install := func(enabled bool, code byte, h HandlerFunc) {
		if enabled {
			// The table holds all built-ins.
			_ = e.table.Register(code, h)
		}
	}
	install(f.ReportSlaveID, modbus.FuncCodeReportSlaveID, e.reportSlaveID)
	install(f.ReadInputRegisters, modbus.FuncCodeReadInputRegisters, e.readInputRegisters)
	install(f.ReadHoldingRegisters, modbus.FuncCodeReadHoldingRegisters, e.readHoldingRegisters)
	install(f.WriteMultipleRegisters, modbus.FuncCodeWriteMultipleRegisters, e.writeMultipleRegisters)
	install(f.WriteSingleRegister, modbus.FuncCodeWriteSingleRegister, e.writeSingleRegister)
	install(f.ReadWriteMultipleRegisters, modbus.FuncCodeReadWriteMultipleRegisters, e.readWriteMultipleRegisters)
	install(f.ReadCoils, modbus.FuncCodeReadCoils, e.readCoils)
	install(f.WriteSingleCoil, modbus.FuncCodeWriteSingleCoil, e.writeSingleCoil)
	install(f.WriteMultipleCoils, modbus.FuncCodeWriteMultipleCoils, e.writeMultipleCoils)
	install(f.ReadDiscreteInputs, modbus.FuncCodeReadDiscreteInputs, e.readDiscreteInputs)
	install(f.ReadFileRecord && e.files != nil, modbus.FuncCodeReadFileRecord, e.readFileRecord)
	install(f.WriteFileRecord && e.files != nil, modbus.FuncCodeWriteFileRecord, e.writeFileRecord)
	install(f.Diagnostics, modbus.FuncCodeDiagnostics, e.serialDiagnostics)
	install(f.GetCommEventCounter, modbus.FuncCodeGetCommEventCounter, e.getCommEventCounter)
}

// Init validates the slave address, sets up the transport for cfg.Mode and
// initialises the drivers. The engine moves to StateDisabled.
func (e *Engine) Init(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUninitialized {
		return ErrIllegalState
	}
	if cfg.Address == modbus.AddressBroadcast || cfg.Address < modbus.AddressMin || cfg.Address > modbus.AddressMax {
		return fmt.Errorf("%w: slave address %d", ErrInvalidArgument, cfg.Address)
	}

	sp := e.drivers.Serial
	if sp == nil {
		sp = serial.New(e.logger)
	}
	tm := e.drivers.Timer
	if tm == nil {
		tm = timer.New()
	}
	events := e.drivers.Events
	if events == nil {
		events = port.NewSingleSlotQueue()
	}

	var tr transport.Transport
	switch cfg.Mode {
	case modbus.ModeRTU:
		tr = rtu.New(sp, tm, events, e.logger)
	case modbus.ModeASCII:
		tr = ascii.New(sp, tm, events, cfg.ASCII, e.logger)
	default:
		return fmt.Errorf("%w: mode %v", ErrInvalidArgument, cfg.Mode)
	}

	if err := tr.Init(cfg.Serial); err != nil {
		return fmt.Errorf("%w: %v", ErrPortError, err)
	}
	if err := events.Init(); err != nil {
		tr.Close()
		return fmt.Errorf("%w: event queue: %v", ErrPortError, err)
	}

	e.address = cfg.Address
	e.mode = cfg.Mode
	e.tr = tr
	e.events = events
	e.counters.reset(0)
	e.counters.listenOnly.Store(false)
	e.state = StateDisabled
	e.logger.Info("Modbus slave initialized", "mode", cfg.Mode, "address", cfg.Address, "device", cfg.Serial.Device, "baud", cfg.Serial.BaudRate)
	return nil
}

// Enable starts the transport.
func (e *Engine) Enable() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateDisabled {
		return ErrIllegalState
	}
	e.tr.Start()
	e.state = StateEnabled
	e.logger.Info("Modbus slave enabled", "address", e.address)
	return nil
}

// Disable stops the transport. A frame in progress is discarded.
func (e *Engine) Disable() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateEnabled {
		return ErrIllegalState
	}
	e.tr.Stop()
	e.state = StateDisabled
	e.logger.Info("Modbus slave disabled", "address", e.address)
	return nil
}

// Close releases the drivers. The engine must be disabled and returns to
// StateUninitialized.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateDisabled {
		return ErrIllegalState
	}
	err := e.tr.Close()
	e.tr = nil
	e.events = nil
	e.state = StateUninitialized
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPortError, err)
	}
	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Address returns the configured slave address.
func (e *Engine) Address() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.address
}

// RegisterHandler installs h for code, replacing any existing handler. A nil
// h removes the handler.
func (e *Engine) RegisterHandler(code byte, h HandlerFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if code == 0 {
		return ErrInvalidArgument
	}
	if h == nil {
		e.table.Remove(code)
		return nil
	}
	return e.table.Register(code, h)
}

// Poll handles at most one pending event and never blocks. It fails with
// ErrIllegalState unless the engine is enabled.
func (e *Engine) Poll() error {
	_, err := e.poll()
	return err
}

// Run polls until ctx is done or the engine leaves StateEnabled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()

	var wake <-chan struct{}
	if n, ok := events.(port.Notifier); ok {
		wake = n.Notify()
	}
	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()

	for {
		for {
			handled, err := e.poll()
			if err != nil {
				return err
			}
			if !handled {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (e *Engine) poll() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateEnabled {
		return false, ErrIllegalState
	}
	ev, ok := e.events.Get()
	if !ok {
		return false, nil
	}

	switch ev {
	case port.EventReady:
		e.logger.Debug("Transport ready")
	case port.EventFrameReceived:
		e.receive()
	case port.EventExecute:
		e.execute()
	case port.EventFrameSent:
	}
	return true, nil
}

// receive pulls the frame out of the transport. Caller must hold the mutex.
func (e *Engine) receive() {
	addr, n, err := e.tr.Receive(e.frame[:])
	if err != nil {
		if errors.Is(err, transport.ErrChecksum) || errors.Is(err, transport.ErrFrameTooShort) {
			e.counters.busCommErrors.Inc()
		}
		e.logger.Debug("Dropping frame", "err", err)
		return
	}
	e.counters.busMessages.Inc()
	if addr != e.address && addr != modbus.AddressBroadcast {
		return
	}
	e.rcvAddress = addr
	e.length = n
	if !e.events.Post(port.EventExecute) {
		e.counters.slaveNoResponse.Inc()
		e.logger.Debug("Event queue full, dropping request", "function", e.frame[0])
	}
}

// execute dispatches the frame and sends the reply. Caller must hold the
// mutex.
func (e *Engine) execute() {
	if e.length < modbus.PDUSizeMin {
		return
	}
	fc := e.frame[0]
	e.counters.slaveMessages.Inc()

	if e.counters.listenOnly.Load() && !e.isRestartRequest() {
		e.counters.slaveNoResponse.Inc()
		return
	}

	e.noReply = false
	ex := modbus.ExceptionCodeIllegalFunction
	if h := e.table.Lookup(fc); h != nil {
		e.length, ex = h(e.frame[:], e.length)
	}
	e.counters.count(fc, ex)

	if e.rcvAddress == modbus.AddressBroadcast || e.noReply {
		e.counters.slaveNoResponse.Inc()
		return
	}
	if ex != modbus.ExceptionCodeNone {
		e.frame[0] = fc | modbus.FuncCodeError
		e.frame[1] = byte(ex)
		e.length = 2
		e.logger.Debug("Exception response", "function", fc, "exception", byte(ex))
	}
	if err := e.tr.Send(e.address, e.frame[:e.length]); err != nil {
		e.logger.Warn("Failed to send response", "function", fc, "err", err)
	}
}
