// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ffutop/modbus-slave/internal/config"
	"github.com/ffutop/modbus-slave/internal/store"
	"github.com/ffutop/modbus-slave/internal/store/persistence"
	"github.com/ffutop/modbus-slave/modbus"
	"github.com/ffutop/modbus-slave/port"
	"github.com/ffutop/modbus-slave/slave"
	"github.com/ffutop/modbus-slave/transport/ascii"
	_ "github.com/mattn/go-sqlite3"
)

var logLevel slog.LevelVar

func main() {
	cfg, v, opts, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if opts.printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Printf("Failed to render configuration: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	config.Watch(v, func(c *config.Config) {
		logLevel.Set(parseLevel(c.Log.Level))
		slog.Info("Configuration reloaded", "log_level", c.Log.Level)
	})

	if err := run(cfg); err != nil {
		slog.Error("Modbus slave stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("Starting Modbus slave...", "mode", cfg.Slave.Mode, "address", cfg.Slave.Address, "device", cfg.Serial.Device)

	storage, err := persistence.New(persistence.Config{
		Type:   cfg.Store.Persistence.Type,
		Path:   cfg.Store.Persistence.Path,
		Driver: cfg.Store.Persistence.Driver,
		DSN:    cfg.Store.Persistence.DSN,
		Files:  cfg.Store.Files,
	})
	if err != nil {
		return err
	}
	st, err := store.New(storage, windows(cfg.Store), slog.Default())
	if err != nil {
		storage.Close()
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "err", err)
		}
	}()

	var events port.EventQueue = port.NewSingleSlotQueue()
	if cfg.Slave.QueueSize > 1 {
		events = port.NewBufferedQueue(cfg.Slave.QueueSize)
	}

	slaveOpts := slave.Options{
		Logger:            slog.Default(),
		Functions:         cfg.Slave.Functions,
		TruncatedQuantity: cfg.Slave.TruncatedQuantity,
	}
	if cfg.Store.Files > 0 {
		slaveOpts.Files = st
	}
	engine := slave.New(slave.Drivers{Events: events}, st, slaveOpts)

	mode, err := modbus.ParseMode(cfg.Slave.Mode)
	if err != nil {
		return err
	}
	err = engine.Init(slave.Config{
		Mode:    mode,
		Address: byte(cfg.Slave.Address),
		Serial:  cfg.Serial.Port(),
		ASCII: ascii.Options{
			Timeout:    cfg.Slave.ASCII.Timeout,
			EndOfFrame: cfg.Slave.ASCII.EndOfFrame[0],
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("Failed to close slave", "err", err)
		}
	}()

	id := cfg.Slave.ID
	if err := engine.SetSlaveID(byte(id.Value), id.Running, []byte(id.Additional)); err != nil {
		return err
	}
	if err := engine.Enable(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := engine.Run(ctx)

	slog.Info("Shutting down...", "diagnostics", engine.Diagnostics())
	if err := engine.Disable(); err != nil {
		slog.Warn("Failed to disable slave", "err", err)
	}
	if runErr == nil {
		slog.Info("Goodbye.")
	}
	return runErr
}

func windows(s config.StoreConfig) store.Windows {
	return store.Windows{
		Coils:    store.Window(s.Coils),
		Discrete: store.Window(s.Discrete),
		Holding:  store.Window(s.Holding),
		Input:    store.Window(s.Input),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// setupLogger installs the default logger and returns a function closing
// the log file, if any.
func setupLogger(cfg config.LogConfig) func() {
	logLevel.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: &logLevel}

	var w io.Writer = os.Stdout
	closer := func() {}
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
		} else {
			w = f
			closer = func() { f.Close() }
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	return closer
}
