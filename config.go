// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"os"

	"github.com/ffutop/modbus-slave/internal/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cliOptions are the flags that are not configuration keys.
type cliOptions struct {
	configFile  string
	printConfig bool
}

// newFlagSet defines the command line. Flag names match the keys bound by
// config.LoadConfig.
func newFlagSet(opts *cliOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	fs.StringVarP(&opts.configFile, "config", "c", "", "Configuration file path.")
	fs.BoolVar(&opts.printConfig, "print-config", false, "Print the effective configuration and exit.")

	fs.StringP("mode", "m", "rtu", "Serial transmission mode (rtu, ascii).")
	fs.IntP("address", "a", 1, "Slave address (1-247).")
	fs.StringP("device", "p", "/dev/ttyUSB0", "Serial port device name.")
	fs.IntP("baud_rate", "s", 19200, "Serial port speed.")
	fs.String("parity", "E", "Serial parity (N, E, O).")
	fs.String("persistence", "memory", "Data persistence type (memory, file, mmap, sql).")
	fs.String("data_path", "", "Data file for file and mmap persistence.")
	fs.StringP("log_level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	return fs
}

// loadConfig parses args and loads the validated configuration.
func loadConfig(args []string) (*config.Config, *viper.Viper, cliOptions, error) {
	var opts cliOptions
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		return nil, nil, opts, err
	}

	cfg, v, err := config.LoadConfig(opts.configFile, fs)
	if err != nil {
		return nil, nil, opts, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, opts, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, v, opts, nil
}
