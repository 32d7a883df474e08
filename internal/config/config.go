// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ffutop/modbus-slave/port"
	"github.com/ffutop/modbus-slave/slave"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config defines the global configuration structure
type Config struct {
	Slave  SlaveConfig  `mapstructure:"slave" yaml:"slave"`
	Serial SerialConfig `mapstructure:"serial" yaml:"serial"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
	File  string `mapstructure:"file" yaml:"file"`   // Log file path, empty or "-" for stdout
}

// SlaveConfig defines the Modbus slave itself
type SlaveConfig struct {
	Mode              string          `mapstructure:"mode" yaml:"mode"` // "rtu", "ascii"
	Address           int             `mapstructure:"address" yaml:"address"`
	Functions         slave.Functions `mapstructure:"functions" yaml:"functions"`
	TruncatedQuantity bool            `mapstructure:"truncated_quantity" yaml:"truncated_quantity"`
	ID                SlaveIDConfig   `mapstructure:"id" yaml:"id"`
	ASCII             ASCIIConfig     `mapstructure:"ascii" yaml:"ascii"`
	QueueSize         int             `mapstructure:"queue_size" yaml:"queue_size"` // 1 keeps a single event slot
}

// SlaveIDConfig is the payload of Report Slave ID
type SlaveIDConfig struct {
	Value      int    `mapstructure:"value" yaml:"value"`
	Running    bool   `mapstructure:"running" yaml:"running"`
	Additional string `mapstructure:"additional" yaml:"additional"`
}

// ASCIIConfig tunes ASCII framing
type ASCIIConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	EndOfFrame string        `mapstructure:"end_of_frame" yaml:"end_of_frame"` // single character, "\n" by default
}

// SerialConfig defines the serial line
type SerialConfig struct {
	Device   string `mapstructure:"device" yaml:"device"`
	BaudRate int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	DataBits int    `mapstructure:"data_bits" yaml:"data_bits"`
	Parity   string `mapstructure:"parity" yaml:"parity"`
	StopBits int    `mapstructure:"stop_bits" yaml:"stop_bits"`

	// Added to the RTU silence timers, for adapters with read latency
	TimeoutSlack time.Duration `mapstructure:"timeout_slack" yaml:"timeout_slack"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485" yaml:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send" yaml:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send" yaml:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send" yaml:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send" yaml:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx" yaml:"rx_during_tx"`
}

// StoreConfig defines the register store behind the slave
type StoreConfig struct {
	Persistence PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
	Files       int               `mapstructure:"files" yaml:"files"` // number of record files, 0 disables file access
	Coils       WindowConfig      `mapstructure:"coils" yaml:"coils"`
	Discrete    WindowConfig      `mapstructure:"discrete_inputs" yaml:"discrete_inputs"`
	Holding     WindowConfig      `mapstructure:"holding_registers" yaml:"holding_registers"`
	Input       WindowConfig      `mapstructure:"input_registers" yaml:"input_registers"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type   string `mapstructure:"type" yaml:"type"`     // "memory", "file", "mmap", "sql"
	Path   string `mapstructure:"path" yaml:"path"`     // File path for "file/mmap" type
	Driver string `mapstructure:"driver" yaml:"driver"` // database/sql driver for "sql" type
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// WindowConfig limits a table to Count entries starting at the 1-based
// address Start.
type WindowConfig struct {
	Start int `mapstructure:"start" yaml:"start"`
	Count int `mapstructure:"count" yaml:"count"`
}

// Port converts the serial settings for the port drivers.
func (s SerialConfig) Port() port.SerialConfig {
	return port.SerialConfig{
		Device:             s.Device,
		BaudRate:           s.BaudRate,
		DataBits:           s.DataBits,
		Parity:             s.Parity,
		StopBits:           s.StopBits,
		TimeoutSlack:       s.TimeoutSlack,
		RS485:              s.RS485,
		DelayRtsBeforeSend: s.DelayRtsBeforeSend,
		DelayRtsAfterSend:  s.DelayRtsAfterSend,
		RtsHighDuringSend:  s.RtsHighDuringSend,
		RtsHighAfterSend:   s.RtsHighAfterSend,
		RxDuringTx:         s.RxDuringTx,
	}
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"mode":        "slave.mode",
	"address":     "slave.address",
	"device":      "serial.device",
	"baud_rate":   "serial.baud_rate",
	"parity":      "serial.parity",
	"persistence": "store.persistence.type",
	"data_path":   "store.persistence.path",
	"log_level":   "log.level",
	"log_file":    "log.file",
}

// SetDefaults installs the built-in defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("slave.mode", "rtu")
	v.SetDefault("slave.address", 1)
	v.SetDefault("slave.queue_size", 1)
	v.SetDefault("slave.ascii.timeout", time.Second)
	v.SetDefault("slave.ascii.end_of_frame", "\n")
	v.SetDefault("slave.id.value", 1)
	v.SetDefault("slave.id.running", true)
	for key, enabled := range functionDefaults() {
		v.SetDefault("slave.functions."+key, enabled)
	}

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 19200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "E")
	v.SetDefault("serial.stop_bits", 1)

	v.SetDefault("store.persistence.type", "memory")
	v.SetDefault("store.persistence.driver", "sqlite3")
	v.SetDefault("store.files", 0)
	for _, table := range []string{"coils", "discrete_inputs", "holding_registers", "input_registers"} {
		v.SetDefault("store."+table+".start", 1)
		v.SetDefault("store."+table+".count", 65536)
	}

	v.SetDefault("log.level", "info")
}

// functionDefaults lists every built-in function key, enabled.
func functionDefaults() map[string]bool {
	raw, err := yaml.Marshal(slave.DefaultFunctions())
	if err != nil {
		panic(err)
	}
	var m map[string]bool
	if err := yaml.Unmarshal(raw, &m); err != nil {
		panic(err)
	}
	return m
}

// LoadConfig loads configuration from file, overlaid with any flags set
// on the command line. An empty configFile searches the default paths and
// tolerates a missing file.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, *viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-slave/")
		v.AddConfigPath("$HOME/.modbus-slave")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return config, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	fixupSerial(&config.Serial)
	config.Slave.Mode = strings.ToLower(config.Slave.Mode)
	config.Log.Level = strings.ToLower(config.Log.Level)
	config.Store.Persistence.Type = strings.ToLower(config.Store.Persistence.Type)
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	switch s.Parity {
	case "NONE":
		s.Parity = "N"
	case "EVEN":
		s.Parity = "E"
	case "ODD":
		s.Parity = "O"
	}
}

// Watch calls onChange with the re-read configuration whenever the config
// file changes. Invalid revisions are logged and skipped.
func Watch(v *viper.Viper, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := decode(v)
		if err == nil {
			err = Validate(config)
		}
		if err != nil {
			slog.Warn("Ignoring config change", "file", e.Name, "err", err)
			return
		}
		onChange(config)
	})
	v.WatchConfig()
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
