// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
slave:
  mode: ASCII
  address: 10
  functions:
    write_file_record: false
  ascii:
    timeout: 250ms
serial:
  device: /dev/ttyS1
  baud_rate: 9600
  parity: even
  timeout_slack: 5ms
store:
  persistence:
    type: mmap
    path: /var/lib/modbus-slave/data.bin
  files: 2
  holding_registers:
    start: 1001
    count: 100
log:
  level: DEBUG
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, _, err := LoadConfig(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Slave.Mode != "ascii" || cfg.Slave.Address != 10 {
		t.Errorf("slave = %+v", cfg.Slave)
	}
	if cfg.Slave.ASCII.Timeout != 250*time.Millisecond || cfg.Slave.ASCII.EndOfFrame != "\n" {
		t.Errorf("ascii = %+v", cfg.Slave.ASCII)
	}
	if cfg.Slave.Functions.WriteFileRecord || !cfg.Slave.Functions.ReadFileRecord || !cfg.Slave.Functions.ReadCoils {
		t.Errorf("functions = %+v", cfg.Slave.Functions)
	}
	if cfg.Serial.Parity != "E" || cfg.Serial.DataBits != 8 || cfg.Serial.StopBits != 1 {
		t.Errorf("serial = %+v", cfg.Serial)
	}
	if p := cfg.Serial.Port(); p.TimeoutSlack != 5*time.Millisecond || p.Device != "/dev/ttyS1" {
		t.Errorf("port config = %+v", p)
	}
	if cfg.Store.Holding != (WindowConfig{Start: 1001, Count: 100}) || cfg.Store.Coils != (WindowConfig{Start: 1, Count: 65536}) {
		t.Errorf("store windows = %+v", cfg.Store)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("LoadConfig() with a missing explicit file succeeded")
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("device", "", "")
	flags.Int("address", 0, "")
	flags.String("log_level", "", "")
	if err := flags.Parse([]string{"--device", "/dev/ttyUSB3", "--address", "42"}); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadConfig(writeConfig(t, sampleConfig), flags)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyUSB3" || cfg.Slave.Address != 42 {
		t.Errorf("device = %q, address = %d", cfg.Serial.Device, cfg.Slave.Address)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("unset flag overrode log level: %q", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"mode", func(c *Config) { c.Slave.Mode = "tcp" }, "slave.mode"},
		{"broadcast address", func(c *Config) { c.Slave.Address = 0 }, "slave.address"},
		{"address above 247", func(c *Config) { c.Slave.Address = 248 }, "slave.address"},
		{"queue size", func(c *Config) { c.Slave.QueueSize = 0 }, "slave.queue_size"},
		{"slave id", func(c *Config) { c.Slave.ID.Additional = strings.Repeat("x", 30) }, "slave.id.additional"},
		{"end of frame", func(c *Config) { c.Slave.ASCII.EndOfFrame = "\r\n" }, "end_of_frame"},
		{"data bits", func(c *Config) { c.Serial.DataBits = 6 }, "serial.data_bits"},
		{"parity", func(c *Config) { c.Serial.Parity = "M" }, "serial.parity"},
		{"timeout slack", func(c *Config) { c.Serial.TimeoutSlack = -time.Millisecond }, "serial.timeout_slack"},
		{"file without path", func(c *Config) { c.Store.Persistence.Type = "file" }, "store.persistence.path"},
		{"sql without dsn", func(c *Config) { c.Store.Persistence.Type = "sql" }, "dsn"},
		{"unknown persistence", func(c *Config) { c.Store.Persistence.Type = "redis" }, "store.persistence.type"},
		{"window", func(c *Config) { c.Store.Input = WindowConfig{Start: 65000, Count: 1000} }, "store.input_registers"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := LoadConfig(writeConfig(t, "serial:\n  device: /dev/ttyS0\n"), nil)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			err = Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg, _, err := LoadConfig(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() error = %v", err)
	}
	var back Config
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(*cfg, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
