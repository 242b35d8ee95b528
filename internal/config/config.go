// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the taskwire configuration from the XDG config
// directory, with environment variables taking precedence over file
// values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full taskwire configuration.
type Config struct {
	// DataDir is where the daemon keeps its database and schedules file.
	// Default: XDG data dir.
	DataDir string `yaml:"data_dir"`

	Daemon DaemonConfig `yaml:"daemon"`

	Log LogConfig `yaml:"log"`
}

// DaemonConfig configures daemon bootstrap and the RPC client.
type DaemonConfig struct {
	// Binary is the child daemon executable. Empty means "taskwired"
	// resolved next to the current executable, then on PATH.
	Binary string `yaml:"binary"`

	// InProcess forces the in-process mode, skipping the spawn attempt.
	InProcess bool `yaml:"in_process"`

	// ReadyTimeoutSeconds bounds the child readiness handshake.
	// Default: 10.
	ReadyTimeoutSeconds int `yaml:"ready_timeout_seconds"`

	// CallTimeoutSeconds bounds every RPC call. Default: 30.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`

	// MaxParallelTasks bounds concurrently executing tasks. Default: 2.
	MaxParallelTasks int `yaml:"max_parallel_tasks"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir, _ := DataDir()
	return &Config{
		DataDir: dataDir,
		Daemon: DaemonConfig{
			ReadyTimeoutSeconds: 10,
			CallTimeoutSeconds:  30,
			MaxParallelTasks:    2,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the config file from the XDG config dir, if present, and
// applies environment overrides. A missing file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	dir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TASKWIRE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TASKWIRE_DAEMON_BINARY"); v != "" {
		cfg.Daemon.Binary = v
	}
	if os.Getenv("TASKWIRE_IN_PROCESS") == "1" {
		cfg.Daemon.InProcess = true
	}
	if v := os.Getenv("TASKWIRE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must be set")
	}
	if c.Daemon.ReadyTimeoutSeconds <= 0 {
		return fmt.Errorf("config: daemon.ready_timeout_seconds must be positive")
	}
	if c.Daemon.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("config: daemon.call_timeout_seconds must be positive")
	}
	return nil
}

// ReadyTimeout returns the readiness handshake bound as a duration.
func (c *DaemonConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// CallTimeout returns the per-call RPC bound as a duration.
func (c *DaemonConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// SchedulesPath returns the declarative schedules file location.
func (c *Config) SchedulesPath() string {
	return filepath.Join(c.DataDir, "schedules.yaml")
}
