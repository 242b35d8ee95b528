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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Daemon.ReadyTimeout())
	require.Equal(t, 30*time.Second, cfg.Daemon.CallTimeout())
	require.Equal(t, 2, cfg.Daemon.MaxParallelTasks)
	require.NotEmpty(t, cfg.DataDir)
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	dir := filepath.Join(configHome, "taskwire")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"data_dir: /tmp/from-file\ndaemon:\n  ready_timeout_seconds: 2\n  call_timeout_seconds: 5\n"), 0o644))

	t.Setenv("TASKWIRE_DATA_DIR", "/tmp/from-env")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/tmp/from-env", cfg.DataDir, "env wins over file")
	require.Equal(t, 2*time.Second, cfg.Daemon.ReadyTimeout())
	require.Equal(t, 5*time.Second, cfg.Daemon.CallTimeout())
}

func TestLoadRejectsInvalidTimeouts(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	dir := filepath.Join(configHome, "taskwire")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"daemon:\n  ready_timeout_seconds: -1\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestSchedulesPath(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	require.Equal(t, filepath.Join("/data", "schedules.yaml"), cfg.SchedulesPath())
}

func TestXDGDirsRespectOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	dir, err := ConfigDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/custom/config", "taskwire"), dir)

	dir, err = DataDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/custom/data", "taskwire"), dir)
}
