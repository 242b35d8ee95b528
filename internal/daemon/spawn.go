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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/transport"
)

// childBinaryName is the daemon executable looked up when the config does
// not name one.
const childBinaryName = "taskwired"

// execSpawner starts the child daemon as an OS process wired over its
// stdin/stdout pipes. Stderr passes through so child logs stay visible.
type execSpawner struct {
	cfg      *config.Config
	wrapArgs func(args []string) []string
	env      func() []string
	logger   *slog.Logger
}

func (e *execSpawner) Spawn(ctx context.Context) (transport.Transport, func() error, error) {
	binary, err := e.resolveBinary()
	if err != nil {
		return nil, nil, err
	}

	args := []string{binary}
	if e.wrapArgs != nil {
		args = e.wrapArgs(args)
	}
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("spawn wrapper produced an empty command line")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = os.Environ()
	if e.env != nil {
		cmd.Env = append(cmd.Env, e.env()...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open child stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open child stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	e.logger.Debug("child daemon spawned",
		slog.String("binary", args[0]), slog.Int("pid", cmd.Process.Pid))

	kill := func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return cmd.Wait()
	}
	return transport.NewChildProcess(stdin, stdout, e.logger), kill, nil
}

// resolveBinary prefers the configured path, then a sibling of the current
// executable, then PATH lookup.
func (e *execSpawner) resolveBinary() (string, error) {
	if e.cfg.Daemon.Binary != "" {
		return e.cfg.Daemon.Binary, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), childBinaryName)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(childBinaryName)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", childBinaryName, err)
	}
	return path, nil
}
