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

// Package daemon bootstraps the task daemon and supervises its lifecycle.
// The daemon either runs in a spawned child process, reached over a tagged
// stdio transport, or embedded in the host process over a linked transport
// pair. Spawn or handshake failures fall back to the in-process mode; they
// are never fatal to the host.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire/internal/config"
	internallog "github.com/taskwire/taskwire/internal/log"
	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/scheduler"
	"github.com/taskwire/taskwire/internal/storage"
	"github.com/taskwire/taskwire/internal/task"
	"github.com/taskwire/taskwire/internal/transport"
)

// Mode is the daemon execution mode.
type Mode string

const (
	// ModeUnset means no bootstrap has completed or the supervisor shut down.
	ModeUnset Mode = "unset"
	// ModeChildProcess means the daemon runs in a spawned subprocess.
	ModeChildProcess Mode = "child-process"
	// ModeInProcess means the daemon runs inside the host process.
	ModeInProcess Mode = "in-process"
)

// Spawner starts the child daemon process. It returns the parent side of
// the child's transport and a kill function that force-stops the process.
type Spawner interface {
	Spawn(ctx context.Context) (transport.Transport, func() error, error)
}

// Options configures a supervisor.
type Options struct {
	Config *config.Config

	// Store serves the storage methods in in-process mode. The child
	// process opens its own store and ignores this one.
	Store storage.Store

	// Tasks serves the task-lifecycle methods in in-process mode.
	Tasks task.Manager

	// Spawner overrides how the child process is started. Nil means
	// spawning the configured daemon binary; tests substitute fakes.
	Spawner Spawner

	// WrapSpawnArgs lets a sandboxing provider rewrite the child command
	// line before it is executed. Nil means no rewrite.
	WrapSpawnArgs func(args []string) []string

	// ExtraEnv lets a sandboxing provider append environment variables to
	// the child process. Nil means the host environment as-is.
	ExtraEnv func() []string

	Logger *slog.Logger
}

// initParams is the configuration pushed to the child before it serves.
type initParams struct {
	DataDir string `json:"dataDir"`
}

// readyParams is the child's readiness signal.
type readyParams struct {
	PID int `json:"pid"`
}

// Supervisor owns the single active client/server pair of the process and
// the child subprocess handle, when one exists.
type Supervisor struct {
	cfg    *config.Config
	store  storage.Store
	tasks  task.Manager
	spawn  Spawner
	logger *slog.Logger

	// readyTimeout and callTimeout come from the config; shortened in tests.
	readyTimeout time.Duration
	callTimeout  time.Duration

	mu        sync.Mutex
	mode      Mode
	client    *rpc.Client
	server    *rpc.Server
	sched     *scheduler.Scheduler
	fileSync  *scheduler.FileSync
	killChild func() error
	childPID  int
}

// NewSupervisor creates a supervisor. Bootstrap must be called before the
// client is usable.
func NewSupervisor(opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spawn := opts.Spawner
	if spawn == nil {
		spawn = &execSpawner{
			cfg:      opts.Config,
			wrapArgs: opts.WrapSpawnArgs,
			env:      opts.ExtraEnv,
			logger:   logger,
		}
	}
	return &Supervisor{
		cfg:          opts.Config,
		store:        opts.Store,
		tasks:        opts.Tasks,
		spawn:        spawn,
		logger:       internallog.WithComponent(logger, "supervisor"),
		readyTimeout: opts.Config.Daemon.ReadyTimeout(),
		callTimeout:  opts.Config.Daemon.CallTimeout(),
		mode:         ModeUnset,
	}
}

// Bootstrap selects the daemon mode and makes the client ready. It tries
// the child-process path first unless configuration forces in-process;
// spawn or handshake failure falls back to in-process. Calling Bootstrap
// while already bootstrapped is an error.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeUnset {
		return fmt.Errorf("daemon: already bootstrapped in %s mode", s.mode)
	}

	if !s.cfg.Daemon.InProcess {
		pid, err := s.startChildLocked(ctx)
		if err == nil {
			s.mode = ModeChildProcess
			s.childPID = pid
			s.logger.Info("daemon ready",
				slog.String(internallog.ModeKey, string(ModeChildProcess)),
				internallog.Int("child_pid", pid))
			return nil
		}
		s.logger.Warn("child daemon unavailable, falling back to in-process",
			internallog.Error(err))
	}

	if err := s.startInProcessLocked(); err != nil {
		return err
	}
	s.mode = ModeInProcess
	s.logger.Info("daemon ready",
		slog.String(internallog.ModeKey, string(ModeInProcess)))
	return nil
}

// Mode returns the current daemon mode.
func (s *Supervisor) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Client returns the RPC client for the active daemon, or nil before a
// successful bootstrap.
func (s *Supervisor) Client() *rpc.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Shutdown tears down whichever mode is active: closes the client and
// server, kills the subprocess, disposes the scheduler and resets the mode.
// Idempotent, including before any bootstrap.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	if s.killChild != nil {
		if err := s.killChild(); err != nil {
			s.logger.Debug("child kill failed", internallog.Error(err))
		}
		s.killChild = nil
	}
	if s.fileSync != nil {
		s.fileSync.Close()
		s.fileSync = nil
	}
	if s.sched != nil {
		s.sched.Dispose()
		s.sched = nil
	}
	s.childPID = 0
	s.mode = ModeUnset
}

// startChildLocked spawns the child, pushes the init configuration and
// waits for the readiness signal under the configured timeout. On any
// failure the child is killed and the transport closed.
func (s *Supervisor) startChildLocked(ctx context.Context) (int, error) {
	tr, kill, err := s.spawn.Spawn(ctx)
	if err != nil {
		return 0, fmt.Errorf("spawn child daemon: %w", err)
	}

	client := rpc.NewClient(tr, rpc.ClientConfig{
		CallTimeout: s.callTimeout,
		Logger:      s.logger,
	})

	readyCh := make(chan readyParams, 1)
	client.OnNotification("daemon.ready", func(params json.RawMessage) {
		var ready readyParams
		if err := json.Unmarshal(params, &ready); err != nil {
			return
		}
		select {
		case readyCh <- ready:
		default:
		}
	})

	init, err := protocol.NewNotification("daemon.init", initParams{DataDir: s.cfg.DataDir})
	if err != nil {
		client.Close()
		_ = kill()
		return 0, fmt.Errorf("encode init message: %w", err)
	}
	tr.Send(init)

	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()

	select {
	case ready := <-readyCh:
		s.client = client
		s.killChild = kill
		return ready.PID, nil
	case <-timer.C:
		client.Close()
		_ = kill()
		return 0, fmt.Errorf("child daemon not ready after %s", s.readyTimeout)
	case <-ctx.Done():
		client.Close()
		_ = kill()
		return 0, ctx.Err()
	}
}

// startInProcessLocked builds the linked transport pair, binds a server
// with the full method map to one end and a client to the other.
func (s *Supervisor) startInProcessLocked() error {
	serverEnd, clientEnd := transport.NewPair()

	server := rpc.NewServer(serverEnd, s.logger)
	sched := scheduler.New(s.logger)

	registerStorageMethods(server, s.store)
	registerTaskMethods(server, s.tasks)
	registerScheduleMethods(server, sched)

	// Push task events from the manager to the client side.
	if notifying, ok := s.tasks.(interface{ SetNotifier(task.Notifier) }); ok {
		notifying.SetNotifier(server.Notify)
	}

	client := rpc.NewClient(clientEnd, rpc.ClientConfig{
		CallTimeout: s.callTimeout,
		Logger:      s.logger,
	})

	sched.OnFire(func(t scheduler.Task) {
		s.fireScheduledTask(client, t)
	})

	if fs, err := scheduler.NewFileSync(s.cfg.SchedulesPath(), sched, s.logger); err != nil {
		s.logger.Warn("schedules file watch unavailable", internallog.Error(err))
	} else {
		fs.Start()
		s.fileSync = fs
	}

	s.server = server
	s.sched = sched
	s.client = client
	return nil
}

// fireScheduledTask starts a new task run for a fired schedule through the
// normal RPC surface, so scheduled runs behave like user-started ones.
func (s *Supervisor) fireScheduledTask(client *rpc.Client, t scheduler.Task) {
	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	_, err := client.Call(ctx, "task.start", startTaskParams{ID: id, Prompt: t.Prompt})
	if err != nil {
		s.logger.Warn("scheduled task start failed",
			slog.String(internallog.TaskIDKey, id),
			internallog.String("schedule_id", t.ID),
			internallog.Error(err))
		return
	}
	s.logger.Info("scheduled task started",
		slog.String(internallog.TaskIDKey, id),
		internallog.String("schedule_id", t.ID))
}
