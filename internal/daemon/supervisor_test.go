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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/storage"
	"github.com/taskwire/taskwire/internal/task"
	"github.com/taskwire/taskwire/internal/transport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func testStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type fakeSpawner struct {
	spawn func(ctx context.Context) (transport.Transport, func() error, error)
}

func (f *fakeSpawner) Spawn(ctx context.Context) (transport.Transport, func() error, error) {
	return f.spawn(ctx)
}

func TestBootstrapFallsBackWhenChildNeverReady(t *testing.T) {
	parentEnd, _ := transport.NewPair()
	killed := make(chan struct{}, 1)

	sup := NewSupervisor(Options{
		Config: testConfig(t),
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(1),
		Spawner: &fakeSpawner{spawn: func(context.Context) (transport.Transport, func() error, error) {
			return parentEnd, func() error { killed <- struct{}{}; return nil }, nil
		}},
	})
	sup.readyTimeout = 50 * time.Millisecond
	defer sup.Shutdown()

	require.NoError(t, sup.Bootstrap(context.Background()))
	require.Equal(t, ModeInProcess, sup.Mode())

	select {
	case <-killed:
	default:
		t.Fatal("unready child was never killed")
	}
}

func TestBootstrapFallsBackOnSpawnError(t *testing.T) {
	sup := NewSupervisor(Options{
		Config: testConfig(t),
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(1),
		Spawner: &fakeSpawner{spawn: func(context.Context) (transport.Transport, func() error, error) {
			return nil, nil, errors.New("no such binary")
		}},
	})
	defer sup.Shutdown()

	require.NoError(t, sup.Bootstrap(context.Background()))
	require.Equal(t, ModeInProcess, sup.Mode())
}

func TestBootstrapChildProcessHandshake(t *testing.T) {
	parentEnd, childEnd := transport.NewPair()

	// Stand-in for the spawned process: a server on the far end of the
	// pair that answers init with the readiness signal, serving only the
	// storage methods.
	childStore := testStore(t)
	childServer := rpc.NewServer(childEnd, nil)
	defer childServer.Close()
	childEnd.OnMessage(func(msg *protocol.Message) {
		if !msg.IsNotification() || msg.Method != "daemon.init" {
			return
		}
		var p initParams
		require.NoError(t, msg.UnmarshalParams(&p))
		require.NotEmpty(t, p.DataDir)
		registerStorageMethods(childServer, childStore)
		childServer.Notify("daemon.ready", readyParams{PID: 4242})
	})

	sup := NewSupervisor(Options{
		Config: testConfig(t),
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(1),
		Spawner: &fakeSpawner{spawn: func(context.Context) (transport.Transport, func() error, error) {
			return parentEnd, func() error { return nil }, nil
		}},
	})
	defer sup.Shutdown()

	require.NoError(t, sup.Bootstrap(context.Background()))
	require.Equal(t, ModeChildProcess, sup.Mode())

	ctx := context.Background()
	client := sup.Client()
	require.NotNil(t, client)

	ping, err := rpc.CallTyped[rpc.PingResult](ctx, client, "daemon.ping", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", ping.Status)

	// Storage methods round-trip through the child's own store.
	now := time.Now().UTC().Truncate(time.Second)
	_, err = client.Call(ctx, "storage.saveTask", storage.Task{
		ID: "t1", Prompt: "review notes", Status: "pending",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	got, err := rpc.CallTyped[storage.Task](ctx, client, "task.get", taskIDParams{ID: "t1"})
	require.NoError(t, err)
	require.Equal(t, "review notes", got.Prompt)

	// Task-lifecycle methods are deliberately absent from the child map.
	_, err = client.Call(ctx, "task.start", startTaskParams{ID: "t1", Prompt: "x"})
	var rpcErr *protocol.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, protocol.CodeMethodNotFound, rpcErr.Code)
}

func TestInProcessServesFullMethodMap(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.InProcess = true

	sup := NewSupervisor(Options{
		Config: cfg,
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(2),
	})
	defer sup.Shutdown()

	require.NoError(t, sup.Bootstrap(context.Background()))
	require.Equal(t, ModeInProcess, sup.Mode())

	ctx := context.Background()
	client := sup.Client()

	events := make(chan string, 4)
	client.OnNotification("task.statusChange", func(params json.RawMessage) {
		var ev map[string]string
		require.NoError(t, json.Unmarshal(params, &ev))
		events <- ev["status"]
	})

	_, err := client.Call(ctx, "task.start", startTaskParams{ID: "t1", Prompt: "triage inbox"})
	require.NoError(t, err)

	select {
	case status := <-events:
		require.Equal(t, "running", status)
	case <-time.After(2 * time.Second):
		t.Fatal("status change never pushed")
	}

	active, err := rpc.CallTyped[bool](ctx, client, "task.hasActive", taskIDParams{ID: "t1"})
	require.NoError(t, err)
	require.True(t, active)

	count, err := rpc.CallTyped[int](ctx, client, "task.getActiveCount", nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Storage methods share the host-provided store.
	now := time.Now().UTC().Truncate(time.Second)
	_, err = client.Call(ctx, "storage.saveTask", storage.Task{
		ID: "t1", Prompt: "triage inbox", Status: "running",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	tasks, err := rpc.CallTyped[[]storage.Task](ctx, client, "task.list", nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// Scheduling methods reach the supervisor-owned scheduler.
	sched, err := rpc.CallTyped[schedulerTaskView](ctx, client, "task.schedule",
		scheduleParams{Cron: "0 9 * * 1-5", Prompt: "standup"})
	require.NoError(t, err)
	require.NotEmpty(t, sched.ID)
	require.NotNil(t, sched.NextRunAt)

	listed, err := rpc.CallTyped[[]schedulerTaskView](ctx, client, "task.listScheduled", nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	cancelled, err := rpc.CallTyped[bool](ctx, client, "task.cancelScheduled", taskIDParams{ID: sched.ID})
	require.NoError(t, err)
	require.True(t, cancelled)

	_, err = client.Call(ctx, "task.schedule", scheduleParams{Cron: "*/5 * * * *", Prompt: "steps"})
	var rpcErr *protocol.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, protocol.CodeInvalidParams, rpcErr.Code)
}

// schedulerTaskView mirrors the scheduled-task wire shape for assertions.
type schedulerTaskView struct {
	ID             string     `json:"id"`
	CronExpression string     `json:"cronExpression"`
	Prompt         string     `json:"prompt"`
	NextRunAt      *time.Time `json:"nextRunAt"`
}

func TestBootstrapTwiceErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.InProcess = true

	sup := NewSupervisor(Options{
		Config: cfg,
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(1),
	})
	defer sup.Shutdown()

	require.NoError(t, sup.Bootstrap(context.Background()))
	require.Error(t, sup.Bootstrap(context.Background()))
}

func TestShutdownIdempotentAndResetsMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.InProcess = true

	sup := NewSupervisor(Options{
		Config: cfg,
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(1),
	})

	// Safe before any bootstrap.
	sup.Shutdown()

	require.NoError(t, sup.Bootstrap(context.Background()))
	client := sup.Client()

	sup.Shutdown()
	sup.Shutdown()
	require.Equal(t, ModeUnset, sup.Mode())
	require.Nil(t, sup.Client())

	// Calls against the closed client fail instead of hanging.
	_, err := client.Call(context.Background(), "daemon.ping", nil)
	require.Error(t, err)
}

func TestShutdownAfterChildModeKillsChild(t *testing.T) {
	parentEnd, childEnd := transport.NewPair()
	childServer := rpc.NewServer(childEnd, nil)
	defer childServer.Close()
	childEnd.OnMessage(func(msg *protocol.Message) {
		if msg.IsNotification() && msg.Method == "daemon.init" {
			childServer.Notify("daemon.ready", readyParams{PID: 99})
		}
	})

	killed := make(chan struct{}, 1)
	sup := NewSupervisor(Options{
		Config: testConfig(t),
		Store:  testStore(t),
		Tasks:  task.NewMemoryManager(1),
		Spawner: &fakeSpawner{spawn: func(context.Context) (transport.Transport, func() error, error) {
			return parentEnd, func() error { killed <- struct{}{}; return nil }, nil
		}},
	})

	require.NoError(t, sup.Bootstrap(context.Background()))
	require.Equal(t, ModeChildProcess, sup.Mode())

	sup.Shutdown()
	select {
	case <-killed:
	default:
		t.Fatal("shutdown did not kill the child")
	}
	require.Equal(t, ModeUnset, sup.Mode())
}

func TestResolveBinaryPrefersConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.Binary = "/opt/taskwire/taskwired"

	sp := &execSpawner{cfg: cfg}
	binary, err := sp.resolveBinary()
	require.NoError(t, err)
	require.Equal(t, "/opt/taskwire/taskwired", binary)
}
