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
	"errors"

	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/scheduler"
	"github.com/taskwire/taskwire/internal/storage"
	"github.com/taskwire/taskwire/internal/task"
)

type taskIDParams struct {
	ID string `json:"id"`
}

type startTaskParams struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

type sendResponseParams struct {
	ID       string `json:"id"`
	Response string `json:"response"`
}

type resumeParams struct {
	SessionID string `json:"sessionId"`
}

type permissionParams struct {
	RequestID string `json:"requestId"`
	Approve   bool   `json:"approve"`
}

type updateStatusParams struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type updateSummaryParams struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

type scheduleParams struct {
	Cron   string `json:"cron"`
	Prompt string `json:"prompt"`
}

type okResult struct {
	OK bool `json:"ok"`
}

// registerStorageMethods binds the persistence methods. This is the subset
// the child process serves; the in-process server registers it too.
func registerStorageMethods(server *rpc.Server, store storage.Store) {
	server.RegisterMethod("task.list", rpc.Typed(func(ctx context.Context, _ struct{}) ([]storage.Task, error) {
		return store.GetTasks(ctx)
	}))
	server.RegisterMethod("task.get", rpc.Typed(func(ctx context.Context, p taskIDParams) (*storage.Task, error) {
		t, err := store.GetTask(ctx, p.ID)
		return t, mapStorageErr(err)
	}))
	server.RegisterMethod("task.delete", rpc.Typed(func(ctx context.Context, p taskIDParams) (okResult, error) {
		return okResult{OK: true}, mapStorageErr(store.DeleteTask(ctx, p.ID))
	}))
	server.RegisterMethod("task.clearHistory", rpc.Typed(func(ctx context.Context, _ struct{}) (okResult, error) {
		return okResult{OK: true}, store.ClearHistory(ctx)
	}))
	server.RegisterMethod("task.getTodos", rpc.Typed(func(ctx context.Context, p taskIDParams) ([]storage.Todo, error) {
		return store.GetTodosForTask(ctx, p.ID)
	}))
	server.RegisterMethod("storage.saveTask", rpc.Typed(func(ctx context.Context, t storage.Task) (okResult, error) {
		return okResult{OK: true}, store.SaveTask(ctx, t)
	}))
	server.RegisterMethod("storage.updateTaskStatus", rpc.Typed(func(ctx context.Context, p updateStatusParams) (okResult, error) {
		return okResult{OK: true}, mapStorageErr(store.UpdateTaskStatus(ctx, p.ID, p.Status))
	}))
	server.RegisterMethod("storage.updateTaskSummary", rpc.Typed(func(ctx context.Context, p updateSummaryParams) (okResult, error) {
		return okResult{OK: true}, mapStorageErr(store.UpdateTaskSummary(ctx, p.ID, p.Summary))
	}))
	server.RegisterMethod("storage.addTaskMessage", rpc.Typed(func(ctx context.Context, m storage.Message) (okResult, error) {
		return okResult{OK: true}, store.AddTaskMessage(ctx, m)
	}))
}

// registerTaskMethods binds the task-lifecycle methods. Only the
// in-process server registers these; against a child-process daemon they
// answer with method-not-found.
func registerTaskMethods(server *rpc.Server, tasks task.Manager) {
	server.RegisterMethod("task.start", rpc.Typed(func(ctx context.Context, p startTaskParams) (okResult, error) {
		return okResult{OK: true}, tasks.Start(ctx, p.ID, p.Prompt)
	}))
	server.RegisterMethod("task.cancel", rpc.Typed(func(ctx context.Context, p taskIDParams) (okResult, error) {
		return okResult{OK: true}, mapTaskErr(tasks.Cancel(ctx, p.ID))
	}))
	server.RegisterMethod("task.interrupt", rpc.Typed(func(ctx context.Context, p taskIDParams) (okResult, error) {
		return okResult{OK: true}, mapTaskErr(tasks.Interrupt(ctx, p.ID))
	}))
	server.RegisterMethod("task.sendResponse", rpc.Typed(func(ctx context.Context, p sendResponseParams) (okResult, error) {
		return okResult{OK: true}, mapTaskErr(tasks.SendResponse(ctx, p.ID, p.Response))
	}))
	server.RegisterMethod("task.getActiveIds", rpc.Typed(func(_ context.Context, _ struct{}) ([]string, error) {
		return tasks.ActiveTaskIDs(), nil
	}))
	server.RegisterMethod("task.getActiveCount", rpc.Typed(func(_ context.Context, _ struct{}) (int, error) {
		return tasks.ActiveTaskCount(), nil
	}))
	server.RegisterMethod("task.hasActive", rpc.Typed(func(_ context.Context, p taskIDParams) (bool, error) {
		return tasks.HasActiveTask(p.ID), nil
	}))
	server.RegisterMethod("task.isQueued", rpc.Typed(func(_ context.Context, p taskIDParams) (bool, error) {
		return tasks.IsTaskQueued(p.ID), nil
	}))
	server.RegisterMethod("task.cancelQueued", rpc.Typed(func(_ context.Context, p taskIDParams) (bool, error) {
		return tasks.CancelQueuedTask(p.ID), nil
	}))
	server.RegisterMethod("session.resume", rpc.Typed(func(ctx context.Context, p resumeParams) (okResult, error) {
		return okResult{OK: true}, tasks.Resume(ctx, p.SessionID)
	}))
	server.RegisterMethod("permission.respond", rpc.Typed(func(ctx context.Context, p permissionParams) (okResult, error) {
		return okResult{OK: true}, tasks.RespondPermission(ctx, p.RequestID, p.Approve)
	}))
}

// registerScheduleMethods binds the cron scheduling methods.
func registerScheduleMethods(server *rpc.Server, sched *scheduler.Scheduler) {
	server.RegisterMethod("task.schedule", rpc.Typed(func(_ context.Context, p scheduleParams) (scheduler.Task, error) {
		t, err := sched.Add(p.Cron, p.Prompt)
		if err != nil {
			return scheduler.Task{}, protocol.NewError(protocol.CodeInvalidParams, err.Error())
		}
		return t, nil
	}))
	server.RegisterMethod("task.listScheduled", rpc.Typed(func(_ context.Context, _ struct{}) ([]scheduler.Task, error) {
		return sched.List(), nil
	}))
	server.RegisterMethod("task.cancelScheduled", rpc.Typed(func(_ context.Context, p taskIDParams) (bool, error) {
		return sched.Cancel(p.ID), nil
	}))
}

// mapStorageErr converts the store's not-found into the wire error code so
// clients can distinguish it from internal faults.
func mapStorageErr(err error) error {
	if errors.Is(err, storage.ErrTaskNotFound) {
		return protocol.NewError(protocol.CodeTaskNotFound, err.Error())
	}
	return err
}

func mapTaskErr(err error) error {
	if errors.Is(err, task.ErrTaskNotFound) {
		return protocol.NewError(protocol.CodeTaskNotFound, err.Error())
	}
	return err
}
