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

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, Task{
		ID:     "task-1",
		Prompt: "summarize inbox",
		Status: "queued",
	}))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "summarize inbox", got.Prompt)
	require.Equal(t, "queued", got.Status)
	require.False(t, got.CreatedAt.IsZero())

	// Upsert keeps the id and replaces fields.
	require.NoError(t, store.SaveTask(ctx, Task{
		ID:     "task-1",
		Prompt: "summarize inbox",
		Status: "running",
	}))
	got, err = store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "running", got.Status)
}

func TestGetTaskUnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTask(context.Background(), "missing")
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestUpdateStatusAndSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, Task{ID: "task-1", Prompt: "p", Status: "queued"}))

	require.NoError(t, store.UpdateTaskStatus(ctx, "task-1", "completed"))
	require.NoError(t, store.UpdateTaskSummary(ctx, "task-1", "all done"))

	got, err := store.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, "completed", got.Status)
	require.Equal(t, "all done", got.Summary)

	require.ErrorIs(t, store.UpdateTaskStatus(ctx, "missing", "x"), ErrTaskNotFound)
	require.ErrorIs(t, store.UpdateTaskSummary(ctx, "missing", "x"), ErrTaskNotFound)
}

func TestMessagesAppendInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, Task{ID: "task-1", Prompt: "p", Status: "queued"}))
	require.NoError(t, store.AddTaskMessage(ctx, Message{TaskID: "task-1", Role: "user", Content: "hello"}))
	require.NoError(t, store.AddTaskMessage(ctx, Message{TaskID: "task-1", Role: "assistant", Content: "hi"}))

	messages, err := store.GetTaskMessages(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, "hi", messages[1].Content)
}

func TestDeleteTaskCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, Task{ID: "task-1", Prompt: "p", Status: "queued"}))
	require.NoError(t, store.AddTaskMessage(ctx, Message{TaskID: "task-1", Role: "user", Content: "hello"}))
	require.NoError(t, store.ReplaceTodos(ctx, "task-1", []Todo{{Content: "step one", Status: "pending"}}))

	require.NoError(t, store.DeleteTask(ctx, "task-1"))
	require.ErrorIs(t, store.DeleteTask(ctx, "task-1"), ErrTaskNotFound)

	messages, err := store.GetTaskMessages(ctx, "task-1")
	require.NoError(t, err)
	require.Empty(t, messages)

	todos, err := store.GetTodosForTask(ctx, "task-1")
	require.NoError(t, err)
	require.Empty(t, todos)
}

func TestClearHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SaveTask(ctx, Task{ID: id, Prompt: "p", Status: "queued"}))
	}
	require.NoError(t, store.ClearHistory(ctx))

	tasks, err := store.GetTasks(ctx)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestReplaceTodos(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, Task{ID: "task-1", Prompt: "p", Status: "queued"}))
	require.NoError(t, store.ReplaceTodos(ctx, "task-1", []Todo{
		{Content: "one", Status: "pending"},
		{Content: "two", Status: "pending"},
	}))
	require.NoError(t, store.ReplaceTodos(ctx, "task-1", []Todo{
		{Content: "two", Status: "completed"},
	}))

	todos, err := store.GetTodosForTask(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, todos, 1)
	require.Equal(t, "two", todos[0].Content)
	require.Equal(t, "completed", todos[0].Status)
}
