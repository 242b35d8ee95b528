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

// Package storage defines the persistence contract the daemon bridges to
// and a SQLite implementation of it. The daemon subsystem treats the
// storage engine as a collaborator; everything it needs is expressed by
// the Store interface.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrTaskNotFound is returned when a task id is unknown.
var ErrTaskNotFound = errors.New("storage: task not found")

// Task is one persisted task record.
type Task struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one entry of a task's conversation history.
type Message struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"taskId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Todo is one item of a task's todo list.
type Todo struct {
	ID      int64  `json:"id"`
	TaskID  string `json:"taskId"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// Store is the persistence contract consumed by the daemon.
type Store interface {
	// GetTask returns the task with the given id, or ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*Task, error)

	// GetTasks returns all tasks, newest first.
	GetTasks(ctx context.Context) ([]Task, error)

	// SaveTask inserts or replaces a task record.
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus sets the status of an existing task.
	UpdateTaskStatus(ctx context.Context, id, status string) error

	// UpdateTaskSummary sets the summary of an existing task.
	UpdateTaskSummary(ctx context.Context, id, summary string) error

	// AddTaskMessage appends one message to a task's history.
	AddTaskMessage(ctx context.Context, msg Message) error

	// DeleteTask removes a task and its messages and todos.
	DeleteTask(ctx context.Context, id string) error

	// ClearHistory removes every task, message and todo.
	ClearHistory(ctx context.Context) error

	// GetTodosForTask returns a task's todo items in insertion order.
	GetTodosForTask(ctx context.Context, id string) ([]Todo, error)

	// ReplaceTodos swaps a task's todo list for the given items.
	ReplaceTodos(ctx context.Context, id string, todos []Todo) error

	// Close releases the underlying resources.
	Close() error
}
