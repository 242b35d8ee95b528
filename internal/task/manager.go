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

// Package task defines the task-lifecycle contract the daemon bridges to,
// plus an in-memory manager used by the in-process daemon and tests. The
// real execution engine is a collaborator behind the Manager interface.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTaskNotFound is returned for operations against an unknown task id.
var ErrTaskNotFound = errors.New("task: not found")

// Manager is the task-lifecycle contract consumed by the daemon.
type Manager interface {
	// Start begins (or queues) execution of the task.
	Start(ctx context.Context, id, prompt string) error

	// Cancel stops an active or queued task.
	Cancel(ctx context.Context, id string) error

	// Interrupt pauses an active task at the next safe point.
	Interrupt(ctx context.Context, id string) error

	// SendResponse delivers a user response to a task waiting for input.
	SendResponse(ctx context.Context, id, response string) error

	// Resume reattaches to a previous session.
	Resume(ctx context.Context, sessionID string) error

	// RespondPermission answers an outstanding permission request.
	RespondPermission(ctx context.Context, requestID string, approve bool) error

	// ActiveTaskIDs returns the ids of currently executing tasks.
	ActiveTaskIDs() []string

	// ActiveTaskCount returns the number of currently executing tasks.
	ActiveTaskCount() int

	// HasActiveTask reports whether the id is currently executing.
	HasActiveTask(id string) bool

	// IsTaskQueued reports whether the id is waiting for a slot.
	IsTaskQueued(id string) bool

	// CancelQueuedTask removes a waiting task before it starts.
	CancelQueuedTask(id string) bool
}

// Notifier receives task events for pushing to clients.
type Notifier func(method string, params any)

// MemoryManager is an in-memory Manager with a bounded number of
// simultaneously active tasks; excess starts are queued in FIFO order.
type MemoryManager struct {
	maxParallel int

	mu     sync.Mutex
	active map[string]string // id -> prompt
	queue  []queuedTask
	notify Notifier
}

type queuedTask struct {
	id     string
	prompt string
}

// NewMemoryManager creates a manager allowing maxParallel concurrent tasks.
// Zero or negative means a single slot.
func NewMemoryManager(maxParallel int) *MemoryManager {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &MemoryManager{
		maxParallel: maxParallel,
		active:      make(map[string]string),
	}
}

// SetNotifier sets the event sink. Events are status-change style payloads
// matching the daemon's notification surface.
func (m *MemoryManager) SetNotifier(fn Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = fn
}

func (m *MemoryManager) emit(method string, params any) {
	m.mu.Lock()
	fn := m.notify
	m.mu.Unlock()
	if fn != nil {
		fn(method, params)
	}
}

// Start begins the task, or queues it when all slots are busy.
func (m *MemoryManager) Start(_ context.Context, id, prompt string) error {
	m.mu.Lock()
	if _, ok := m.active[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("task %s already active", id)
	}
	status := "running"
	if len(m.active) >= m.maxParallel {
		m.queue = append(m.queue, queuedTask{id: id, prompt: prompt})
		status = "queued"
	} else {
		m.active[id] = prompt
	}
	m.mu.Unlock()

	m.emit("task.statusChange", map[string]string{"taskId": id, "status": status})
	return nil
}

// Cancel stops an active or queued task.
func (m *MemoryManager) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.active[id]; ok {
		delete(m.active, id)
		m.promoteLocked()
		m.mu.Unlock()
		m.emit("task.statusChange", map[string]string{"taskId": id, "status": "cancelled"})
		return nil
	}
	removed := m.removeQueuedLocked(id)
	m.mu.Unlock()
	if !removed {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	m.emit("task.statusChange", map[string]string{"taskId": id, "status": "cancelled"})
	return nil
}

// Interrupt pauses an active task.
func (m *MemoryManager) Interrupt(_ context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	m.emit("task.statusChange", map[string]string{"taskId": id, "status": "interrupted"})
	return nil
}

// SendResponse delivers a user response to an active task.
func (m *MemoryManager) SendResponse(_ context.Context, id, response string) error {
	m.mu.Lock()
	_, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	m.emit("task.message", map[string]string{"taskId": id, "role": "user", "content": response})
	return nil
}

// Resume reattaches to a previous session. The in-memory manager treats
// the session id as a task id.
func (m *MemoryManager) Resume(ctx context.Context, sessionID string) error {
	return m.Start(ctx, sessionID, "")
}

// RespondPermission answers an outstanding permission request.
func (m *MemoryManager) RespondPermission(_ context.Context, requestID string, approve bool) error {
	m.emit("permission.request", map[string]any{"requestId": requestID, "approved": approve})
	return nil
}

// Complete marks an active task finished, promoting the next queued one.
func (m *MemoryManager) Complete(id string) {
	m.mu.Lock()
	if _, ok := m.active[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.active, id)
	m.promoteLocked()
	m.mu.Unlock()
	m.emit("task.complete", map[string]string{"taskId": id})
}

// ActiveTaskIDs returns the ids of currently executing tasks.
func (m *MemoryManager) ActiveTaskIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// ActiveTaskCount returns the number of currently executing tasks.
func (m *MemoryManager) ActiveTaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// HasActiveTask reports whether the id is currently executing.
func (m *MemoryManager) HasActiveTask(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// IsTaskQueued reports whether the id is waiting for a slot.
func (m *MemoryManager) IsTaskQueued(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queue {
		if q.id == id {
			return true
		}
	}
	return false
}

// CancelQueuedTask removes a waiting task before it starts.
func (m *MemoryManager) CancelQueuedTask(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeQueuedLocked(id)
}

func (m *MemoryManager) removeQueuedLocked(id string) bool {
	for i, q := range m.queue {
		if q.id == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// promoteLocked moves the oldest queued task into a freed slot.
func (m *MemoryManager) promoteLocked() {
	if len(m.queue) == 0 || len(m.active) >= m.maxParallel {
		return
	}
	next := m.queue[0]
	m.queue = m.queue[1:]
	m.active[next.id] = next.prompt
}
