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

// Package scheduler provides an in-memory cron scheduler that fires a
// callback when wall-clock time matches a task's schedule. A Scheduler is
// an owned object with an explicit construct/dispose lifecycle; multiple
// independent schedulers can coexist.
package scheduler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tickInterval is the fixed period of the scheduler's repeating timer.
const tickInterval = time.Minute

// Task is one cron-triggered task definition.
type Task struct {
	ID             string     `json:"id"`
	CronExpression string     `json:"cronExpression"`
	Prompt         string     `json:"prompt"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`

	expr *CronExpr
}

// FireFunc is invoked when a task's schedule matches the current minute.
type FireFunc func(task Task)

// Scheduler owns an id-to-task map and a single repeating timer. The timer
// starts lazily on the first schedule and stops when the map empties.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*Task
	fire   FireFunc
	stopCh chan struct{}

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger.With(slog.String("component", "scheduler")),
		tasks:  make(map[string]*Task),
		now:    time.Now,
	}
}

// Add schedules a task. The returned task carries a generated id and the
// first computed NextRunAt; NextRunAt stays nil when no minute within the
// next 7 days matches.
func (s *Scheduler) Add(cronExpression, prompt string) (Task, error) {
	expr, err := ParseCron(cronExpression)
	if err != nil {
		return Task{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	task := &Task{
		ID:             newTaskID(now),
		CronExpression: cronExpression,
		Prompt:         prompt,
		Enabled:        true,
		CreatedAt:      now,
		expr:           expr,
	}
	if next, ok := expr.Next(now); ok {
		task.NextRunAt = &next
	}
	s.tasks[task.ID] = task

	if s.stopCh == nil {
		s.stopCh = make(chan struct{})
		go s.loop(s.stopCh)
	}

	s.logger.Info("task scheduled",
		slog.String("task_id", task.ID),
		slog.String("cron", cronExpression))
	return *task, nil
}

// Cancel removes a task. It reports whether the id was known and stops the
// timer when the map becomes empty.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	if len(s.tasks) == 0 {
		s.stopTimerLocked()
	}
	return true
}

// List returns a snapshot of all scheduled tasks.
func (s *Scheduler) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		result = append(result, *task)
	}
	return result
}

// Get returns a task snapshot by id.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// OnFire sets the fire callback, replacing any previous one. At most one
// callback is active.
func (s *Scheduler) OnFire(fn FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fn
}

// Dispose stops the timer, clears the task map and the callback.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.tasks = make(map[string]*Task)
	s.fire = nil
}

func (s *Scheduler) stopTimerLocked() {
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Scheduler) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every enabled task whose schedule matches the current minute,
// then records LastRunAt and recomputes NextRunAt. Callbacks run
// synchronously in map-iteration order; a panicking callback is logged and
// does not prevent other tasks in the same tick from firing. Minutes during
// which the process was not running produce no retroactive fire.
func (s *Scheduler) tick() {
	s.mu.Lock()
	now := s.now()
	minute := now.Truncate(time.Minute)
	fire := s.fire

	var due []*Task
	for _, task := range s.tasks {
		if task.Enabled && task.expr.Matches(minute) {
			due = append(due, task)
		}
	}
	snapshots := make([]Task, len(due))
	for i, task := range due {
		last := now
		task.LastRunAt = &last
		task.NextRunAt = nil
		if next, ok := task.expr.Next(now); ok {
			task.NextRunAt = &next
		}
		snapshots[i] = *task
	}
	s.mu.Unlock()

	if fire == nil {
		return
	}
	for _, snapshot := range snapshots {
		s.fireOne(fire, snapshot)
	}
}

func (s *Scheduler) fireOne(fire FireFunc, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task callback failed",
				slog.String("task_id", task.ID),
				slog.Any("error", r))
		}
	}()
	fire(task)
}

// newTaskID builds a time-based id with a random suffix. Uniqueness is
// best effort, not cryptographically guaranteed.
func newTaskID(now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("sched-%d-%s", now.UnixMilli(), suffix)
}
