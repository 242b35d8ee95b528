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

package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedClock pins the scheduler's clock for deterministic scans.
func fixedClock(s *Scheduler, at time.Time) {
	s.mu.Lock()
	s.now = func() time.Time { return at }
	s.mu.Unlock()
}

func TestAddComputesNextRunAt(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	// Tuesday 2026-01-06 at 08:00.
	fixedClock(s, time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC))

	task, err := s.Add("0 9 * * 1-5", "standup")
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	require.True(t, task.Enabled)
	require.NotNil(t, task.NextRunAt)
	require.Equal(t, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC), *task.NextRunAt)
	require.Nil(t, task.LastRunAt)
}

func TestAddLeavesNextRunAtUnsetBeyondHorizon(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	fixedClock(s, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	task, err := s.Add("0 0 30 2 *", "never")
	require.NoError(t, err)
	require.Nil(t, task.NextRunAt)
}

func TestAddRejectsInvalidCron(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	_, err := s.Add("*/5 * * * *", "steps not supported")
	require.Error(t, err)
	require.Empty(t, s.List())
}

func TestTaskIDsAreUnique(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		task, err := s.Add("0 9 * * *", "check-in")
		require.NoError(t, err)
		require.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
}

func TestTickFiresMatchingTasks(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	// Tuesday 09:00, which "0 9 * * 1-5" matches.
	now := time.Date(2026, 1, 6, 9, 0, 10, 0, time.UTC)
	fixedClock(s, now)

	var fired []Task
	s.OnFire(func(task Task) { fired = append(fired, task) })

	matching, err := s.Add("0 9 * * 1-5", "standup")
	require.NoError(t, err)
	_, err = s.Add("30 17 * * *", "wrap-up")
	require.NoError(t, err)

	s.tick()

	require.Len(t, fired, 1)
	require.Equal(t, matching.ID, fired[0].ID)
	require.Equal(t, "standup", fired[0].Prompt)

	got, ok := s.Get(matching.ID)
	require.True(t, ok)
	require.NotNil(t, got.LastRunAt)
	require.Equal(t, now, *got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	require.Equal(t, time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC), *got.NextRunAt)
}

func TestTickPanickingCallbackDoesNotBlockOthers(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	now := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	fixedClock(s, now)

	fires := 0
	s.OnFire(func(Task) {
		fires++
		panic("callback blew up")
	})

	_, err := s.Add("0 9 * * *", "one")
	require.NoError(t, err)
	_, err = s.Add("0 9 * * 2", "two")
	require.NoError(t, err)

	s.tick()
	require.Equal(t, 2, fires)
}

func TestTickWithoutCallbackStillAdvancesBookkeeping(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	fixedClock(s, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	task, err := s.Add("0 9 * * *", "quiet")
	require.NoError(t, err)

	s.tick()

	got, ok := s.Get(task.ID)
	require.True(t, ok)
	require.NotNil(t, got.LastRunAt)
}

func TestCancelStopsTimerWhenMapEmpties(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	task, err := s.Add("0 9 * * *", "solo")
	require.NoError(t, err)

	s.mu.Lock()
	running := s.stopCh != nil
	s.mu.Unlock()
	require.True(t, running, "timer must start lazily on first schedule")

	require.True(t, s.Cancel(task.ID))
	require.False(t, s.Cancel(task.ID), "second cancel reports unknown id")

	s.mu.Lock()
	running = s.stopCh != nil
	s.mu.Unlock()
	require.False(t, running, "timer must stop when the map empties")
}

func TestDisposeClearsEverything(t *testing.T) {
	s := New(nil)

	_, err := s.Add("0 9 * * *", "a")
	require.NoError(t, err)
	s.OnFire(func(Task) {})

	s.Dispose()
	require.Empty(t, s.List())

	s.mu.Lock()
	require.Nil(t, s.fire)
	require.Nil(t, s.stopCh)
	s.mu.Unlock()
}

func TestOnFireReplacesPreviousCallback(t *testing.T) {
	s := New(nil)
	defer s.Dispose()

	fixedClock(s, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	_, err := s.Add("0 9 * * *", "x")
	require.NoError(t, err)

	var first, second int
	s.OnFire(func(Task) { first++ })
	s.OnFire(func(Task) { second++ })

	s.tick()
	require.Zero(t, first)
	require.Equal(t, 1, second)
}

func TestFileSyncLoadsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"schedules:\n  - cron: \"0 9 * * 1-5\"\n    prompt: standup\n"), 0o644))

	s := New(nil)
	defer s.Dispose()

	fs, err := NewFileSync(path, s, nil)
	require.NoError(t, err)
	fs.Start()
	defer fs.Close()

	require.Len(t, s.List(), 1)

	require.NoError(t, os.WriteFile(path, []byte(
		"schedules:\n  - cron: \"0 9 * * 1-5\"\n    prompt: standup\n"+
			"  - cron: \"30 17 * * *\"\n    prompt: wrap-up\n"), 0o644))

	require.Eventually(t, func() bool { return len(s.List()) == 2 },
		3*time.Second, 10*time.Millisecond)
}
