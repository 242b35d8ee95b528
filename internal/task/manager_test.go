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

package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartQueuesBeyondParallelLimit(t *testing.T) {
	m := NewMemoryManager(2)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "a", "one"))
	require.NoError(t, m.Start(ctx, "b", "two"))
	require.NoError(t, m.Start(ctx, "c", "three"))

	require.Equal(t, 2, m.ActiveTaskCount())
	require.True(t, m.HasActiveTask("a"))
	require.True(t, m.HasActiveTask("b"))
	require.False(t, m.HasActiveTask("c"))
	require.True(t, m.IsTaskQueued("c"))
}

func TestCompletePromotesQueuedTask(t *testing.T) {
	m := NewMemoryManager(1)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "a", "one"))
	require.NoError(t, m.Start(ctx, "b", "two"))

	m.Complete("a")
	require.True(t, m.HasActiveTask("b"))
	require.False(t, m.IsTaskQueued("b"))
}

func TestCancelActiveAndQueued(t *testing.T) {
	m := NewMemoryManager(1)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "a", "one"))
	require.NoError(t, m.Start(ctx, "b", "two"))

	require.NoError(t, m.Cancel(ctx, "b"))
	require.False(t, m.IsTaskQueued("b"))

	require.NoError(t, m.Cancel(ctx, "a"))
	require.Zero(t, m.ActiveTaskCount())

	require.ErrorIs(t, m.Cancel(ctx, "missing"), ErrTaskNotFound)
}

func TestCancelQueuedTaskOnly(t *testing.T) {
	m := NewMemoryManager(1)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, "a", "one"))
	require.NoError(t, m.Start(ctx, "b", "two"))

	require.True(t, m.CancelQueuedTask("b"))
	require.False(t, m.CancelQueuedTask("a"), "active tasks are not queued")
}

func TestInterruptAndSendResponseRequireActiveTask(t *testing.T) {
	m := NewMemoryManager(1)
	ctx := context.Background()

	require.ErrorIs(t, m.Interrupt(ctx, "a"), ErrTaskNotFound)
	require.ErrorIs(t, m.SendResponse(ctx, "a", "yes"), ErrTaskNotFound)

	require.NoError(t, m.Start(ctx, "a", "one"))
	require.NoError(t, m.Interrupt(ctx, "a"))
	require.NoError(t, m.SendResponse(ctx, "a", "yes"))
}

func TestNotifierReceivesStatusChanges(t *testing.T) {
	m := NewMemoryManager(1)
	ctx := context.Background()

	var events []string
	m.SetNotifier(func(method string, _ any) { events = append(events, method) })

	require.NoError(t, m.Start(ctx, "a", "one"))
	m.Complete("a")

	require.Equal(t, []string{"task.statusChange", "task.complete"}, events)
}
