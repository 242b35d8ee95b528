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

package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/scheduler"
)

func newScheduleCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <cron> <prompt>",
		Short: "Schedule a recurring task",
		Long: `Schedule a task using a 5-field cron expression
(minute hour day-of-month month day-of-week). Fields accept *, single
values, a-b ranges and comma lists; step values are not supported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, flags, func(ctx context.Context, client *rpc.Client) error {
				t, err := rpc.CallTyped[scheduler.Task](ctx, client, "task.schedule",
					map[string]string{"cron": args[0], "prompt": args[1]})
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return printJSON(cmd, t)
				}
				cmd.Printf("scheduled %s\n", t.ID)
				if t.NextRunAt != nil {
					cmd.Printf("next run %s\n", t.NextRunAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
}

func newListScheduledCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDaemon(cmd, flags, func(ctx context.Context, client *rpc.Client) error {
				tasks, err := rpc.CallTyped[[]scheduler.Task](ctx, client, "task.listScheduled", nil)
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return printJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					cmd.Println("no scheduled tasks")
					return nil
				}
				for _, t := range tasks {
					next := "-"
					if t.NextRunAt != nil {
						next = t.NextRunAt.Format("2006-01-02 15:04")
					}
					cmd.Printf("%s  %-16s  next %s  %s\n", t.ID, t.CronExpression, next, t.Prompt)
				}
				return nil
			})
		},
	}
}

func newCancelScheduledCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-scheduled <id>",
		Short: "Cancel a scheduled task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, flags, func(ctx context.Context, client *rpc.Client) error {
				removed, err := rpc.CallTyped[bool](ctx, client, "task.cancelScheduled",
					map[string]string{"id": args[0]})
				if err != nil {
					return err
				}
				if !removed {
					cmd.Printf("no scheduled task %s\n", args[0])
					return nil
				}
				cmd.Printf("cancelled %s\n", args[0])
				return nil
			})
		},
	}
}
