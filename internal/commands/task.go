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
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/storage"
)

func newPingCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDaemon(cmd, flags, func(ctx context.Context, client *rpc.Client) error {
				ping, err := rpc.CallTyped[rpc.PingResult](ctx, client, "daemon.ping", nil)
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return printJSON(cmd, ping)
				}
				cmd.Printf("%s (uptime %s)\n", ping.Status, time.Duration(ping.Uptime)*time.Millisecond)
				return nil
			})
		},
	}
}

func newRunCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <prompt>",
		Short: "Start a new task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			return withDaemon(cmd, flags, func(ctx context.Context, client *rpc.Client) error {
				id := uuid.NewString()
				now := time.Now().UTC()
				_, err := client.Call(ctx, "storage.saveTask", storage.Task{
					ID:        id,
					Prompt:    prompt,
					Status:    "pending",
					CreatedAt: now,
					UpdatedAt: now,
				})
				if err != nil {
					return err
				}
				if _, err := client.Call(ctx, "task.start", map[string]string{
					"id": id, "prompt": prompt,
				}); err != nil {
					return err
				}
				if flags.jsonOut {
					return printJSON(cmd, map[string]string{"id": id})
				}
				cmd.Printf("started task %s\n", id)
				return nil
			})
		},
	}
}

func newListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDaemon(cmd, flags, func(ctx context.Context, client *rpc.Client) error {
				tasks, err := rpc.CallTyped[[]storage.Task](ctx, client, "task.list", nil)
				if err != nil {
					return err
				}
				if flags.jsonOut {
					return printJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					cmd.Println("no tasks")
					return nil
				}
				for _, t := range tasks {
					cmd.Printf("%s  %-10s  %s\n", t.ID, t.Status, t.Prompt)
				}
				return nil
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
