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

// Package commands assembles the taskwire CLI. Every command is a thin
// wrapper: it bootstraps the daemon, issues one RPC call and prints the
// answer.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/daemon"
	internallog "github.com/taskwire/taskwire/internal/log"
	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/storage"
	"github.com/taskwire/taskwire/internal/task"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	inProcess bool
	jsonOut   bool
}

// NewRootCommand builds the taskwire command tree.
func NewRootCommand(version string) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "taskwire",
		Short:         "Run and schedule tasks against the taskwire daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&flags.inProcess, "in-process", false,
		"run the daemon inside this process instead of spawning taskwired")
	cmd.PersistentFlags().BoolVar(&flags.jsonOut, "json", false,
		"print machine-readable JSON output")

	cmd.AddCommand(
		newPingCommand(flags),
		newRunCommand(flags),
		newListCommand(flags),
		newScheduleCommand(flags),
		newListScheduledCommand(flags),
		newCancelScheduledCommand(flags),
		newDocsCommand(),
	)
	return cmd
}

// withDaemon bootstraps the daemon for the duration of one command and
// hands the connected client to fn. Teardown always runs, including on
// command failure.
func withDaemon(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, client *rpc.Client) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.inProcess {
		cfg.Daemon.InProcess = true
	}

	logger := internallog.New(internallog.FromEnv())

	store, err := storage.OpenSQLite(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()

	sup := daemon.NewSupervisor(daemon.Options{
		Config: cfg,
		Store:  store,
		Tasks:  task.NewMemoryManager(cfg.Daemon.MaxParallelTasks),
		Logger: logger,
	})
	defer sup.Shutdown()

	ctx := cmd.Context()
	if err := sup.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap daemon: %w", err)
	}
	return fn(ctx, sup.Client())
}
