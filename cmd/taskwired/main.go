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

// taskwired is the child daemon entry point. The parent process owns its
// stdin/stdout as the RPC channel; logs go to stderr only.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskwire/taskwire/internal/daemon"
	internallog "github.com/taskwire/taskwire/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := internallog.New(internallog.FromEnv())
	if err := daemon.RunChild(ctx, logger); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "taskwired: %v\n", err)
		os.Exit(1)
	}
}
