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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	internallog "github.com/taskwire/taskwire/internal/log"
	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/rpc"
	"github.com/taskwire/taskwire/internal/storage"
	"github.com/taskwire/taskwire/internal/transport"
)

// RunChild is the entry routine of the spawned daemon process. It serves
// the storage methods over the process's stdio: it waits for the init
// message carrying the data directory, opens the store, signals readiness
// with its pid and then blocks until the parent closes the pipe or ctx is
// cancelled.
func RunChild(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = internallog.WithComponent(logger, "daemon-child")

	tr := transport.NewStdio(logger)
	defer tr.Close()

	// The init handler must attach before anything else starts reading,
	// since the parent pushes daemon.init as soon as the pipe opens.
	initCh := make(chan initParams, 1)
	tr.OnMessage(func(msg *protocol.Message) {
		if !msg.IsNotification() || msg.Method != "daemon.init" {
			return
		}
		var p initParams
		if err := msg.UnmarshalParams(&p); err != nil {
			logger.Warn("malformed init message", internallog.Error(err))
			return
		}
		select {
		case initCh <- p:
		default:
		}
	})

	server := rpc.NewServer(tr, logger)
	defer server.Close()

	var init initParams
	select {
	case init = <-initCh:
	case <-tr.Done():
		return fmt.Errorf("parent closed the channel before init")
	case <-ctx.Done():
		return ctx.Err()
	}

	if init.DataDir == "" {
		return fmt.Errorf("init message carries no data directory")
	}

	store, err := storage.OpenSQLite(init.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	registerStorageMethods(server, store)

	server.Notify("daemon.ready", readyParams{PID: os.Getpid()})
	logger.Info("child daemon serving",
		internallog.Int("pid", os.Getpid()),
		internallog.String("data_dir", init.DataDir))

	select {
	case <-tr.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
