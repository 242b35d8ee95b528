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

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskwire/taskwire/internal/protocol"
	"github.com/taskwire/taskwire/internal/transport"
)

// Handler handles one RPC request. The returned value is marshaled into
// the response result. Returning a *protocol.Error preserves its code;
// any other error is converted to an internal error response.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// PingResult is the result of the built-in daemon.ping method.
type PingResult struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// Server binds to a transport, dispatches inbound requests to registered
// handlers and pushes notifications. A faulting handler never crashes the
// server; its error is logged and converted to an error response.
type Server struct {
	tr      transport.Transport
	logger  *slog.Logger
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers map[string]Handler
	closed   bool
}

// NewServer creates a server bound to the transport and auto-registers the
// daemon.ping method.
func NewServer(tr transport.Transport, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		tr:       tr,
		logger:   logger.With(slog.String("component", "rpc-server")),
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[string]Handler),
	}

	s.RegisterMethod("daemon.ping", func(context.Context, json.RawMessage) (any, error) {
		return PingResult{Status: "ok", Uptime: time.Since(s.started).Milliseconds()}, nil
	})

	tr.OnMessage(s.handleMessage)
	return s
}

// RegisterMethod maps a method name to a handler. Re-registering a name
// silently replaces the previous handler.
func (s *Server) RegisterMethod(name string, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers[name] = fn
}

// Notify pushes a notification to the peer. Fire and forget; there is no
// acknowledgment and no delivery guarantee beyond the transport's contract.
func (s *Server) Notify(method string, params any) {
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		s.logger.Warn("dropping unencodable notification",
			slog.String("method", method), slog.Any("error", err))
		return
	}
	s.tr.Send(msg)
}

// Close closes the transport and clears the handler registry. Idempotent.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.handlers = nil
	s.mu.Unlock()

	s.cancel()
	s.tr.Close()
}

// handleMessage dispatches one inbound envelope. Anything that is not a
// request is inert to the server.
func (s *Server) handleMessage(msg *protocol.Message) {
	if !msg.IsRequest() {
		return
	}

	s.mu.Lock()
	fn, ok := s.handlers[msg.Method]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	if !ok {
		s.tr.Send(protocol.NewErrorResponse(msg.ID, protocol.CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", msg.Method)))
		return
	}

	// Handlers run off the transport's read path so a slow method never
	// stalls inbound delivery.
	go s.invoke(fn, msg)
}

func (s *Server) invoke(fn Handler, msg *protocol.Message) {
	result, err := s.safeCall(fn, msg)
	if err != nil {
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			perr = protocol.NewError(protocol.CodeInternalError, err.Error())
		}
		s.logger.Error("handler failed",
			slog.String("method", msg.Method),
			slog.Int("code", perr.Code),
			slog.Any("error", err))
		s.tr.Send(&protocol.Message{JSONRPC: protocol.Version, ID: msg.ID, Error: perr})
		return
	}

	resp, err := protocol.NewResponse(msg.ID, result)
	if err != nil {
		s.logger.Error("handler result not encodable",
			slog.String("method", msg.Method), slog.Any("error", err))
		s.tr.Send(protocol.NewErrorResponse(msg.ID, protocol.CodeInternalError, err.Error()))
		return
	}
	s.tr.Send(resp)
}

// safeCall guards against panicking handlers.
func (s *Server) safeCall(fn Handler, msg *protocol.Message) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(s.ctx, msg.Params)
}
