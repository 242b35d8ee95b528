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

// DefaultCallTimeout bounds a call when the client config does not set one.
const DefaultCallTimeout = 30 * time.Second

// ErrClientClosed rejects calls that were still pending when the client
// shut down, and any call issued afterwards.
var ErrClientClosed = errors.New("rpc: client closed")

// NotificationHandler receives the params of one pushed notification.
type NotificationHandler func(params json.RawMessage)

// ClientConfig configures a client.
type ClientConfig struct {
	// CallTimeout bounds every call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration

	// Logger for client events. Nil means slog.Default().
	Logger *slog.Logger
}

// settlement is the single outcome of a pending call.
type settlement struct {
	result json.RawMessage
	err    error
}

// pendingCall tracks one outstanding request from issuance until a matching
// response arrives, the timer fires, or the client closes.
type pendingCall struct {
	method string
	done   chan settlement // buffered; receives exactly one settlement
	timer  *time.Timer
}

// Client binds to a transport, issues correlated requests and fans out
// pushed notifications to subscribers. Ids are allocated from a monotonic
// counter and never reused while outstanding.
type Client struct {
	tr      transport.Transport
	timeout time.Duration
	logger  *slog.Logger

	mu            sync.Mutex
	nextID        uint64
	pending       map[string]*pendingCall
	notifications map[string][]NotificationHandler
	closed        bool
}

// NewClient creates a client bound to the transport.
func NewClient(tr transport.Transport, cfg ClientConfig) *Client {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		tr:            tr,
		timeout:       timeout,
		logger:        logger.With(slog.String("component", "rpc-client")),
		pending:       make(map[string]*pendingCall),
		notifications: make(map[string][]NotificationHandler),
	}
	tr.OnMessage(c.handleMessage)
	return c
}

// Call sends a request and blocks until the matching response arrives, the
// per-client timeout fires, or ctx is done. Every call settles exactly
// once; its pending entry is removed on settlement.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.nextID++
	id := protocol.NumericID(c.nextID)
	key := string(id)

	pc := &pendingCall{
		method: method,
		done:   make(chan settlement, 1),
	}
	pc.timer = time.AfterFunc(c.timeout, func() {
		c.settle(key, settlement{err: fmt.Errorf("rpc: call %q timed out after %s", method, c.timeout)})
	})
	c.pending[key] = pc
	c.mu.Unlock()

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		c.settle(key, settlement{err: err})
		st := <-pc.done
		return nil, st.err
	}
	c.tr.Send(req)

	select {
	case st := <-pc.done:
		return st.result, st.err
	case <-ctx.Done():
		c.settle(key, settlement{err: ctx.Err()})
		st := <-pc.done
		return st.result, st.err
	}
}

// OnNotification subscribes to a notification name. Handlers for the same
// name are all invoked in registration order; notifications with no
// subscriber are silently dropped.
func (c *Client) OnNotification(name string, fn NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.notifications[name] = append(c.notifications[name], fn)
}

// Close rejects every still-pending call, stops their timers, clears the
// notification subscriber lists and closes the transport. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	c.notifications = make(map[string][]NotificationHandler)
	c.mu.Unlock()

	for _, pc := range pending {
		pc.timer.Stop()
		pc.done <- settlement{err: ErrClientClosed}
	}
	c.tr.Close()
}

// settle resolves the pending call for key at most once; later settlements
// for the same key are dropped.
func (c *Client) settle(key string, st settlement) {
	c.mu.Lock()
	pc, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	pc.timer.Stop()
	pc.done <- st
}

func (c *Client) handleMessage(msg *protocol.Message) {
	switch {
	case msg.IsResponse():
		c.handleResponse(msg)
	case msg.IsNotification():
		c.handleNotification(msg)
	}
}

func (c *Client) handleResponse(msg *protocol.Message) {
	key := string(msg.ID)

	c.mu.Lock()
	_, ok := c.pending[key]
	c.mu.Unlock()
	if !ok {
		// Already timed out, or stale; dropped harmlessly.
		c.logger.Debug("dropping unmatched response", slog.String("id", key))
		return
	}

	if msg.Error != nil {
		code := msg.Error.Code
		if code == 0 {
			code = protocol.CodeInternalError
		}
		c.settle(key, settlement{err: protocol.NewError(code, msg.Error.Message)})
		return
	}
	c.settle(key, settlement{result: msg.Result})
}

func (c *Client) handleNotification(msg *protocol.Message) {
	c.mu.Lock()
	handlers := make([]NotificationHandler, len(c.notifications[msg.Method]))
	copy(handlers, c.notifications[msg.Method])
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(msg.Params)
	}
}
