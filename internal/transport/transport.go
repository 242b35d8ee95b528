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

// Package transport provides the bidirectional channel abstraction that
// carries protocol envelopes between two participants. All transports are
// local-process channels: a linked in-process pair, a parent-side wrapper
// around a child's stdio pipes, and the child-side counterpart.
package transport

import "github.com/taskwire/taskwire/internal/protocol"

// Handler receives inbound envelopes.
type Handler func(*protocol.Message)

// Transport is a bidirectional envelope channel.
//
// Send never returns an error: when the underlying channel is not connected
// (peer closed, subprocess exited) it degrades to a silent no-op. There is
// no buffering and no retry. Close detaches all handlers and marks the
// transport inert; subsequent Send calls remain no-ops.
type Transport interface {
	// Send transmits one envelope to the peer.
	Send(msg *protocol.Message)

	// OnMessage registers a handler for inbound envelopes. Multiple
	// handlers may be registered; all are invoked in registration order.
	OnMessage(fn Handler)

	// Close marks the transport inert and detaches all handlers.
	Close()
}
