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

package transport

import (
	"sync"

	"github.com/taskwire/taskwire/internal/protocol"
)

// Pair is one end of a linked in-process transport. Send on one end
// synchronously invokes every handler registered on the other end, in
// registration order, with no serialization.
type Pair struct {
	mu       sync.Mutex
	peer     *Pair
	handlers []Handler
	closed   bool
}

// NewPair creates two linked transport ends.
func NewPair() (*Pair, *Pair) {
	a := &Pair{}
	b := &Pair{}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers the envelope synchronously to the peer's handlers. A closed
// pair drops the message.
func (p *Pair) Send(msg *protocol.Message) {
	p.mu.Lock()
	closed := p.closed
	peer := p.peer
	p.mu.Unlock()
	if closed || peer == nil {
		return
	}

	peer.mu.Lock()
	peerClosed := peer.closed
	handlers := make([]Handler, len(peer.handlers))
	copy(handlers, peer.handlers)
	peer.mu.Unlock()
	if peerClosed {
		return
	}

	// Handlers run outside the lock so they may Send back through the
	// pair without deadlocking.
	for _, fn := range handlers {
		fn(msg)
	}
}

// OnMessage registers a handler for envelopes sent from the peer.
func (p *Pair) OnMessage(fn Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.handlers = append(p.handlers, fn)
}

// Close marks this end inert and detaches its handlers. The peer end
// keeps its own state; its sends become no-ops.
func (p *Pair) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.handlers = nil
}
