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
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/taskwire/taskwire/internal/protocol"
)

// envelope wraps a protocol message before it is placed on a shared stream.
// The tag keeps daemon traffic from colliding with anything else written to
// the same channel; both ends decode only tagged lines and ignore the rest.
type envelope struct {
	Daemon  bool              `json:"__daemon"`
	Payload *protocol.Message `json:"payload"`
}

// Stream carries tagged envelopes as newline-delimited JSON over a pipe
// pair. The parent side wraps a child's stdin/stdout; the child side wraps
// its own stdio. A single read goroutine preserves delivery order.
type Stream struct {
	w      io.Writer
	r      io.Reader
	closer io.Closer // optional; closed with the transport
	logger *slog.Logger

	mu       sync.Mutex
	handlers []Handler
	closed   bool
	started  bool

	done chan struct{}
}

// NewChildProcess returns the parent-side transport over a spawned child's
// pipes. Closing the transport closes the child's stdin.
func NewChildProcess(stdin io.WriteCloser, stdout io.Reader, logger *slog.Logger) *Stream {
	return newStream(stdin, stdout, stdin, logger)
}

// NewStdio returns the child-side transport over the process's own
// stdin/stdout. The process streams are left open on Close.
func NewStdio(logger *slog.Logger) *Stream {
	return newStream(os.Stdout, os.Stdin, nil, logger)
}

func newStream(w io.Writer, r io.Reader, closer io.Closer, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		w:      w,
		r:      r,
		closer: closer,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Send writes one tagged envelope. Write failures (peer exited, pipe
// closed) are dropped silently per the transport contract.
func (s *Stream) Send(msg *protocol.Message) {
	data, err := json.Marshal(envelope{Daemon: true, Payload: msg})
	if err != nil {
		s.logger.Debug("dropping unencodable envelope", slog.Any("error", err))
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, err := s.w.Write(data); err != nil {
		s.logger.Debug("transport send dropped", slog.Any("error", err))
	}
}

// OnMessage registers a handler for inbound envelopes. The read loop
// starts on the first registration, so anything written before someone is
// listening sits in the pipe rather than being dropped.
func (s *Stream) OnMessage(fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers = append(s.handlers, fn)
	if !s.started {
		s.started = true
		go s.readLoop(s.r)
	}
}

// Close marks the transport inert, detaches handlers and closes the owned
// end of the pipe, if any.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.handlers = nil
	closer := s.closer
	s.mu.Unlock()

	if closer != nil {
		_ = closer.Close()
	}
}

// Done is closed once the read side of the channel has ended, which for the
// parent side means the subprocess went away.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) readLoop(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			// Unrelated channel traffic; not ours to interpret.
			continue
		}
		if !env.Daemon || env.Payload == nil {
			continue
		}

		s.mu.Lock()
		handlers := make([]Handler, len(s.handlers))
		copy(handlers, s.handlers)
		s.mu.Unlock()

		for _, fn := range handlers {
			fn(env.Payload)
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("transport read ended", slog.Any("error", err))
	}
}
