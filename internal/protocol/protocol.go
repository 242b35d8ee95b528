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

// Package protocol defines the JSON-RPC 2.0 envelope shapes and error codes
// shared by every participant of the daemon channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Version is the fixed protocol-version marker carried by every envelope.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined error codes (-32000..-32099 range).
const (
	CodeTaskNotFound   = -32000
	CodeNoProvider     = -32001
	CodeDaemonNotReady = -32002
)

// ErrInvalidMessage is returned when an envelope cannot be parsed.
var ErrInvalidMessage = errors.New("protocol: invalid message")

// Message is one envelope on the wire. The same shape carries requests,
// responses and notifications; the three are discriminated by which fields
// are present:
//
//   - Request: has both ID and Method
//   - Response: has ID and no Method
//   - Notification: has Method and no ID
type Message struct {
	JSONRPC string `json:"jsonrpc"`

	// ID is the caller-chosen correlation id, a JSON string or integer.
	// Kept raw so the exact representation round-trips.
	ID json.RawMessage `json:"id,omitempty"`

	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is the structured error member of a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError creates an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// IsRequest reports whether the message is a request.
func (m *Message) IsRequest() bool {
	return len(m.ID) > 0 && m.Method != ""
}

// IsResponse reports whether the message is a response.
func (m *Message) IsResponse() bool {
	return len(m.ID) > 0 && m.Method == ""
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0 && m.Method != ""
}

// NumericID builds a raw integer id from a client counter value.
func NumericID(n uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(n, 10))
}

// NewRequest creates a request envelope.
func NewRequest(id json.RawMessage, method string, params any) (*Message, error) {
	paramsJSON, err := marshalField(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NewNotification creates a notification envelope.
func NewNotification(method string, params any) (*Message, error) {
	paramsJSON, err := marshalField(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsJSON,
	}, nil
}

// NewResponse creates a success response for the given request id.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	resultJSON, err := marshalField(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates an error response for the given request id.
func NewErrorResponse(id json.RawMessage, code int, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// UnmarshalParams unmarshals the params field into v. A missing params
// field leaves v untouched.
func (m *Message) UnmarshalParams(v any) error {
	if len(m.Params) == 0 {
		return nil
	}
	return json.Unmarshal(m.Params, v)
}

// UnmarshalResult unmarshals the result field into v. A missing result
// field leaves v untouched.
func (m *Message) UnmarshalResult(v any) error {
	if len(m.Result) == 0 {
		return nil
	}
	return json.Unmarshal(m.Result, v)
}

// Parse decodes a single envelope from JSON.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

func marshalField(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
