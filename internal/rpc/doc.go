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

// Package rpc implements the endpoints bound to a transport: a Server that
// dispatches inbound requests to registered method handlers and pushes
// notifications, and a Client that issues correlated calls with timeouts
// and fans out pushed notifications to subscribers.
//
// Responses may be observed out of order relative to requests; correlation
// relies solely on the envelope id, never on arrival order.
package rpc
