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
	"fmt"

	"github.com/taskwire/taskwire/internal/protocol"
)

// Typed adapts a function with compile-time typed parameter and result
// pairs into a wire Handler. The method name still arrives as a string over
// the channel, so the runtime registry keys stay strings; Typed keeps the
// handler bodies type-checked. Malformed params become an invalid-params
// error response.
func Typed[P any, R any](fn func(ctx context.Context, params P) (R, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, protocol.NewError(protocol.CodeInvalidParams,
					fmt.Sprintf("invalid params: %v", err))
			}
		}
		return fn(ctx, params)
	}
}

// CallTyped issues a client call and unmarshals the result into R.
func CallTyped[R any](ctx context.Context, c *Client, method string, params any) (R, error) {
	var result R
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return result, err
	}
	if len(raw) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s result: %w", method, err)
	}
	return result, nil
}
