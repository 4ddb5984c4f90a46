// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package controlapi

import (
	"context"

	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// callResult is what one engine.Callback invocation produces.
type callResult struct {
	Code   dnaerr.Code
	Result interface{}
}

// submitFn mirrors the shape of every Engine public method: submit params,
// get a request id back, and eventually receive a Callback invocation. The
// control API has no concept of a long-lived client connection watching
// request ids (unlike a native SDK binding), so every HTTP handler bridges
// the callback back to a synchronous response with await.
type submitFn func(cb func(requestID uint64, code dnaerr.Code, result interface{}, userData interface{}), userData interface{}) uint64

// await submits via submit and blocks until its Callback fires or ctx is
// done, whichever comes first.
func await(ctx context.Context, submit submitFn) (callResult, error) {
	done := make(chan callResult, 1)
	submit(func(requestID uint64, code dnaerr.Code, result interface{}, userData interface{}) {
		done <- callResult{Code: code, Result: result}
	}, nil)

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return callResult{}, ctx.Err()
	}
}
