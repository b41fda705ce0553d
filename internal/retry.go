// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package internal holds helpers shared by the td package that are not part
// of its public surface.
package internal

import (
	"context"
	"fmt"
	"time"

	gax "github.com/googleapis/gax-go/v2"
)

// Pauser yields the wait before the next iteration of a polling loop.
// *gax.Backoff satisfies it.
type Pauser interface {
	Pause() time.Duration
}

// Poll calls f repeatedly, pausing between calls as directed by p, until
// f reports stop or the context is done.
//
// When f's first return value is true, Poll returns f's second return value.
// When the context is done while pausing, Poll returns an error that matches
// both ctx.Err() and the last non-nil error reported by f.
func Poll(ctx context.Context, p Pauser, f func() (stop bool, err error)) error {
	return poll(ctx, p, f, gax.Sleep)
}

func poll(ctx context.Context, p Pauser, f func() (stop bool, err error),
	sleep func(context.Context, time.Duration) error) error {
	var lastErr error
	for {
		stop, err := f()
		if stop {
			return err
		}
		if err != nil {
			lastErr = err
		}
		if ctxErr := sleep(ctx, p.Pause()); ctxErr != nil {
			return WrapCtxErr(ctxErr, lastErr)
		}
	}
}

// WrapCtxErr combines a context error with the last error observed before the
// context ended. The result satisfies errors.Is for the context sentinel and
// errors.As/errors.Is for the wrapped error. A nil lastErr returns ctxErr.
func WrapCtxErr(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return wrappedCallErr{ctxErr: ctxErr, wrappedErr: lastErr}
}

// Use this error type to return an error which allows introspection of both
// the context error and the error from the service.
type wrappedCallErr struct {
	ctxErr     error
	wrappedErr error
}

func (e wrappedCallErr) Error() string {
	return fmt.Sprintf("retry failed with %v; last error: %v", e.ctxErr, e.wrappedErr)
}

func (e wrappedCallErr) Unwrap() error {
	return e.wrappedErr
}

// Is allows errors.Is to match the error from the call as well as context
// sentinel errors.
func (e wrappedCallErr) Is(err error) bool {
	return e.ctxErr == err || e.wrappedErr == err
}
