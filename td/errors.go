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

package td

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrClientClosed is returned by every operation on a Client after it, or the
// Client it was derived from, has been closed.
var ErrClientClosed = errors.New("td: client is closed")

// ErrorKind classifies a failed operation.
type ErrorKind int

const (
	// KindUnknown is a failure that does not fit another kind, such as an
	// unclassified HTTP status. It is never retried.
	KindUnknown ErrorKind = iota
	// KindTransport is a connect, DNS, timeout or reset failure.
	KindTransport
	// KindAuth is an HTTP 401 or 403 response.
	KindAuth
	// KindNotFound is an HTTP 404 response.
	KindNotFound
	// KindValidation is an HTTP 400, 409 or 422 response, or a request that
	// was rejected client-side before being sent.
	KindValidation
	// KindServer is an HTTP 5xx response.
	KindServer
	// KindRateLimited is an HTTP 429 response.
	KindRateLimited
	// KindMalformedResponse is a successful response whose body could not be
	// decoded.
	KindMalformedResponse
)

var kindNames = map[ErrorKind]string{
	KindUnknown:           "unknown",
	KindTransport:         "transport",
	KindAuth:              "auth",
	KindNotFound:          "not_found",
	KindValidation:        "validation",
	KindServer:            "server",
	KindRateLimited:       "rate_limited",
	KindMalformedResponse: "malformed_response",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a classified failure of a single attempt or of a client-side
// validation step.
type Error struct {
	// Kind is the classification of the failure.
	Kind ErrorKind
	// Op names the logical operation, for example "td.jobs.submit".
	Op string
	// Resource identifies the entity the operation acted on, for example
	// "database:sample_db". It may be empty.
	Resource string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Message is the server- or client-supplied description.
	Message string
	// RetryAfter is the server-suggested wait carried by a 429 response.
	RetryAfter time.Duration
	// Conflict reports an HTTP 409 "already exists" response.
	Conflict bool
	// Err is the underlying cause: a transport error or a *googleapi.Error
	// holding the raw response.
	Err error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("td: ")
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Resource != "" {
		sb.WriteString(e.Resource)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned when a retryable failure persisted for
// every attempt the retry limit allows.
type RetriesExhaustedError struct {
	Op       string
	Resource string
	// Attempts is the total number of requests sent, including the first.
	Attempts int
	// Errors holds the classified failure of every attempt, oldest first.
	Errors []error
}

func (e *RetriesExhaustedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "td: %s: retries exhausted after %d attempts", e.Op, e.Attempts)
	if e.Resource != "" {
		fmt.Fprintf(&sb, " on %s", e.Resource)
	}
	if last := e.Unwrap(); last != nil {
		fmt.Fprintf(&sb, "; last error: %v", last)
	}
	return sb.String()
}

// Unwrap returns the most recent attempt's error.
func (e *RetriesExhaustedError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// AmbiguousOutcomeError is returned when a non-idempotent request failed in a
// way that leaves its server-side effect unknown. The request was not resent.
type AmbiguousOutcomeError struct {
	Op       string
	Resource string
	// Err is the classified failure that made the outcome unknown.
	Err error
}

func (e *AmbiguousOutcomeError) Error() string {
	return fmt.Sprintf("td: %s: outcome unknown for non-idempotent request on %s; not resent: %v", e.Op, e.Resource, e.Err)
}

func (e *AmbiguousOutcomeError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the classified error wrapped by err. Exhausted
// and ambiguous errors report the kind of their last cause. It returns
// KindUnknown if err carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err was caused by a missing resource.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsConflict reports whether err was caused by a resource that already exists.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Conflict
}

// IsRetryable reports whether err is a classified failure the client would
// resend: a transport failure, a 429, or a 500, 502, 503 or 504 response.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindTransport, KindRateLimited:
		return true
	case KindServer:
		for _, c := range retry5xxCodes {
			if e.StatusCode == c {
				return true
			}
		}
	}
	return false
}

// IsRetriesExhausted reports whether err is a RetriesExhaustedError.
func IsRetriesExhausted(err error) bool {
	var e *RetriesExhaustedError
	return errors.As(err, &e)
}

// IsAmbiguous reports whether err is an AmbiguousOutcomeError.
func IsAmbiguous(err error) bool {
	var e *AmbiguousOutcomeError
	return errors.As(err, &e)
}

func validationError(op, resource, format string, args ...interface{}) *Error {
	return &Error{
		Kind:     KindValidation,
		Op:       op,
		Resource: resource,
		Message:  fmt.Sprintf(format, args...),
	}
}
