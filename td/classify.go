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
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"google.golang.org/api/googleapi"
)

var retry5xxCodes = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// classifyTransport classifies a failure returned by the HTTP client before
// any response was read. Transport failures are always retryable. The second
// result reports whether the request provably never reached the server.
func classifyTransport(op, resource string, err error) (e *Error, unsent bool) {
	return &Error{
		Kind:     KindTransport,
		Op:       op,
		Resource: resource,
		Err:      err,
	}, requestNotSent(err)
}

// requestNotSent reports failures that happen before a request is written:
// name resolution and connection establishment, directly or via a proxy.
func requestNotSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "proxyconnect"
	}
	return false
}

// classifyResponse classifies a non-2xx response. It consumes the response
// body but does not close it. The second result is the retry verdict.
func classifyResponse(op, resource string, resp *http.Response) (*Error, bool) {
	e := &Error{
		Op:         op,
		Resource:   resource,
		StatusCode: resp.StatusCode,
	}
	cause := googleapi.CheckResponse(resp)
	if cause == nil {
		// CheckResponse accepts every 2xx; callers only classify failures.
		cause = &googleapi.Error{Code: resp.StatusCode, Header: resp.Header}
	}
	e.Err = cause
	var apiErr *googleapi.Error
	if errors.As(cause, &apiErr) {
		e.Message = errorMessage([]byte(apiErr.Body))
		if e.Message == "" {
			e.Message = apiErr.Message
		}
	}

	retryable := false
	code := resp.StatusCode
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Kind = KindAuth
	case code == http.StatusNotFound:
		e.Kind = KindNotFound
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
	case code == http.StatusConflict:
		e.Kind = KindValidation
		e.Conflict = true
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		retryable = true
	case code >= 500 && code <= 599:
		e.Kind = KindServer
		for _, c := range retry5xxCodes {
			if code == c {
				retryable = true
			}
		}
	default:
		e.Kind = KindUnknown
	}
	return e, retryable
}

// rejectedBeforeProcessing reports responses that signal the server did not
// act on the request, so resending a non-idempotent request cannot duplicate
// its effect.
func rejectedBeforeProcessing(e *Error) bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// errorMessage extracts a human readable message from an error body. The API
// reports errors as {"error": "...", "message": "..."}; anything else is
// returned trimmed and truncated.
func errorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error", "error.message", "text"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
		return ""
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}

// parseRetryAfter interprets a Retry-After header given as delta-seconds or
// as an HTTP date. It returns 0 when the header is absent or unusable.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func malformedResponse(op, resource string, err error) *Error {
	return &Error{
		Kind:     KindMalformedResponse,
		Op:       op,
		Resource: resource,
		Message:  "cannot decode response body",
		Err:      err,
	}
}
