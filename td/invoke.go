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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/treasure-data/td-client-go/internal"
	"github.com/treasure-data/td-client-go/internal/trace"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
)

// request describes one logical API call.
type request struct {
	op       string
	resource string
	method   string
	path     string
	query    url.Values

	// form is sent as an application/x-www-form-urlencoded body.
	form url.Values
	// body opens the request payload. It is called once per attempt so that
	// every retry streams the payload from its source.
	body        func() (io.ReadCloser, int64, error)
	contentType string
	header      http.Header

	// idempotent reports whether resending the request after an unknown
	// outcome is safe.
	idempotent bool
}

// CallOption modifies a single call.
type CallOption interface {
	applyCallOption(*callSettings)
}

type callSettings struct {
	atLeastOnce bool
}

type atLeastOnce struct{}

func (atLeastOnce) applyCallOption(s *callSettings) { s.atLeastOnce = true }

// AtLeastOnce allows a non-idempotent call to be resent after a failure whose
// server-side effect is unknown. The operation may then be applied more than
// once.
func AtLeastOnce() CallOption { return atLeastOnce{} }

// execute sends req, retrying retryable failures with backoff, and returns the
// first 2xx response. The caller owns the response body.
func (c *Client) execute(ctx context.Context, req *request, opts ...CallOption) (_ *http.Response, err error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var cs callSettings
	for _, o := range opts {
		o.applyCallOption(&cs)
	}

	ctx = trace.StartSpan(ctx, req.op,
		attribute.String("td.resource", req.resource),
		attribute.String("http.method", req.method),
		attribute.Bool("td.idempotent", req.idempotent))
	defer func() {
		trace.EndSpan(ctx, err)
		c.metrics.observeOutcome(req.op, err)
	}()

	var errs []error
	for attempt := 0; ; attempt++ {
		resp, e, retryable, unsent := c.attempt(ctx, req)
		if e == nil {
			return resp, nil
		}
		errs = append(errs, e)
		ambiguous := !req.idempotent && !cs.atLeastOnce && !unsent
		if ctxErr := ctx.Err(); ctxErr != nil {
			if ambiguous && e.Kind == KindTransport {
				return nil, internal.WrapCtxErr(ctxErr, &AmbiguousOutcomeError{Op: req.op, Resource: req.resource, Err: e})
			}
			return nil, internal.WrapCtxErr(ctxErr, e)
		}
		if !retryable {
			return nil, e
		}
		if ambiguous {
			return nil, &AmbiguousOutcomeError{Op: req.op, Resource: req.resource, Err: e}
		}
		if attempt >= c.cfg.RetryLimit {
			return nil, &RetriesExhaustedError{
				Op:       req.op,
				Resource: req.resource,
				Attempts: attempt + 1,
				Errors:   errs,
			}
		}
		pause := c.backoff.pause(attempt)
		if e.RetryAfter > 0 {
			pause = e.RetryAfter
		}
		c.metrics.observeRetry(req.op, e.Kind)
		trace.TracePrintf(ctx, map[string]interface{}{"td.kind": e.Kind.String(), "td.status": e.StatusCode},
			"retrying attempt %d", attempt+1)
		c.logger.WarnContext(ctx, "td: retrying request",
			"op", req.op, "resource", req.resource, "attempt", attempt+1, "pause", pause, "error", e)
		if err := c.sleep(ctx, pause); err != nil {
			return nil, internal.WrapCtxErr(err, e)
		}
	}
}

// attempt sends req once. On failure it returns the classified error, the
// retry verdict and whether the request provably never reached the server.
// Any failed response body is drained and closed before attempt returns.
func (c *Client) attempt(ctx context.Context, req *request) (_ *http.Response, _ *Error, retryable, unsent bool) {
	hreq, logBody, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Op: req.op, Resource: req.resource, Message: "cannot build request", Err: err}, false, true
	}
	c.logger.DebugContext(ctx, "td request", "request", internallog.HTTPRequest(hreq, logBody))

	start := time.Now()
	resp, err := c.hc.Do(hreq)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.observeAttempt(req.op, 0, elapsed)
		e, unsent := classifyTransport(req.op, req.resource, err)
		return nil, e, true, unsent
	}
	c.metrics.observeAttempt(req.op, resp.StatusCode, elapsed)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.DebugContext(ctx, "td response", "response", internallog.HTTPResponse(resp, nil))
		return resp, nil, false, false
	}

	e, retryable := classifyResponse(req.op, req.resource, resp)
	var body []byte
	var apiErr *googleapi.Error
	if errors.As(e.Err, &apiErr) {
		body = []byte(apiErr.Body)
	}
	c.logger.DebugContext(ctx, "td response", "response", internallog.HTTPResponse(resp, body))
	drainAndClose(resp.Body)
	return nil, e, retryable, retryable && rejectedBeforeProcessing(e)
}

func (c *Client) newHTTPRequest(ctx context.Context, req *request) (*http.Request, []byte, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	var (
		body        io.Reader
		logBody     []byte
		length      int64 = -1
		contentType       = req.contentType
	)
	switch {
	case req.form != nil:
		enc := req.form.Encode()
		body = strings.NewReader(enc)
		length = int64(len(enc))
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		logBody = []byte(redactedForm(req.form))
	case req.body != nil:
		rc, n, err := req.body()
		if err != nil {
			return nil, nil, err
		}
		body, length = rc, n
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		if rc, ok := body.(io.Closer); ok {
			rc.Close()
		}
		return nil, nil, err
	}
	if length >= 0 {
		hreq.ContentLength = length
	}
	for k, vs := range req.header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("User-Agent", userAgent())
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	return hreq, logBody, nil
}

// call executes req and decodes the JSON response into v. A nil v discards
// the body.
func (c *Client) call(ctx context.Context, req *request, v interface{}, opts ...CallOption) error {
	resp, err := c.execute(ctx, req, opts...)
	if err != nil {
		return err
	}
	return decodeJSON(req.op, req.resource, resp, v)
}

// decodeJSON decodes and always closes resp.Body. A body that is not valid
// JSON for v is a KindMalformedResponse error.
func decodeJSON(op, resource string, resp *http.Response, v interface{}) error {
	defer drainAndClose(resp.Body)
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return malformedResponse(op, resource, err)
	}
	return nil
}

// secretFields are form fields never written to logs.
var secretFields = []string{"password", "secret_access_key"}

func redactedForm(f url.Values) string {
	redact := false
	for _, k := range secretFields {
		if f.Has(k) {
			redact = true
		}
	}
	if !redact {
		return f.Encode()
	}
	c := make(url.Values, len(f))
	for k, v := range f {
		c[k] = v
	}
	for _, k := range secretFields {
		if c.Has(k) {
			c.Set(k, "REDACTED")
		}
	}
	return c.Encode()
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	io.Copy(io.Discard, body)
	body.Close()
}

func errMissingField(name string) error {
	return fmt.Errorf("response has no %q field", name)
}
