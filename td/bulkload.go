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
	"net/http"
	"net/url"
	"time"
)

// BulkLoadSessionStartRequest configures one run of a data connector bulk
// load session.
type BulkLoadSessionStartRequest struct {
	// ScheduledTime is the logical time of the run. The zero value lets the
	// server use the current time.
	ScheduledTime time.Time
}

func (r BulkLoadSessionStartRequest) MarshalJSON() ([]byte, error) {
	var raw struct {
		ScheduledTime int64 `json:"scheduled_time,omitempty"`
	}
	if !r.ScheduledTime.IsZero() {
		raw.ScheduledTime = r.ScheduledTime.Unix()
	}
	return json.Marshal(raw)
}

// BulkLoadSessionStartResult identifies the job started for a bulk load run.
type BulkLoadSessionStartResult struct {
	JobID string `json:"job_id"`
}

// StartBulkLoadSession starts a run of the named bulk load session. Starting
// a run is not idempotent.
func (c *Client) StartBulkLoadSession(ctx context.Context, name string, req BulkLoadSessionStartRequest, opts ...CallOption) (*BulkLoadSessionStartResult, error) {
	const op = "td.bulk_loads.start"
	resource := "bulk_load:" + name
	if name == "" {
		return nil, validationError(op, resource, "session name is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var res BulkLoadSessionStartResult
	err = c.call(ctx, &request{
		op:          op,
		resource:    resource,
		method:      http.MethodPost,
		path:        "/v3/bulk_loads/" + url.PathEscape(name) + "/jobs",
		body:        BytesPart(body).Open,
		contentType: "application/json",
	}, &res, opts...)
	if err != nil {
		return nil, err
	}
	if res.JobID == "" {
		return nil, malformedResponse(op, resource, errMissingField("job_id"))
	}
	return &res, nil
}
