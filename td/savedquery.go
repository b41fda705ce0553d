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
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/treasure-data/td-client-go/internal/optional"
)

// SavedQuery is a query stored on the server, optionally run on a cron
// schedule.
type SavedQuery struct {
	Name       string
	Cron       string
	Type       JobType
	Query      string
	Database   string
	Timezone   string
	Delay      int64
	Result     string
	Priority   Priority
	RetryLimit int
	UserName   string
	NextTime   time.Time
	CreatedAt  time.Time
}

type savedQueryJSON struct {
	Name       string `json:"name"`
	Cron       string `json:"cron"`
	Type       string `json:"type"`
	Query      string `json:"query"`
	Database   string `json:"database"`
	Timezone   string `json:"timezone"`
	Delay      int64  `json:"delay"`
	Result     string `json:"result"`
	Priority   int    `json:"priority"`
	RetryLimit int    `json:"retry_limit"`
	UserName   string `json:"user_name"`
	NextTime   tdTime `json:"next_time"`
	CreatedAt  tdTime `json:"created_at"`
}

func (q *savedQueryJSON) toSavedQuery() *SavedQuery {
	return &SavedQuery{
		Name:       q.Name,
		Cron:       q.Cron,
		Type:       parseJobType(q.Type),
		Query:      q.Query,
		Database:   q.Database,
		Timezone:   q.Timezone,
		Delay:      q.Delay,
		Result:     q.Result,
		Priority:   Priority(q.Priority),
		RetryLimit: q.RetryLimit,
		UserName:   q.UserName,
		NextTime:   time.Time(q.NextTime),
		CreatedAt:  time.Time(q.CreatedAt),
	}
}

// SaveQueryRequest describes a new saved query. An empty Cron saves the
// query without a schedule.
type SaveQueryRequest struct {
	Name       string
	Cron       string
	Type       JobType
	Query      string
	Database   string
	Timezone   string
	Delay      int64
	Result     string
	Priority   Priority
	RetryLimit int
}

func (r *SaveQueryRequest) form() url.Values {
	f := url.Values{
		"type":     {string(r.Type)},
		"query":    {r.Query},
		"database": {r.Database},
		"cron":     {r.Cron},
	}
	if r.Timezone != "" {
		f.Set("timezone", r.Timezone)
	}
	if r.Delay != 0 {
		f.Set("delay", strconv.FormatInt(r.Delay, 10))
	}
	if r.Result != "" {
		f.Set("result", r.Result)
	}
	if r.Priority != Normal {
		f.Set("priority", strconv.Itoa(int(r.Priority)))
	}
	if r.RetryLimit > 0 {
		f.Set("retry_limit", strconv.Itoa(r.RetryLimit))
	}
	return f
}

// SavedQueryToUpdate lists the fields to change. Only non-nil fields are
// sent.
type SavedQueryToUpdate struct {
	Cron       optional.String
	Type       optional.String
	Query      optional.String
	Database   optional.String
	Timezone   optional.String
	Delay      optional.Int
	Result     optional.String
	Priority   optional.Int
	RetryLimit optional.Int
}

func (u *SavedQueryToUpdate) form() url.Values {
	f := url.Values{}
	for _, s := range []struct {
		key string
		v   optional.String
	}{
		{"cron", u.Cron},
		{"type", u.Type},
		{"query", u.Query},
		{"database", u.Database},
		{"timezone", u.Timezone},
		{"result", u.Result},
	} {
		if s.v != nil {
			f.Set(s.key, optional.ToString(s.v))
		}
	}
	for _, i := range []struct {
		key string
		v   optional.Int
	}{
		{"delay", u.Delay},
		{"priority", u.Priority},
		{"retry_limit", u.RetryLimit},
	} {
		if i.v != nil {
			f.Set(i.key, strconv.Itoa(optional.ToInt(i.v)))
		}
	}
	return f
}

func savedQueryResource(name string) string { return "saved_query:" + name }

func schedulePath(action string, parts ...string) string {
	p := "/v3/schedule/" + action
	for _, s := range parts {
		p += "/" + url.PathEscape(s)
	}
	return p
}

// ListSavedQueries lists every saved query.
func (c *Client) ListSavedQueries(ctx context.Context) ([]*SavedQuery, error) {
	var res struct {
		Schedules []savedQueryJSON `json:"schedules"`
	}
	err := c.call(ctx, &request{
		op:         "td.saved_queries.list",
		method:     http.MethodGet,
		path:       schedulePath("list"),
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	qs := make([]*SavedQuery, 0, len(res.Schedules))
	for i := range res.Schedules {
		qs = append(qs, res.Schedules[i].toSavedQuery())
	}
	return qs, nil
}

// SaveQuery stores a new query.
func (c *Client) SaveQuery(ctx context.Context, r SaveQueryRequest, opts ...CallOption) (*SavedQuery, error) {
	const op = "td.saved_queries.create"
	resource := savedQueryResource(r.Name)
	switch {
	case r.Name == "":
		return nil, validationError(op, resource, "name is required")
	case r.Query == "" || r.Database == "":
		return nil, validationError(op, resource, "query and database are required")
	case r.Type == "" || r.Type == UnknownJob:
		return nil, validationError(op, resource, "job type is required")
	case !r.Priority.valid():
		return nil, validationError(op, resource, "priority %d is out of range", r.Priority)
	}
	var res savedQueryJSON
	err := c.call(ctx, &request{
		op:       op,
		resource: resource,
		method:   http.MethodPost,
		path:     schedulePath("create", r.Name),
		form:     r.form(),
	}, &res, opts...)
	if err != nil {
		return nil, err
	}
	if res.Name == "" {
		res.Name = r.Name
	}
	return res.toSavedQuery(), nil
}

// UpdateSavedQuery changes the fields of u that are set. Applying the same
// update twice has the same result, so the call is retried freely.
func (c *Client) UpdateSavedQuery(ctx context.Context, name string, u SavedQueryToUpdate) (*SavedQuery, error) {
	var res savedQueryJSON
	err := c.call(ctx, &request{
		op:         "td.saved_queries.update",
		resource:   savedQueryResource(name),
		method:     http.MethodPost,
		path:       schedulePath("update", name),
		form:       u.form(),
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Name == "" {
		res.Name = name
	}
	return res.toSavedQuery(), nil
}

// DeleteSavedQuery deletes a saved query and returns its last record.
func (c *Client) DeleteSavedQuery(ctx context.Context, name string, opts ...CallOption) (*SavedQuery, error) {
	var res savedQueryJSON
	err := c.call(ctx, &request{
		op:       "td.saved_queries.delete",
		resource: savedQueryResource(name),
		method:   http.MethodPost,
		path:     schedulePath("delete", name),
	}, &res, opts...)
	if err != nil {
		return nil, err
	}
	return res.toSavedQuery(), nil
}

// StartSavedQuery runs a saved query for the given scheduled time and returns
// the ID of the job started.
func (c *Client) StartSavedQuery(ctx context.Context, name string, scheduledTime time.Time, opts ...CallOption) (string, error) {
	const op = "td.saved_queries.start"
	var res struct {
		Jobs []struct {
			JobID string `json:"job_id"`
		} `json:"jobs"`
	}
	err := c.call(ctx, &request{
		op:       op,
		resource: savedQueryResource(name),
		method:   http.MethodPost,
		path:     schedulePath("run", name, strconv.FormatInt(scheduledTime.Unix(), 10)),
		form:     url.Values{"num": {"1"}},
	}, &res, opts...)
	if err != nil {
		return "", err
	}
	if len(res.Jobs) == 0 || res.Jobs[0].JobID == "" {
		return "", malformedResponse(op, savedQueryResource(name), errMissingField("jobs"))
	}
	return res.Jobs[0].JobID, nil
}
