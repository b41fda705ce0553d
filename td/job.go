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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/treasure-data/td-client-go/internal"
)

// JobType is the engine that runs a job.
type JobType string

const (
	HiveJob              JobType = "hive"
	PigJob               JobType = "pig"
	ImpalaJob            JobType = "impala"
	PrestoJob            JobType = "presto"
	MapReduceJob         JobType = "mapred"
	BulkLoadJob          JobType = "bulkload"
	ExportJob            JobType = "export"
	PartialDeleteJobType JobType = "partial_delete"
	UnknownJob           JobType = "unknown"
)

func parseJobType(s string) JobType {
	switch t := JobType(s); t {
	case HiveJob, PigJob, ImpalaJob, PrestoJob, MapReduceJob, BulkLoadJob, ExportJob, PartialDeleteJobType:
		return t
	}
	return UnknownJob
}

// JobState is the server-observed state of a job.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobSuccess JobState = "success"
	JobError   JobState = "error"
	JobKilled  JobState = "killed"
)

func parseJobState(s string) JobState {
	if s == "booting" {
		return JobRunning
	}
	return JobState(s)
}

// Done reports whether the state is terminal. Error and Killed are terminal
// states, not failures of the call that observed them.
func (s JobState) Done() bool {
	return s == JobSuccess || s == JobError || s == JobKilled
}

// Priority orders queued jobs.
type Priority int

const (
	VeryLow  Priority = -2
	Low      Priority = -1
	Normal   Priority = 0
	High     Priority = 1
	VeryHigh Priority = 2
)

func (p Priority) valid() bool { return p >= VeryLow && p <= VeryHigh }

// JobRequest describes a query to submit.
type JobRequest struct {
	Database string
	Type     JobType
	Query    string
	Priority Priority
	// ResultOutput is an optional result export URL.
	ResultOutput string
	// RetryLimit is the number of times the server reruns a failed job.
	RetryLimit int
	PoolName   string
	// DomainKey is a client-chosen token that identifies the job. The server
	// rejects a second job with the same key, and Submit uses it to find a
	// job whose submission outcome was unknown.
	DomainKey string
}

// NewDomainKey returns a random domain key.
func NewDomainKey() string {
	return uuid.NewString()
}

// JobSummary is the status of a job.
type JobSummary struct {
	ID         string
	State      JobState
	CreatedAt  time.Time
	StartAt    time.Time
	EndAt      time.Time
	CPUTime    int64
	ResultSize int64
	Duration   int64
	NumRecords int64
}

// Job is the full record of a job.
type Job struct {
	JobSummary
	Type         JobType
	Database     string
	Query        string
	Priority     Priority
	RetryLimit   int
	ResultOutput string
	URL          string
	UserName     string
	DomainKey    string
	// ResultSchema is the schema of a finished query's result.
	ResultSchema Schema
	// Debug holds the job's command output and standard error, if any.
	Debug *JobDebug
}

type JobDebug struct {
	CmdOut string `json:"cmdout"`
	Stderr string `json:"stderr"`
}

// JobList is one page of jobs, newest first.
type JobList struct {
	Count int64
	From  int64
	To    int64
	Jobs  []*Job
}

type jobJSON struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Type         string          `json:"type"`
	Database     string          `json:"database"`
	Query        json.RawMessage `json:"query"`
	Priority     int             `json:"priority"`
	RetryLimit   int             `json:"retry_limit"`
	Result       string          `json:"result"`
	URL          string          `json:"url"`
	UserName     string          `json:"user_name"`
	DomainKey    string          `json:"domain_key"`
	CreatedAt    tdTime          `json:"created_at"`
	StartAt      tdTime          `json:"start_at"`
	EndAt        tdTime          `json:"end_at"`
	CPUTime      int64           `json:"cpu_time"`
	ResultSize   int64           `json:"result_size"`
	Duration     int64           `json:"duration"`
	NumRecords   int64           `json:"num_records"`
	ResultSchema string          `json:"hive_result_schema"`
	Debug        *JobDebug       `json:"debug"`
}

func (j *jobJSON) summary() JobSummary {
	return JobSummary{
		ID:         j.JobID,
		State:      parseJobState(j.Status),
		CreatedAt:  time.Time(j.CreatedAt),
		StartAt:    time.Time(j.StartAt),
		EndAt:      time.Time(j.EndAt),
		CPUTime:    j.CPUTime,
		ResultSize: j.ResultSize,
		Duration:   j.Duration,
		NumRecords: j.NumRecords,
	}
}

func (j *jobJSON) toJob() *Job {
	job := &Job{
		JobSummary:   j.summary(),
		Type:         parseJobType(j.Type),
		Database:     j.Database,
		Query:        rawQuery(j.Query),
		Priority:     Priority(j.Priority),
		RetryLimit:   j.RetryLimit,
		ResultOutput: j.Result,
		URL:          j.URL,
		UserName:     j.UserName,
		DomainKey:    j.DomainKey,
		Debug:        j.Debug,
	}
	// Result schemas are informational; one that cannot be read is dropped.
	if s, err := unmarshalSchema(j.ResultSchema); err == nil {
		job.ResultSchema = s
	}
	return job
}

// rawQuery returns a string query as is and any other JSON value, such as a
// bulk load configuration, as its JSON text.
func rawQuery(m json.RawMessage) string {
	if len(m) == 0 || string(m) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return string(m)
}

// tdTime reads the API's "2006-01-02 15:04:05 UTC" timestamps. Null and
// empty values are the zero time.
type tdTime time.Time

var tdTimeLayouts = []string{
	"2006-01-02 15:04:05 MST",
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
}

func (t *tdTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range tdTimeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			*t = tdTime(v)
			return nil
		}
	}
	return fmt.Errorf("td: cannot parse time %q", s)
}

func jobResource(id string) string { return "job:" + id }

// Submit issues a job and returns its ID. Submission is not idempotent: a
// failure that leaves the outcome unknown is not resent. When jr carries a
// DomainKey, Submit looks the job up by that key and returns its ID if the
// server did create it; otherwise the *AmbiguousOutcomeError is returned.
func (c *Client) Submit(ctx context.Context, jr JobRequest, opts ...CallOption) (string, error) {
	const op = "td.jobs.submit"
	resource := "database:" + jr.Database
	switch {
	case jr.Database == "":
		return "", validationError(op, resource, "database is required")
	case jr.Query == "":
		return "", validationError(op, resource, "query is required")
	case jr.Type == "" || jr.Type == UnknownJob:
		return "", validationError(op, resource, "job type is required")
	case !jr.Priority.valid():
		return "", validationError(op, resource, "priority %d is out of range", jr.Priority)
	}
	form := url.Values{"query": {jr.Query}}
	if jr.Priority != Normal {
		form.Set("priority", strconv.Itoa(int(jr.Priority)))
	}
	if jr.ResultOutput != "" {
		form.Set("result", jr.ResultOutput)
	}
	if jr.RetryLimit > 0 {
		form.Set("retry_limit", strconv.Itoa(jr.RetryLimit))
	}
	if jr.PoolName != "" {
		form.Set("pool_name", jr.PoolName)
	}
	if jr.DomainKey != "" {
		form.Set("domain_key", jr.DomainKey)
	}
	var res struct {
		JobID string `json:"job_id"`
	}
	err := c.call(ctx, &request{
		op:       op,
		resource: resource,
		method:   http.MethodPost,
		path:     "/v3/job/issue/" + url.PathEscape(string(jr.Type)) + "/" + url.PathEscape(jr.Database),
		form:     form,
	}, &res, opts...)
	if err != nil {
		if jr.DomainKey != "" && IsAmbiguous(err) && ctx.Err() == nil {
			if id, ferr := c.findJobByDomainKey(ctx, jr.DomainKey); ferr == nil && id != "" {
				c.logger.InfoContext(ctx, "td: resolved ambiguous submission by domain key",
					"domain_key", jr.DomainKey, "job_id", id)
				return id, nil
			}
		}
		return "", err
	}
	if res.JobID == "" {
		return "", malformedResponse(op, resource, errMissingField("job_id"))
	}
	return res.JobID, nil
}

// Domain key lookup scans at most domainKeyPages pages of the job list,
// newest first. A job pushed further back by newer submissions is not found.
const (
	domainKeyPageSize = 100
	domainKeyPages    = 10
)

func (c *Client) findJobByDomainKey(ctx context.Context, key string) (string, error) {
	for page := int64(0); page < domainKeyPages; page++ {
		from := page * domainKeyPageSize
		list, err := c.ListJobs(ctx, from, from+domainKeyPageSize-1)
		if err != nil {
			return "", err
		}
		for _, j := range list.Jobs {
			if j.DomainKey == key {
				return j.ID, nil
			}
		}
		if len(list.Jobs) < domainKeyPageSize {
			break
		}
	}
	return "", nil
}

// ListJobs lists jobs by position, newest first. A zero to omits the upper
// bound.
func (c *Client) ListJobs(ctx context.Context, from, to int64) (*JobList, error) {
	q := url.Values{}
	if from > 0 {
		q.Set("from", strconv.FormatInt(from, 10))
	}
	if to > 0 {
		q.Set("to", strconv.FormatInt(to, 10))
	}
	var res struct {
		Count int64      `json:"count"`
		From  int64      `json:"from"`
		To    int64      `json:"to"`
		Jobs  []*jobJSON `json:"jobs"`
	}
	err := c.call(ctx, &request{
		op:         "td.jobs.list",
		method:     http.MethodGet,
		path:       "/v3/job/list",
		query:      q,
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	list := &JobList{Count: res.Count, From: res.From, To: res.To}
	for _, j := range res.Jobs {
		list.Jobs = append(list.Jobs, j.toJob())
	}
	return list, nil
}

// JobStatus returns the current status of a job.
func (c *Client) JobStatus(ctx context.Context, id string) (*JobSummary, error) {
	var res jobJSON
	err := c.call(ctx, &request{
		op:         "td.jobs.status",
		resource:   jobResource(id),
		method:     http.MethodGet,
		path:       "/v3/job/status/" + url.PathEscape(id),
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	s := res.summary()
	if s.ID == "" {
		s.ID = id
	}
	return &s, nil
}

// JobInfo returns the full record of a job.
func (c *Client) JobInfo(ctx context.Context, id string) (*Job, error) {
	var res jobJSON
	err := c.call(ctx, &request{
		op:         "td.jobs.get",
		resource:   jobResource(id),
		method:     http.MethodGet,
		path:       "/v3/job/show/" + url.PathEscape(id),
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	j := res.toJob()
	if j.ID == "" {
		j.ID = id
	}
	return j, nil
}

// KillJob cancels a job. Killing a job that has already finished succeeds.
func (c *Client) KillJob(ctx context.Context, id string) error {
	err := c.call(ctx, &request{
		op:         "td.jobs.kill",
		resource:   jobResource(id),
		method:     http.MethodPost,
		path:       "/v3/job/kill/" + url.PathEscape(id),
		idempotent: true,
	}, nil)
	if IsConflict(err) {
		return nil
	}
	return err
}

func defaultPollBackoff() internal.Pauser {
	return &gax.Backoff{
		Initial:    1 * time.Second,
		Multiplier: 2,
		Max:        30 * time.Second,
	}
}

// WaitJob polls a job until it reaches a terminal state and returns its final
// status. A job that ends in Error or Killed is returned without error.
func (c *Client) WaitJob(ctx context.Context, id string) (*JobSummary, error) {
	var s *JobSummary
	err := internal.Poll(ctx, c.pollBackoff(), func() (stop bool, err error) {
		s, err = c.JobStatus(ctx, id)
		if err != nil {
			return true, err
		}
		return s.State.Done(), nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
