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
)

// ExportFileFormat is the file format written by an export job.
type ExportFileFormat string

const (
	ExportJSONLineGzip ExportFileFormat = "jsonl.gz"
	ExportTSVGzip      ExportFileFormat = "tsv.gz"
	ExportJSONGzip     ExportFileFormat = "json.gz"
)

// ExportJobRequest describes an export of a table's rows to S3.
type ExportJobRequest struct {
	Database        string
	Table           string
	From            time.Time
	To              time.Time
	FileFormat      ExportFileFormat
	Bucket          string
	FilePrefix      string
	AccessKeyID     string
	SecretAccessKey string
	PoolName        string
}

// SubmitExportJob starts an export job and returns its ID. Submission is not
// idempotent.
func (c *Client) SubmitExportJob(ctx context.Context, r ExportJobRequest, opts ...CallOption) (string, error) {
	const op = "td.jobs.export"
	resource := tableResource(r.Database, r.Table)
	switch {
	case r.Database == "" || r.Table == "":
		return "", validationError(op, resource, "database and table are required")
	case r.Bucket == "":
		return "", validationError(op, resource, "bucket is required")
	case !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To):
		return "", validationError(op, resource, "from must be before to")
	}
	format := r.FileFormat
	if format == "" {
		format = ExportJSONLineGzip
	}
	form := url.Values{
		"storage_type":      {"s3"},
		"bucket":            {r.Bucket},
		"file_format":       {string(format)},
		"access_key_id":     {r.AccessKeyID},
		"secret_access_key": {r.SecretAccessKey},
	}
	if r.FilePrefix != "" {
		form.Set("file_prefix", r.FilePrefix)
	}
	if !r.From.IsZero() {
		form.Set("from", strconv.FormatInt(r.From.Unix(), 10))
	}
	if !r.To.IsZero() {
		form.Set("to", strconv.FormatInt(r.To.Unix(), 10))
	}
	if r.PoolName != "" {
		form.Set("pool_name", r.PoolName)
	}
	var res struct {
		JobID string `json:"job_id"`
	}
	err := c.call(ctx, &request{
		op:       op,
		resource: resource,
		method:   http.MethodPost,
		path:     "/v3/export/run/" + url.PathEscape(r.Database) + "/" + url.PathEscape(r.Table),
		form:     form,
	}, &res, opts...)
	if err != nil {
		return "", err
	}
	if res.JobID == "" {
		return "", malformedResponse(op, resource, errMissingField("job_id"))
	}
	return res.JobID, nil
}
