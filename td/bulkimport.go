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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
)

// SessionState is the lifecycle position of a bulk import session, derived
// from the server status and the upload-frozen flag.
type SessionState string

const (
	SessionCreated    SessionState = "created"
	SessionFrozen     SessionState = "frozen"
	SessionPerforming SessionState = "performing"
	SessionReady      SessionState = "ready"
	SessionCommitting SessionState = "committing"
	SessionCommitted  SessionState = "committed"
)

// BulkImportSession is the server record of a bulk import session.
type BulkImportSession struct {
	Name     string `json:"name"`
	Database string `json:"database"`
	Table    string `json:"table"`
	// Status is the raw server status: uploading, performing, ready,
	// committing or committed.
	Status       string `json:"status"`
	UploadFrozen bool   `json:"upload_frozen"`
	JobID        string `json:"job_id"`
	ValidRecords int64  `json:"valid_records"`
	ErrorRecords int64  `json:"error_records"`
	ValidParts   int64  `json:"valid_parts"`
	ErrorParts   int64  `json:"error_parts"`
}

// SessionState derives the session's lifecycle state.
func (s *BulkImportSession) SessionState() SessionState {
	switch s.Status {
	case "uploading", "":
		if s.UploadFrozen {
			return SessionFrozen
		}
		return SessionCreated
	case "performing":
		return SessionPerforming
	case "ready":
		return SessionReady
	case "committing":
		return SessionCommitting
	case "committed":
		return SessionCommitted
	}
	return SessionState(s.Status)
}

// PartSource opens the payload of one bulk import part. Open is called once
// per upload attempt and must return a fresh stream positioned at the start
// of the payload together with its length, or -1 if unknown.
type PartSource interface {
	Open() (io.ReadCloser, int64, error)
}

type partSourceFunc func() (io.ReadCloser, int64, error)

func (f partSourceFunc) Open() (io.ReadCloser, int64, error) { return f() }

// FilePart streams a part from the file at path.
func FilePart(path string) PartSource {
	return partSourceFunc(func() (io.ReadCloser, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, fi.Size(), nil
	})
}

// BytesPart uploads b.
func BytesPart(b []byte) PartSource {
	return partSourceFunc(func() (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
	})
}

// ReaderAtPart streams size bytes of r starting at offset 0. Each attempt
// reads through its own section reader, so r is never consumed.
func ReaderAtPart(r io.ReaderAt, size int64) PartSource {
	return partSourceFunc(func() (io.ReadCloser, int64, error) {
		return io.NopCloser(io.NewSectionReader(r, 0, size)), size, nil
	})
}

func sessionResource(name string) string { return "bulk_import:" + name }

func bulkImportPath(action, name string, rest ...string) string {
	p := "/v3/bulk_import/" + action + "/" + url.PathEscape(name)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// ListBulkImportSessions lists every bulk import session.
func (c *Client) ListBulkImportSessions(ctx context.Context) ([]*BulkImportSession, error) {
	var res struct {
		BulkImports []*BulkImportSession `json:"bulk_imports"`
	}
	err := c.call(ctx, &request{
		op:         "td.bulk_import.list",
		method:     http.MethodGet,
		path:       "/v3/bulk_import/list",
		idempotent: true,
	}, &res)
	return res.BulkImports, err
}

// ListBulkImportParts returns the names of the parts uploaded to a session.
func (c *Client) ListBulkImportParts(ctx context.Context, name string) ([]string, error) {
	var res struct {
		Parts []string `json:"parts"`
	}
	err := c.call(ctx, &request{
		op:         "td.bulk_import.list_parts",
		resource:   sessionResource(name),
		method:     http.MethodGet,
		path:       bulkImportPath("list_parts", name),
		idempotent: true,
	}, &res)
	return res.Parts, err
}

// GetBulkImportSession returns the current record of a session.
func (c *Client) GetBulkImportSession(ctx context.Context, name string) (*BulkImportSession, error) {
	var s BulkImportSession
	err := c.call(ctx, &request{
		op:         "td.bulk_import.get",
		resource:   sessionResource(name),
		method:     http.MethodGet,
		path:       bulkImportPath("show", name),
		idempotent: true,
	}, &s)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = name
	}
	return &s, nil
}

// CreateBulkImportSession creates a session that loads into database.table.
// It fails with a conflict if the session exists.
func (c *Client) CreateBulkImportSession(ctx context.Context, name, database, table string, opts ...CallOption) error {
	return c.call(ctx, &request{
		op:       "td.bulk_import.create",
		resource: sessionResource(name),
		method:   http.MethodPost,
		path:     bulkImportPath("create", name, database, table),
	}, nil, opts...)
}

// CreateBulkImportSessionIfNotExists creates a session unless one with the
// same name exists.
func (c *Client) CreateBulkImportSessionIfNotExists(ctx context.Context, name, database, table string) error {
	_, err := c.GetBulkImportSession(ctx, name)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return err
	}
	err = c.CreateBulkImportSession(ctx, name, database, table, AtLeastOnce())
	if IsConflict(err) {
		return nil
	}
	return err
}

// UploadBulkImportPart uploads one part. Uploading a part name again replaces
// that part, so the upload is retried freely; src is reopened for each
// attempt.
func (c *Client) UploadBulkImportPart(ctx context.Context, name, part string, src PartSource) error {
	if src == nil {
		return validationError("td.bulk_import.upload_part", sessionResource(name), "part %q has no source", part)
	}
	return c.call(ctx, &request{
		op:          "td.bulk_import.upload_part",
		resource:    sessionResource(name) + "/" + part,
		method:      http.MethodPut,
		path:        bulkImportPath("upload_part", name, part),
		body:        src.Open,
		contentType: "application/octet-stream",
		idempotent:  true,
	}, nil)
}

// DeleteBulkImportPart removes one part from a session.
func (c *Client) DeleteBulkImportPart(ctx context.Context, name, part string) error {
	return c.call(ctx, &request{
		op:       "td.bulk_import.delete_part",
		resource: sessionResource(name) + "/" + part,
		method:   http.MethodPost,
		path:     bulkImportPath("delete_part", name, part),
	}, nil)
}

// FreezeBulkImportSession stops a session from accepting parts. Freezing a
// session that is already frozen is a KindValidation error.
func (c *Client) FreezeBulkImportSession(ctx context.Context, name string) error {
	s, err := c.GetBulkImportSession(ctx, name)
	if err != nil {
		return err
	}
	if s.UploadFrozen {
		return validationError("td.bulk_import.freeze", sessionResource(name), "session is already frozen")
	}
	return c.freeze(ctx, name)
}

// FreezeBulkImportSessionIfNotFrozen freezes a session, doing nothing if it
// is already frozen.
func (c *Client) FreezeBulkImportSessionIfNotFrozen(ctx context.Context, name string) error {
	s, err := c.GetBulkImportSession(ctx, name)
	if err != nil {
		return err
	}
	if s.UploadFrozen {
		return nil
	}
	return c.freeze(ctx, name)
}

func (c *Client) freeze(ctx context.Context, name string) error {
	return c.call(ctx, &request{
		op:         "td.bulk_import.freeze",
		resource:   sessionResource(name),
		method:     http.MethodPost,
		path:       bulkImportPath("freeze", name),
		idempotent: true,
	}, nil)
}

// UnfreezeBulkImportSession lets a frozen session accept parts again.
func (c *Client) UnfreezeBulkImportSession(ctx context.Context, name string) error {
	return c.call(ctx, &request{
		op:         "td.bulk_import.unfreeze",
		resource:   sessionResource(name),
		method:     http.MethodPost,
		path:       bulkImportPath("unfreeze", name),
		idempotent: true,
	}, nil)
}

// PerformBulkImportSession starts converting the uploaded parts and returns
// the ID of the job doing it. It does not wait; watch the job with JobStatus
// or WaitJob.
func (c *Client) PerformBulkImportSession(ctx context.Context, name string, priority Priority, opts ...CallOption) (string, error) {
	const op = "td.bulk_import.perform"
	if !priority.valid() {
		return "", validationError(op, sessionResource(name), "priority %d is out of range", priority)
	}
	form := url.Values{}
	if priority != Normal {
		form.Set("priority", strconv.Itoa(int(priority)))
	}
	var res struct {
		JobID string `json:"job_id"`
	}
	err := c.call(ctx, &request{
		op:       op,
		resource: sessionResource(name),
		method:   http.MethodPost,
		path:     bulkImportPath("perform", name),
		form:     form,
	}, &res, opts...)
	if err != nil {
		return "", err
	}
	if res.JobID == "" {
		return "", malformedResponse(op, sessionResource(name), errMissingField("job_id"))
	}
	return res.JobID, nil
}

// CommitBulkImportSession loads the performed data into the target table. A
// session that is not Ready is rejected with a KindValidation error before
// the commit request is sent.
func (c *Client) CommitBulkImportSession(ctx context.Context, name string, opts ...CallOption) error {
	const op = "td.bulk_import.commit"
	s, err := c.GetBulkImportSession(ctx, name)
	if err != nil {
		return err
	}
	if st := s.SessionState(); st != SessionReady {
		return validationError(op, sessionResource(name), "session is %s, not ready to commit", st)
	}
	return c.call(ctx, &request{
		op:       op,
		resource: sessionResource(name),
		method:   http.MethodPost,
		path:     bulkImportPath("commit", name),
	}, nil, opts...)
}

// DeleteBulkImportSession deletes a session and its parts. Deletes are
// retried like reads.
func (c *Client) DeleteBulkImportSession(ctx context.Context, name string, opts ...CallOption) error {
	return c.call(ctx, &request{
		op:         "td.bulk_import.delete",
		resource:   sessionResource(name),
		method:     http.MethodPost,
		path:       bulkImportPath("delete", name),
		idempotent: true,
	}, nil, opts...)
}

// DeleteBulkImportSessionIfExists deletes a session, succeeding if it does
// not exist.
func (c *Client) DeleteBulkImportSessionIfExists(ctx context.Context, name string) error {
	err := c.DeleteBulkImportSession(ctx, name)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// BulkImportErrorRecords calls fn with the stream of records that failed to
// import and releases the stream when fn returns.
func (c *Client) BulkImportErrorRecords(ctx context.Context, name string, fn func(io.Reader) error) error {
	resp, err := c.execute(ctx, &request{
		op:         "td.bulk_import.error_records",
		resource:   sessionResource(name),
		method:     http.MethodGet,
		path:       bulkImportPath("error_records", name),
		header:     http.Header{"Accept": {"*/*"}},
		idempotent: true,
	})
	if err != nil {
		return err
	}
	r := newResultReader(resp.Body)
	defer r.Close()
	return fn(r)
}
