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
	"io"
	"net/http"
	"net/url"
	"sync"
)

// ResultFormat is the encoding of a job result.
type ResultFormat string

const (
	FormatTSV       ResultFormat = "tsv"
	FormatCSV       ResultFormat = "csv"
	FormatJSON      ResultFormat = "json"
	FormatMsgpack   ResultFormat = "msgpack"
	FormatMsgpackGz ResultFormat = "msgpack.gz"
)

// ResultReader streams a job result. It must be closed; Close is idempotent
// and the underlying connection is also released once the stream reaches
// EOF. A ResultReader is not safe for concurrent reads.
type ResultReader struct {
	body io.ReadCloser
	done bool

	once     sync.Once
	closeErr error
}

func newResultReader(body io.ReadCloser) *ResultReader {
	return &ResultReader{body: body}
}

func (r *ResultReader) Read(p []byte) (int, error) {
	if r.done || r.body == nil {
		return 0, io.EOF
	}
	n, err := r.body.Read(p)
	if err == io.EOF {
		r.done = true
		r.release()
	}
	return n, err
}

// Close releases the connection behind the stream.
func (r *ResultReader) Close() error {
	r.release()
	return r.closeErr
}

func (r *ResultReader) release() {
	r.once.Do(func() {
		r.done = true
		if r.body != nil {
			r.closeErr = r.body.Close()
		}
	})
}

// OpenJobResult opens the result of a job. If the job has not finished
// successfully the stream is empty and no result is fetched; poll JobStatus
// or use WaitJob first. The caller must close the reader.
func (c *Client) OpenJobResult(ctx context.Context, id string, format ResultFormat) (*ResultReader, error) {
	s, err := c.JobStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State != JobSuccess {
		return newResultReader(nil), nil
	}
	if format == "" {
		format = FormatTSV
	}
	resp, err := c.execute(ctx, &request{
		op:         "td.jobs.result",
		resource:   jobResource(id),
		method:     http.MethodGet,
		path:       "/v3/job/result/" + url.PathEscape(id),
		query:      url.Values{"format": {string(format)}},
		header:     http.Header{"Accept": {"*/*"}},
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return newResultReader(resp.Body), nil
}

// JobResult calls fn with the result stream of a job and releases the stream
// when fn returns, whether or not fn consumed it.
func (c *Client) JobResult(ctx context.Context, id string, format ResultFormat, fn func(io.Reader) error) error {
	r, err := c.OpenJobResult(ctx, id, format)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}
