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

/*
Package td provides a client for the Treasure Data API.

# Creating a Client

Build a Config, then create a Client from it:

	cfg, err := td.NewBuilder().Build()
	if err != nil {
		// TODO: Handle error.
	}
	client, err := td.NewClient(ctx, cfg)
	if err != nil {
		// TODO: Handle error.
	}
	defer client.Close()

Builder.Build reads settings from explicit setter calls, then the TD_API_KEY
environment variable, then the file $HOME/.td/td.conf (or the file named by
TD_CONFIG_FILE). A setting from a higher source is never replaced by a lower
one.

A Client is safe for concurrent use. WithAPIKey and Authenticate return
Clients that share the connection pool of the Client they were derived from.
Closing a derived Client only closes that Client. Closing the Client returned
by NewClient closes the pool for every Client derived from it.

# Running Queries

Submit returns the ID of the new job. Jobs run asynchronously; poll
JobStatus, or call WaitJob, until the state is terminal:

	id, err := client.Submit(ctx, td.JobRequest{
		Database:  "sample_datasets",
		Type:      td.PrestoJob,
		Query:     "SELECT COUNT(1) FROM www_access",
		DomainKey: td.NewDomainKey(),
	})
	if err != nil {
		// TODO: Handle error.
	}
	status, err := client.WaitJob(ctx, id)
	if err != nil {
		// TODO: Handle error.
	}
	if status.State != td.JobSuccess {
		// The job failed or was killed.
	}
	err = client.JobResult(ctx, id, td.FormatCSV, func(r io.Reader) error {
		_, err := io.Copy(os.Stdout, r)
		return err
	})

A job that ends in the Error or Killed state is reported through its state,
not through an error.

# Retries

Every request is retried on transport failures, HTTP 429 and HTTP 500, 502,
503 and 504, with exponential backoff, up to the configured retry limit. When
the retries run out the error is a *RetriesExhaustedError.

Operations that are not idempotent, such as Submit, are resent only when the
failure shows the server did not act on the request. Otherwise the call
returns an *AmbiguousOutcomeError. Pass AtLeastOnce to resend anyway.

# Errors

Classified failures are *Error values; use KindOf, IsNotFound and IsConflict
to inspect them. The IfExists and IfNotExists variants of create and delete
operations succeed when the resource is already absent or present.
*/
package td // import "github.com/treasure-data/td-client-go/td"
