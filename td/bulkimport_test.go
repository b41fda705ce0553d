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
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/treasure-data/td-client-go/internal/testutil"
)

func TestBulkImportLifecycle(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()

	if err := c.CreateBulkImportSession(ctx, "s1", "sample_db", "events"); err != nil {
		t.Fatal(err)
	}
	s, err := c.GetBulkImportSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.SessionState(); got != SessionCreated {
		t.Errorf("state after create: got %v, want %v", got, SessionCreated)
	}

	path := filepath.Join(t.TempDir(), "p2.msgpack.gz")
	if err := os.WriteFile(path, []byte("part two"), 0o600); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = c.UploadBulkImportPart(ctx, "s1", "p1", BytesPart([]byte("part one")))
	}()
	go func() {
		defer wg.Done()
		errs[1] = c.UploadBulkImportPart(ctx, "s1", "p2", FilePart(path))
	}()
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("upload %d: %v", i+1, err)
		}
	}
	parts, err := c.ListBulkImportParts(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := testutil.Diff(parts, []string{"p1", "p2"}); diff != "" {
		t.Errorf("parts: -got +want:\n%s", diff)
	}
	fs.mu.Lock()
	p2 := string(fs.sessions["s1"].parts["p2"])
	fs.mu.Unlock()
	if p2 != "part two" {
		t.Errorf("p2: got %q", p2)
	}

	if err := c.FreezeBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if s, err = c.GetBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if got := s.SessionState(); got != SessionFrozen {
		t.Errorf("state after freeze: got %v, want %v", got, SessionFrozen)
	}

	jobID, err := c.PerformBulkImportSession(ctx, "s1", Normal)
	if err != nil {
		t.Fatal(err)
	}
	js, err := c.WaitJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if js.State != JobSuccess {
		t.Fatalf("perform job: got %v, want %v", js.State, JobSuccess)
	}
	if s, err = c.GetBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if got := s.SessionState(); got != SessionReady || s.JobID != jobID {
		t.Errorf("after perform: got state %v job %q, want %v %q", got, s.JobID, SessionReady, jobID)
	}

	if err := c.CommitBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if s, err = c.GetBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if got := s.SessionState(); got != SessionCommitted {
		t.Errorf("state after commit: got %v, want %v", got, SessionCommitted)
	}

	if err := c.DeleteBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetBulkImportSession(ctx, "s1"); !IsNotFound(err) {
		t.Errorf("after delete: got %v, want not found", err)
	}
}

func TestCreateBulkImportSessionIfNotExists(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := c.CreateBulkImportSessionIfNotExists(ctx, "s1", "db", "tbl"); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	if got := fs.countRequests("POST /v3/bulk_import/create"); got != 1 {
		t.Errorf("create requests: got %d, want 1", got)
	}
	list, err := c.ListBulkImportSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "s1" || list[0].Database != "db" || list[0].Table != "tbl" {
		t.Errorf("sessions: got %+v", list)
	}

	if err := c.CreateBulkImportSession(ctx, "s1", "db", "tbl"); !IsConflict(err) {
		t.Errorf("strict create of an existing session: got %v, want a conflict", err)
	}
}

func TestDeleteBulkImportSessionIfExists(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	if err := c.DeleteBulkImportSessionIfExists(ctx, "missing"); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if err := c.DeleteBulkImportSession(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("strict delete: got %v, want not found", err)
	}
}

func TestFreezeBulkImportSession(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	if err := c.CreateBulkImportSession(ctx, "s1", "db", "tbl"); err != nil {
		t.Fatal(err)
	}
	if err := c.FreezeBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := c.FreezeBulkImportSession(ctx, "s1"); KindOf(err) != KindValidation {
		t.Errorf("second strict freeze: got %v, want a validation error", err)
	}
	if err := c.FreezeBulkImportSessionIfNotFrozen(ctx, "s1"); err != nil {
		t.Errorf("lenient freeze: got %v, want nil", err)
	}
	if got := fs.countRequests("POST /v3/bulk_import/freeze"); got != 1 {
		t.Errorf("freeze requests: got %d, want 1", got)
	}

	if err := c.UploadBulkImportPart(ctx, "s1", "p1", BytesPart([]byte("x"))); KindOf(err) != KindValidation {
		t.Errorf("upload to a frozen session: got %v, want a validation error", err)
	}
	if err := c.UnfreezeBulkImportSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := c.UploadBulkImportPart(ctx, "s1", "p1", BytesPart([]byte("x"))); err != nil {
		t.Errorf("upload after unfreeze: %v", err)
	}
	if err := c.DeleteBulkImportPart(ctx, "s1", "p1"); err != nil {
		t.Fatal(err)
	}
	parts, err := c.ListBulkImportParts(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 0 {
		t.Errorf("parts after delete: got %v", parts)
	}
}

func TestCommitBeforeReady(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	if err := c.CreateBulkImportSession(ctx, "s1", "db", "tbl"); err != nil {
		t.Fatal(err)
	}
	if err := c.CommitBulkImportSession(ctx, "s1"); KindOf(err) != KindValidation {
		t.Errorf("got %v, want a validation error", err)
	}
	if got := fs.countRequests("POST /v3/bulk_import/commit"); got != 0 {
		t.Errorf("commit requests: got %d, want 0", got)
	}
}

func TestUploadBulkImportPartSources(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	if err := c.CreateBulkImportSession(ctx, "s1", "db", "tbl"); err != nil {
		t.Fatal(err)
	}
	if err := c.UploadBulkImportPart(ctx, "s1", "p1", nil); KindOf(err) != KindValidation {
		t.Errorf("nil source: got %v, want a validation error", err)
	}
	if err := c.UploadBulkImportPart(ctx, "s1", "p1", FilePart(filepath.Join(t.TempDir(), "nope"))); err == nil {
		t.Error("missing file: got nil error")
	}
	if got := fs.countRequests("PUT"); got != 0 {
		t.Errorf("requests: got %d, want 0", got)
	}

	src := strings.NewReader("readerat payload")
	if err := c.UploadBulkImportPart(ctx, "s1", "p3", ReaderAtPart(src, src.Size())); err != nil {
		t.Fatal(err)
	}
	fs.mu.Lock()
	got := string(fs.sessions["s1"].parts["p3"])
	fs.mu.Unlock()
	if got != "readerat payload" {
		t.Errorf("p3: got %q", got)
	}
}

func TestBulkImportErrorRecords(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	if err := c.CreateBulkImportSession(ctx, "s1", "db", "tbl"); err != nil {
		t.Fatal(err)
	}
	var got string
	err := c.BulkImportErrorRecords(ctx, "s1", func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = string(b)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := "bad-record-1\nbad-record-2\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSessionState(t *testing.T) {
	for _, test := range []struct {
		status string
		frozen bool
		want   SessionState
	}{
		{"uploading", false, SessionCreated},
		{"uploading", true, SessionFrozen},
		{"performing", true, SessionPerforming},
		{"ready", true, SessionReady},
		{"committing", true, SessionCommitting},
		{"committed", true, SessionCommitted},
	} {
		s := &BulkImportSession{Status: test.status, UploadFrozen: test.frozen}
		if got := s.SessionState(); got != test.want {
			t.Errorf("%s frozen=%t: got %v, want %v", test.status, test.frozen, got, test.want)
		}
	}
}

func TestStartBulkLoadSession(t *testing.T) {
	fs := newFakeServer(t)
	c, _ := newTestClient(t, fs)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	res, err := c.StartBulkLoadSession(ctx, "daily_s3", BulkLoadSessionStartRequest{ScheduledTime: at})
	if err != nil {
		t.Fatal(err)
	}
	if res.JobID == "" {
		t.Error("empty job id")
	}
	fs.mu.Lock()
	body := fs.lastBody
	fs.mu.Unlock()
	var sent map[string]int64
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("body %q: %v", body, err)
	}
	if got := sent["scheduled_time"]; got != at.Unix() {
		t.Errorf("scheduled_time: got %d, want %d", got, at.Unix())
	}
	if got := fs.countRequests("POST /v3/bulk_loads/daily_s3/jobs"); got != 1 {
		t.Errorf("requests: got %d, want 1", got)
	}

	if _, err := c.StartBulkLoadSession(ctx, "daily_s3", BulkLoadSessionStartRequest{}); err != nil {
		t.Fatal(err)
	}
	fs.mu.Lock()
	body = fs.lastBody
	fs.mu.Unlock()
	if string(body) != "{}" {
		t.Errorf("zero request body: got %q, want {}", body)
	}

	if _, err := c.StartBulkLoadSession(ctx, "", BulkLoadSessionStartRequest{}); KindOf(err) != KindValidation {
		t.Errorf("empty name: got %v, want a validation error", err)
	}
}
