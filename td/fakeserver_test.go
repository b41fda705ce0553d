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
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"github.com/treasure-data/td-client-go/internal"
)

const (
	testAPIKey    = "testkey"
	derivedAPIKey = "derivedkey"
	testUser      = "user@example.com"
	testPassword  = "secret"
)

// fakeServer is an in-memory implementation of the parts of the API the
// client uses.
type fakeServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	requests  []string
	databases map[string]map[string]string // database -> table -> schema
	jobs      map[string]*fakeJob
	jobOrder  []string
	sessions  map[string]*fakeSession
	schedules map[string]map[string]string
	lastForm  url.Values
	lastBody  []byte
	nextJobID int

	// intercept, when set, may answer a request before normal handling. It
	// returns true if it wrote a response. It is called with mu held.
	intercept func(w http.ResponseWriter, r *http.Request) bool
}

type fakeJob struct {
	id, typ, db, query, status, domainKey string
	result                                string
}

type fakeSession struct {
	db, table, status string
	frozen            bool
	parts             map[string][]byte
	jobID             string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		databases: map[string]map[string]string{},
		jobs:      map[string]*fakeJob{},
		sessions:  map[string]*fakeSession{},
		schedules: map[string]map[string]string{},
		nextJobID: 1000,
	}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.serveHTTP))
	t.Cleanup(fs.srv.Close)
	return fs
}

// testConfig returns a Config pointing at fs with no backoff delays worth
// waiting for.
func (fs *fakeServer) testConfig(t *testing.T) Config {
	t.Helper()
	u, err := url.Parse(fs.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := NewBuilder().
		WithoutEnv().
		WithoutConfigFile().
		SetEndpoint(u.Hostname()).
		SetPort(port).
		SetUseSSL(false).
		SetAPIKey(testAPIKey).
		SetRetryLimit(3).
		SetRetryInitialInterval(time.Millisecond).
		SetRetryMaxInterval(10 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// sleepRecorder replaces the executor's sleep and records every pause.
type sleepRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.pauses = append(s.pauses, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.pauses...)
}

func fastPoll() internal.Pauser {
	return &gax.Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1.5}
}

// newTestClient returns a Client for fs whose pauses are recorded instead of
// slept.
func newTestClient(t *testing.T, fs *fakeServer, opts ...ClientOption) (*Client, *sleepRecorder) {
	t.Helper()
	return newTestClientWithConfig(t, fs.testConfig(t), opts...)
}

func newTestClientWithConfig(t *testing.T, cfg Config, opts ...ClientOption) (*Client, *sleepRecorder) {
	t.Helper()
	c, err := NewClient(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	c.pollBackoff = fastPoll
	t.Cleanup(func() { c.Close() })
	return c, rec
}

// countRequests returns how many requests matched "METHOD /path" by prefix.
func (fs *fakeServer) countRequests(prefix string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, r := range fs.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (fs *fakeServer) requestsSnapshot() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.requests...)
}

func (fs *fakeServer) setIntercept(f func(w http.ResponseWriter, r *http.Request) bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.intercept = f
}

func (fs *fakeServer) addJob(j *fakeJob) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.jobs[j.id] = j
	fs.jobOrder = append(fs.jobOrder, j.id)
}

func (fs *fakeServer) setJobStatus(id, status string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.jobs[id].status = status
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg, "message": msg})
}

func (fs *fakeServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.requests = append(fs.requests, r.Method+" "+r.URL.Path)
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		fs.lastForm, _ = url.ParseQuery(string(body))
	} else {
		fs.lastForm = nil
	}
	fs.lastBody = body
	if fs.intercept != nil && fs.intercept(w, r) {
		return
	}

	if r.URL.Path != "/v3/user/authenticate" {
		auth := r.Header.Get("Authorization")
		if auth != "TD1 "+testAPIKey && auth != "TD1 "+derivedAPIKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v3/"), "/")
	for i, p := range parts {
		parts[i], _ = url.PathUnescape(p)
	}
	switch parts[0] {
	case "system":
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case "user":
		if fs.lastForm.Get("user") != testUser || fs.lastForm.Get("password") != testPassword {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"apikey": derivedAPIKey})
	case "database":
		fs.serveDatabase(w, parts[1:])
	case "table":
		fs.serveTable(w, parts[1:])
	case "job":
		fs.serveJob(w, r, parts[1:])
	case "bulk_import":
		fs.serveBulkImport(w, parts[1:], body)
	case "bulk_loads":
		fs.nextJobID++
		writeJSON(w, http.StatusOK, map[string]string{"job_id": strconv.Itoa(fs.nextJobID)})
	case "schedule":
		fs.serveSchedule(w, parts[1:])
	case "export":
		fs.nextJobID++
		writeJSON(w, http.StatusOK, map[string]string{"job_id": strconv.Itoa(fs.nextJobID)})
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (fs *fakeServer) serveDatabase(w http.ResponseWriter, p []string) {
	switch p[0] {
	case "list":
		var dbs []map[string]interface{}
		var names []string
		for n := range fs.databases {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			dbs = append(dbs, map[string]interface{}{
				"name":       n,
				"count":      len(fs.databases[n]),
				"created_at": "2026-01-02 03:04:05 UTC",
				"updated_at": "2026-01-02 03:04:05 UTC",
				"permission": "owner",
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"databases": dbs})
	case "create":
		if _, ok := fs.databases[p[1]]; ok {
			writeError(w, http.StatusConflict, "Database "+p[1]+" already exists")
			return
		}
		fs.databases[p[1]] = map[string]string{}
		writeJSON(w, http.StatusOK, map[string]string{"database": p[1]})
	case "delete":
		if _, ok := fs.databases[p[1]]; !ok {
			writeError(w, http.StatusNotFound, "Database "+p[1]+" does not exist")
			return
		}
		delete(fs.databases, p[1])
		writeJSON(w, http.StatusOK, map[string]string{"database": p[1]})
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (fs *fakeServer) serveTable(w http.ResponseWriter, p []string) {
	tables, ok := fs.databases[p[1]]
	if !ok {
		writeError(w, http.StatusNotFound, "Database "+p[1]+" does not exist")
		return
	}
	switch p[0] {
	case "list":
		var list []map[string]interface{}
		var names []string
		for n := range tables {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			list = append(list, map[string]interface{}{
				"name":        n,
				"type":        "log",
				"count":       0,
				"schema":      tables[n],
				"expire_days": nil,
				"created_at":  "2026-01-02 03:04:05 UTC",
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"database": p[1], "tables": list})
	case "create":
		if _, ok := tables[p[2]]; ok {
			writeError(w, http.StatusConflict, "Table "+p[2]+" already exists")
			return
		}
		tables[p[2]] = "[]"
		writeJSON(w, http.StatusOK, map[string]string{"table": p[2]})
	case "delete":
		if _, ok := tables[p[2]]; !ok {
			writeError(w, http.StatusNotFound, "Table "+p[2]+" does not exist")
			return
		}
		delete(tables, p[2])
		writeJSON(w, http.StatusOK, map[string]string{"table": p[2]})
	case "rename":
		s, ok := tables[p[2]]
		if !ok {
			writeError(w, http.StatusNotFound, "Table "+p[2]+" does not exist")
			return
		}
		if _, exists := tables[p[3]]; exists && fs.lastForm.Get("overwrite") != "true" {
			writeError(w, http.StatusConflict, "Table "+p[3]+" already exists")
			return
		}
		delete(tables, p[2])
		tables[p[3]] = s
		writeJSON(w, http.StatusOK, map[string]string{"table": p[3]})
	case "swap":
		a, aok := tables[p[2]]
		b, bok := tables[p[3]]
		if !aok || !bok {
			writeError(w, http.StatusNotFound, "Table does not exist")
			return
		}
		tables[p[2]], tables[p[3]] = b, a
		writeJSON(w, http.StatusOK, map[string]string{})
	case "update-schema":
		if _, ok := tables[p[2]]; !ok {
			writeError(w, http.StatusNotFound, "Table "+p[2]+" does not exist")
			return
		}
		tables[p[2]] = fs.lastForm.Get("schema")
		writeJSON(w, http.StatusOK, map[string]string{"table": p[2]})
	case "partialdelete":
		fs.nextJobID++
		from, _ := strconv.ParseInt(fs.lastForm.Get("from"), 10, 64)
		to, _ := strconv.ParseInt(fs.lastForm.Get("to"), 10, 64)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id": strconv.Itoa(fs.nextJobID), "database": p[1], "table": p[2], "from": from, "to": to,
		})
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (j *fakeJob) record() map[string]interface{} {
	return map[string]interface{}{
		"job_id":     j.id,
		"type":       j.typ,
		"database":   j.db,
		"query":      j.query,
		"status":     j.status,
		"domain_key": j.domainKey,
		"created_at": "2026-01-02 03:04:05 UTC",
		"start_at":   nil,
		"end_at":     "",
		"cpu_time":   nil,
		"priority":   0,
	}
}

// issueJob creates a queued job from the last request's form.
func (fs *fakeServer) issueJob(typ, db string) *fakeJob {
	fs.nextJobID++
	j := &fakeJob{
		id:        strconv.Itoa(fs.nextJobID),
		typ:       typ,
		db:        db,
		query:     fs.lastForm.Get("query"),
		status:    "queued",
		domainKey: fs.lastForm.Get("domain_key"),
	}
	fs.jobs[j.id] = j
	fs.jobOrder = append(fs.jobOrder, j.id)
	return j
}

func (fs *fakeServer) serveJob(w http.ResponseWriter, r *http.Request, p []string) {
	if p[0] == "issue" {
		if dk := fs.lastForm.Get("domain_key"); dk != "" {
			for _, j := range fs.jobs {
				if j.domainKey == dk {
					writeError(w, http.StatusConflict, "domain key already used")
					return
				}
			}
		}
		j := fs.issueJob(p[1], p[2])
		writeJSON(w, http.StatusOK, map[string]string{"job_id": j.id, "database": p[2]})
		return
	}
	if p[0] == "list" {
		// from and to are inclusive positions, newest first.
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		to := len(fs.jobOrder) - 1
		if v := r.URL.Query().Get("to"); v != "" {
			to, _ = strconv.Atoi(v)
		}
		var list []map[string]interface{}
		for pos := from; pos <= to && pos < len(fs.jobOrder); pos++ {
			list = append(list, fs.jobs[fs.jobOrder[len(fs.jobOrder)-1-pos]].record())
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(fs.jobOrder), "from": from, "to": to, "jobs": list})
		return
	}
	if len(p) < 2 {
		writeError(w, http.StatusNotFound, "no such endpoint")
		return
	}
	j, ok := fs.jobs[p[1]]
	if !ok {
		writeError(w, http.StatusNotFound, "Job "+p[1]+" was not found")
		return
	}
	switch p[0] {
	case "status", "show":
		writeJSON(w, http.StatusOK, j.record())
	case "kill":
		switch j.status {
		case "success", "error", "killed":
			writeError(w, http.StatusConflict, "Job "+j.id+" is already finished")
			return
		}
		former := j.status
		j.status = "killed"
		writeJSON(w, http.StatusOK, map[string]string{"job_id": j.id, "former_status": former})
	case "result":
		if got := r.URL.Query().Get("format"); got == "" {
			writeError(w, http.StatusBadRequest, "format is required")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, j.result)
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (s *fakeSession) record(name string) map[string]interface{} {
	var jobID interface{}
	if s.jobID != "" {
		jobID = s.jobID
	}
	return map[string]interface{}{
		"name":          name,
		"database":      s.db,
		"table":         s.table,
		"status":        s.status,
		"upload_frozen": s.frozen,
		"job_id":        jobID,
		"valid_parts":   len(s.parts),
	}
}

func (fs *fakeServer) serveBulkImport(w http.ResponseWriter, p []string, body []byte) {
	if p[0] == "list" {
		var list []map[string]interface{}
		var names []string
		for n := range fs.sessions {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			list = append(list, fs.sessions[n].record(n))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"bulk_imports": list})
		return
	}
	name := p[1]
	if p[0] == "create" {
		if _, ok := fs.sessions[name]; ok {
			writeError(w, http.StatusConflict, "Bulk import session "+name+" already exists")
			return
		}
		fs.sessions[name] = &fakeSession{db: p[2], table: p[3], status: "uploading", parts: map[string][]byte{}}
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
		return
	}
	s, ok := fs.sessions[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Bulk import session "+name+" does not exist")
		return
	}
	switch p[0] {
	case "show":
		writeJSON(w, http.StatusOK, s.record(name))
	case "list_parts":
		var parts []string
		for n := range s.parts {
			parts = append(parts, n)
		}
		sort.Strings(parts)
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "parts": parts})
	case "upload_part":
		if s.frozen {
			writeError(w, http.StatusUnprocessableEntity, "session is frozen")
			return
		}
		s.parts[p[2]] = body
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case "delete_part":
		if _, ok := s.parts[p[2]]; !ok {
			writeError(w, http.StatusNotFound, "part does not exist")
			return
		}
		delete(s.parts, p[2])
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case "freeze":
		s.frozen = true
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case "unfreeze":
		s.frozen = false
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case "perform":
		// Conversion finishes instantly here.
		fs.nextJobID++
		s.jobID = strconv.Itoa(fs.nextJobID)
		s.status = "ready"
		fs.jobs[s.jobID] = &fakeJob{id: s.jobID, typ: "bulk_import_perform", db: s.db, status: "success"}
		fs.jobOrder = append(fs.jobOrder, s.jobID)
		writeJSON(w, http.StatusOK, map[string]string{"name": name, "job_id": s.jobID})
	case "commit":
		s.status = "committed"
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case "delete":
		delete(fs.sessions, name)
		writeJSON(w, http.StatusOK, map[string]string{"name": name})
	case "error_records":
		w.Header().Set("Content-Type", "application/octet-stream")
		io.WriteString(w, "bad-record-1\nbad-record-2\n")
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

func (fs *fakeServer) serveSchedule(w http.ResponseWriter, p []string) {
	if p[0] == "list" {
		var list []map[string]string
		var names []string
		for n := range fs.schedules {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			list = append(list, fs.schedules[n])
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"schedules": list})
		return
	}
	name := p[1]
	switch p[0] {
	case "create":
		if _, ok := fs.schedules[name]; ok {
			writeError(w, http.StatusConflict, "Schedule "+name+" already exists")
			return
		}
		rec := map[string]string{"name": name}
		for k := range fs.lastForm {
			rec[k] = fs.lastForm.Get(k)
		}
		delete(rec, "priority")
		delete(rec, "retry_limit")
		delete(rec, "delay")
		fs.schedules[name] = rec
		writeJSON(w, http.StatusOK, rec)
		return
	}
	rec, ok := fs.schedules[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Schedule "+name+" does not exist")
		return
	}
	switch p[0] {
	case "update":
		for k := range fs.lastForm {
			switch k {
			case "priority", "retry_limit", "delay":
			default:
				rec[k] = fs.lastForm.Get(k)
			}
		}
		writeJSON(w, http.StatusOK, rec)
	case "delete":
		delete(fs.schedules, name)
		writeJSON(w, http.StatusOK, rec)
	case "run":
		j := fs.issueJob(rec["type"], rec["database"])
		j.query = rec["query"]
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"jobs": []map[string]string{{"job_id": j.id, "scheduled_at": p[2], "type": j.typ}},
		})
	default:
		writeError(w, http.StatusNotFound, "no such endpoint")
	}
}

// failN returns an intercept that answers the first n requests whose path has
// prefix with status code, then lets requests through.
func failN(prefix string, n, code int) func(http.ResponseWriter, *http.Request) bool {
	seen := 0
	return func(w http.ResponseWriter, r *http.Request) bool {
		if !strings.HasPrefix(r.URL.Path, prefix) || seen >= n {
			return false
		}
		seen++
		writeError(w, code, fmt.Sprintf("injected failure %d", seen))
		return true
	}
}
