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

// Table describes a table.
type Table struct {
	Name                 string
	Database             string
	Type                 string
	Count                int64
	Schema               Schema
	EstimatedStorageSize int64
	ExpireDays           int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type tableJSON struct {
	Name                 string `json:"name"`
	Type                 string `json:"type"`
	Count                int64  `json:"count"`
	Schema               string `json:"schema"`
	EstimatedStorageSize int64  `json:"estimated_storage_size"`
	ExpireDays           int    `json:"expire_days"`
	CreatedAt            tdTime `json:"created_at"`
	UpdatedAt            tdTime `json:"updated_at"`
}

// PartialDeleteJob is the job that deletes a time range of a table.
type PartialDeleteJob struct {
	JobID    string `json:"job_id"`
	Database string `json:"database"`
	Table    string `json:"table"`
	From     int64  `json:"from"`
	To       int64  `json:"to"`
}

func tableResource(database, table string) string {
	return "table:" + database + "." + table
}

func tablePath(action string, parts ...string) string {
	p := "/v3/table/" + action
	for _, s := range parts {
		p += "/" + url.PathEscape(s)
	}
	return p
}

// ListTables lists the tables of a database.
func (c *Client) ListTables(ctx context.Context, database string) ([]*Table, error) {
	const op = "td.tables.list"
	var res struct {
		Tables []tableJSON `json:"tables"`
	}
	err := c.call(ctx, &request{
		op:         op,
		resource:   databaseResource(database),
		method:     http.MethodGet,
		path:       tablePath("list", database),
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	tables := make([]*Table, 0, len(res.Tables))
	for _, t := range res.Tables {
		schema, err := unmarshalSchema(t.Schema)
		if err != nil {
			return nil, malformedResponse(op, tableResource(database, t.Name), err)
		}
		tables = append(tables, &Table{
			Name:                 t.Name,
			Database:             database,
			Type:                 t.Type,
			Count:                t.Count,
			Schema:               schema,
			EstimatedStorageSize: t.EstimatedStorageSize,
			ExpireDays:           t.ExpireDays,
			CreatedAt:            time.Time(t.CreatedAt),
			UpdatedAt:            time.Time(t.UpdatedAt),
		})
	}
	return tables, nil
}

// ExistsTable reports whether database.table exists. A missing database
// reports false.
func (c *Client) ExistsTable(ctx context.Context, database, table string) (bool, error) {
	tables, err := c.ListTables(ctx, database)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t.Name == table {
			return true, nil
		}
	}
	return false, nil
}

// CreateTable creates a log table. It fails with a conflict if the table
// exists.
func (c *Client) CreateTable(ctx context.Context, database, table string, opts ...CallOption) error {
	const op = "td.tables.create"
	if err := validateName(op, tableResource(database, table), table); err != nil {
		return err
	}
	return c.call(ctx, &request{
		op:       op,
		resource: tableResource(database, table),
		method:   http.MethodPost,
		path:     tablePath("create", database, table, "log"),
	}, nil, opts...)
}

// CreateTableIfNotExists creates a log table unless it exists.
func (c *Client) CreateTableIfNotExists(ctx context.Context, database, table string) error {
	ok, err := c.ExistsTable(ctx, database, table)
	if err != nil || ok {
		return err
	}
	err = c.CreateTable(ctx, database, table, AtLeastOnce())
	if IsConflict(err) {
		return nil
	}
	return err
}

// RenameTable renames a table. With overwrite set an existing table named
// newName is replaced.
func (c *Client) RenameTable(ctx context.Context, database, table, newName string, overwrite bool) error {
	const op = "td.tables.rename"
	if err := validateName(op, tableResource(database, newName), newName); err != nil {
		return err
	}
	return c.call(ctx, &request{
		op:       op,
		resource: tableResource(database, table),
		method:   http.MethodPost,
		path:     tablePath("rename", database, table, newName),
		form:     url.Values{"overwrite": {strconv.FormatBool(overwrite)}},
	}, nil)
}

// DeleteTable deletes a table.
func (c *Client) DeleteTable(ctx context.Context, database, table string, opts ...CallOption) error {
	return c.call(ctx, &request{
		op:         "td.tables.delete",
		resource:   tableResource(database, table),
		method:     http.MethodPost,
		path:       tablePath("delete", database, table),
		idempotent: true,
	}, nil, opts...)
}

// DeleteTableIfExists deletes a table, succeeding if it does not exist.
func (c *Client) DeleteTableIfExists(ctx context.Context, database, table string) error {
	err := c.DeleteTable(ctx, database, table)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// PartialDelete starts a job deleting the rows of a table whose time is in
// [from, to). Both bounds must fall on an hour boundary.
func (c *Client) PartialDelete(ctx context.Context, database, table string, from, to time.Time) (*PartialDeleteJob, error) {
	const op = "td.tables.partial_delete"
	resource := tableResource(database, table)
	f, t := from.Unix(), to.Unix()
	if f%3600 != 0 || t%3600 != 0 {
		return nil, validationError(op, resource, "from and to must be multiples of 3600 seconds")
	}
	if f >= t {
		return nil, validationError(op, resource, "from must be before to")
	}
	var res PartialDeleteJob
	err := c.call(ctx, &request{
		op:       op,
		resource: resource,
		method:   http.MethodPost,
		path:     tablePath("partialdelete", database, table),
		form: url.Values{
			"from": {strconv.FormatInt(f, 10)},
			"to":   {strconv.FormatInt(t, 10)},
		},
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.JobID == "" {
		return nil, malformedResponse(op, resource, errMissingField("job_id"))
	}
	return &res, nil
}

// SwapTables exchanges the contents of two tables in the same database.
func (c *Client) SwapTables(ctx context.Context, database, table1, table2 string) error {
	return c.call(ctx, &request{
		op:       "td.tables.swap",
		resource: tableResource(database, table1),
		method:   http.MethodPost,
		path:     tablePath("swap", database, table1, table2),
	}, nil)
}

// UpdateTableSchema replaces the schema of a table.
func (c *Client) UpdateTableSchema(ctx context.Context, database, table string, schema Schema) error {
	const op = "td.tables.update_schema"
	resource := tableResource(database, table)
	enc, err := marshalSchema(schema)
	if err != nil {
		return err
	}
	return c.call(ctx, &request{
		op:         op,
		resource:   resource,
		method:     http.MethodPost,
		path:       tablePath("update-schema", database, table),
		form:       url.Values{"schema": {enc}},
		idempotent: true,
	}, nil)
}
