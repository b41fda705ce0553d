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
	"time"
)

// Database describes a database.
type Database struct {
	Name       string
	Count      int64
	Permission string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type databaseJSON struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	Permission string `json:"permission"`
	CreatedAt  tdTime `json:"created_at"`
	UpdatedAt  tdTime `json:"updated_at"`
}

func databaseResource(name string) string { return "database:" + name }

// ListDatabases lists the databases visible to the API key.
func (c *Client) ListDatabases(ctx context.Context) ([]*Database, error) {
	var res struct {
		Databases []databaseJSON `json:"databases"`
	}
	err := c.call(ctx, &request{
		op:         "td.databases.list",
		method:     http.MethodGet,
		path:       "/v3/database/list",
		idempotent: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	dbs := make([]*Database, 0, len(res.Databases))
	for _, d := range res.Databases {
		dbs = append(dbs, &Database{
			Name:       d.Name,
			Count:      d.Count,
			Permission: d.Permission,
			CreatedAt:  time.Time(d.CreatedAt),
			UpdatedAt:  time.Time(d.UpdatedAt),
		})
	}
	return dbs, nil
}

// ListDatabaseNames lists the names of the databases visible to the API key.
func (c *Client) ListDatabaseNames(ctx context.Context) ([]string, error) {
	dbs, err := c.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dbs))
	for i, d := range dbs {
		names[i] = d.Name
	}
	return names, nil
}

// ExistsDatabase reports whether the named database exists.
func (c *Client) ExistsDatabase(ctx context.Context, name string) (bool, error) {
	names, err := c.ListDatabaseNames(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateDatabase creates a database. It fails with a conflict if the
// database exists.
func (c *Client) CreateDatabase(ctx context.Context, name string, opts ...CallOption) error {
	if err := validateName("td.databases.create", databaseResource(name), name); err != nil {
		return err
	}
	return c.call(ctx, &request{
		op:       "td.databases.create",
		resource: databaseResource(name),
		method:   http.MethodPost,
		path:     "/v3/database/create/" + url.PathEscape(name),
	}, nil, opts...)
}

// CreateDatabaseIfNotExists creates a database unless it exists.
func (c *Client) CreateDatabaseIfNotExists(ctx context.Context, name string) error {
	ok, err := c.ExistsDatabase(ctx, name)
	if err != nil || ok {
		return err
	}
	err = c.CreateDatabase(ctx, name, AtLeastOnce())
	if IsConflict(err) {
		return nil
	}
	return err
}

// DeleteDatabase deletes a database and its tables.
func (c *Client) DeleteDatabase(ctx context.Context, name string, opts ...CallOption) error {
	return c.call(ctx, &request{
		op:         "td.databases.delete",
		resource:   databaseResource(name),
		method:     http.MethodPost,
		path:       "/v3/database/delete/" + url.PathEscape(name),
		idempotent: true,
	}, nil, opts...)
}

// DeleteDatabaseIfExists deletes a database, succeeding if it does not exist.
func (c *Client) DeleteDatabaseIfExists(ctx context.Context, name string) error {
	err := c.DeleteDatabase(ctx, name)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// validateName checks database and table names client-side: 3 to 255
// characters of lower case letters, digits and underscores.
func validateName(op, resource, name string) error {
	if len(name) < 3 || len(name) > 255 {
		return validationError(op, resource, "name %q must be between 3 and 255 characters", name)
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return validationError(op, resource, "name %q may contain only lower case letters, digits and '_'", name)
		}
	}
	return nil
}
