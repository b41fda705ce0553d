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
	"encoding/json"
	"fmt"
	"strings"
)

// Type is a column type: a PrimitiveType or an *ArrayType.
type Type interface {
	String() string
	isType()
}

// PrimitiveType is a scalar column type.
type PrimitiveType string

const (
	StringType PrimitiveType = "string"
	IntType    PrimitiveType = "int"
	LongType   PrimitiveType = "long"
	DoubleType PrimitiveType = "double"
)

func (t PrimitiveType) String() string { return string(t) }
func (PrimitiveType) isType()          {}

// ArrayType is an array of Elem.
type ArrayType struct {
	Elem Type
}

func (t *ArrayType) String() string { return "array<" + t.Elem.String() + ">" }
func (*ArrayType) isType()          {}

// Column is one column of a table schema. Key is the column's alias in
// queries; it defaults to Name.
type Column struct {
	Name string
	Type Type
	Key  string
}

func (c Column) String() string {
	return c.Name + ":" + c.Type.String()
}

// Schema is an ordered list of columns.
type Schema []Column

// String renders the schema as comma-separated "name:type" pairs.
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

const schemaOp = "td.schema.parse"

// ParseType parses a type string such as "long" or "array<array<int>>".
// Unknown or unbalanced types are KindValidation errors.
func ParseType(s string) (Type, error) {
	t, rest, err := parseType(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, validationError(schemaOp, s, "unexpected %q after type", rest)
	}
	return t, nil
}

// parseType consumes one type from the front of s and returns the remainder.
func parseType(s string) (Type, string, error) {
	const arrayPrefix = "array<"
	if strings.HasPrefix(s, arrayPrefix) {
		elem, rest, err := parseType(strings.TrimSpace(s[len(arrayPrefix):]))
		if err != nil {
			return nil, "", err
		}
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, ">") {
			return nil, "", validationError(schemaOp, s, "missing '>' in array type")
		}
		return &ArrayType{Elem: elem}, rest[1:], nil
	}
	end := strings.IndexAny(s, "<>")
	if end < 0 {
		end = len(s)
	}
	name := strings.TrimSpace(s[:end])
	for _, p := range []PrimitiveType{StringType, IntType, LongType, DoubleType} {
		if name == string(p) {
			return p, s[end:], nil
		}
	}
	if name == "" {
		return nil, "", validationError(schemaOp, s, "missing type")
	}
	return nil, "", validationError(schemaOp, name, "unknown type %q", name)
}

// ParseColumn parses a "name:type" pair.
func ParseColumn(s string) (Column, error) {
	name, typ, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Column{}, validationError(schemaOp, s, "column must be written as name:type")
	}
	t, err := ParseType(typ)
	if err != nil {
		return Column{}, err
	}
	return Column{Name: name, Type: t, Key: name}, nil
}

// ParseSchema parses a list of "name:type" pairs.
func ParseSchema(pairs ...string) (Schema, error) {
	s := make(Schema, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		c, err := ParseColumn(p)
		if err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, validationError(schemaOp, c.Name, "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		s = append(s, c)
	}
	return s, nil
}

// marshalSchema encodes s as the API's [[name, type, key], ...] JSON form.
func marshalSchema(s Schema) (string, error) {
	rows := make([][]string, len(s))
	for i, c := range s {
		if c.Type == nil {
			return "", validationError("td.schema.marshal", c.Name, "column has no type")
		}
		key := c.Key
		if key == "" {
			key = c.Name
		}
		rows[i] = []string{c.Name, c.Type.String(), key}
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// unmarshalSchema decodes the API's schema JSON. Types this client does not
// know are kept verbatim as a PrimitiveType rather than rejected.
func unmarshalSchema(raw string) (Schema, error) {
	if raw == "" {
		return nil, nil
	}
	var rows [][]string
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, err
	}
	s := make(Schema, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			return nil, fmt.Errorf("schema row %q has fewer than 2 fields", r)
		}
		t, err := ParseType(r[1])
		if err != nil {
			t = PrimitiveType(r[1])
		}
		c := Column{Name: r[0], Type: t, Key: r[0]}
		if len(r) > 2 && r[2] != "" {
			c.Key = r[2]
		}
		s = append(s, c)
	}
	return s, nil
}
