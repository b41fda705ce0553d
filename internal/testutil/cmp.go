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

// Package testutil contains helper functions for writing tests.
package testutil

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Equal tests two values for equality. Unexported fields are ignored so that
// client handles embedded in returned values do not affect the comparison.
func Equal(x, y interface{}, opts ...cmp.Option) bool {
	return cmp.Equal(x, y, withDefaults(opts)...)
}

// Diff reports the differences between two values, using the same options as
// Equal.
func Diff(x, y interface{}, opts ...cmp.Option) string {
	return cmp.Diff(x, y, withDefaults(opts)...)
}

func withDefaults(opts []cmp.Option) []cmp.Option {
	return append([]cmp.Option{cmpopts.EquateEmpty(), ignoreUnexported()}, opts...)
}

func ignoreUnexported() cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		sf, ok := p.Index(-1).(cmp.StructField)
		if !ok {
			return false
		}
		r := []rune(sf.Name())
		return len(r) > 0 && r[0] >= 'a' && r[0] <= 'z'
	}, cmp.Ignore())
}
