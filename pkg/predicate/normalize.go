// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package predicate rewrites residual scan filters so that they can be
// evaluated in a query reading the relation directly.
package predicate

import "strings"

// NoFilter marks a scan without a residual predicate.
const NoFilter = ""

// Normalize rewrites the alias qualifiers of filter into relation qualifiers.
//
// When relation already occurs in filter the filter is assumed to be
// qualified by the relation and is returned untouched. Otherwise every
// "<alias>." becomes "<relation>.". The rewrite is textual: an alias that is
// also a suffix of another identifier of the filter (alias "o" and column
// "foo.x") is rewritten too.
func Normalize(relation, alias, filter string) string {
	if filter == NoFilter {
		return filter
	}
	if alias == "" || alias == relation {
		return filter
	}
	if strings.Contains(filter, relation) {
		return filter
	}
	return strings.ReplaceAll(filter, alias+".", relation+".")
}
