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

package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockscope/blockscope/pkg/status"
)

func TestLoad(t *testing.T) {
	r := require.New(t)

	// array form, as returned by EXPLAIN (FORMAT JSON)
	{
		explain, err := LoadFile(filepath.Join("testdata", "self_join.json"))
		r.NoError(err)
		r.NotNil(explain.Plan)
		r.Equal("Hash Join", explain.Plan.NodeType)
		r.Len(explain.Plan.Plans, 2)
		r.Equal(1.034, explain.ExecutionTime)
		r.Equal("orders_pkey", explain.Plan.Plans[1].Plans[0].IndexName)
	}

	// bare object
	{
		explain, err := Load([]byte(`{"Plan": {"Node Type": "Seq Scan", "Relation Name": "orders", "Alias": "o", "Filter": "o.amount > 100", "Plans": []}}`))
		r.NoError(err)
		r.Equal("orders", explain.Plan.RelationName)
		r.Equal("o", explain.Plan.Alias)
		r.Empty(explain.Plan.Children())
	}
}

func TestLoadUnavailable(t *testing.T) {
	r := require.New(t)

	docs := map[string]string{
		"empty":         "   ",
		"empty array":   "[]",
		"malformed":     `[{"Plan": `,
		"missing key":   `[{"Planning Time": 0.1}]`,
		"null plan":     `{"Plan": null}`,
		"not an object": `["Seq Scan"]`,
	}
	for name, doc := range docs {
		_, err := Load([]byte(doc))
		r.Error(err, name)
		r.True(status.Is(err, status.Code_PLAN_UNAVAILABLE), "%s: %v", name, err)
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "queryplan.json"))
	r.True(status.Is(err, status.Code_PLAN_UNAVAILABLE))
}

func TestLoadFileRoundTrip(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "plan.json")
	r.NoError(os.WriteFile(path, []byte(`[{"Plan": {"Node Type": "Aggregate", "Plans": [{"Node Type": "Seq Scan", "Relation Name": "lineitem", "Alias": "lineitem"}]}}]`), 0o600))

	explain, err := LoadFile(path)
	r.NoError(err)
	r.Equal(2, CountNodes(explain.Plan))
}
