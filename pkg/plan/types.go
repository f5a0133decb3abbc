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

import "strings"

// Explain is one entry of the document produced by
// `EXPLAIN (FORMAT JSON) <query>` on PostgreSQL.
type Explain struct {
	Plan          *Node   `json:"Plan"`
	PlanningTime  float64 `json:"Planning Time,omitempty"`
	ExecutionTime float64 `json:"Execution Time,omitempty"`
	Triggers      []any   `json:"Triggers,omitempty"`
}

// Node is a plan tree node. Only the keys the analyzer and the printer need
// are decoded, the rest of the document is ignored.
type Node struct {
	NodeType           string `json:"Node Type"`
	ParentRelationship string `json:"Parent Relationship,omitempty"`
	Strategy           string `json:"Strategy,omitempty"`
	JoinType           string `json:"Join Type,omitempty"`

	RelationName string `json:"Relation Name,omitempty"`
	Schema       string `json:"Schema,omitempty"`
	Alias        string `json:"Alias,omitempty"`
	IndexName    string `json:"Index Name,omitempty"`

	IndexCond   string `json:"Index Cond,omitempty"`
	RecheckCond string `json:"Recheck Cond,omitempty"`
	Filter      string `json:"Filter,omitempty"`
	HashCond    string `json:"Hash Cond,omitempty"`
	JoinFilter  string `json:"Join Filter,omitempty"`

	StartupCost       float64 `json:"Startup Cost,omitempty"`
	TotalCost         float64 `json:"Total Cost,omitempty"`
	PlanRows          float64 `json:"Plan Rows,omitempty"`
	PlanWidth         float64 `json:"Plan Width,omitempty"`
	ActualStartupTime float64 `json:"Actual Startup Time,omitempty"`
	ActualTotalTime   float64 `json:"Actual Total Time,omitempty"`
	ActualRows        float64 `json:"Actual Rows,omitempty"`
	ActualLoops       float64 `json:"Actual Loops,omitempty"`

	RowsRemovedByFilter float64 `json:"Rows Removed by Filter,omitempty"`
	SharedHitBlocks     int64   `json:"Shared Hit Blocks,omitempty"`
	SharedReadBlocks    int64   `json:"Shared Read Blocks,omitempty"`
	ExactHeapBlocks     int64   `json:"Exact Heap Blocks,omitempty"`
	LossyHeapBlocks     int64   `json:"Lossy Heap Blocks,omitempty"`

	Output []string `json:"Output,omitempty"`

	Plans []*Node `json:"Plans,omitempty"`
}

const scanMarker = "Scan"

// IsScan reports whether the node reads rows directly from a stored
// relation: Seq Scan, Index Scan, Index Only Scan, Bitmap Heap Scan, ...
func (n *Node) IsScan() bool {
	return n != nil && strings.Contains(n.NodeType, scanMarker)
}

// Reads reports whether the node reads relation. A "schema.table" name
// matches the schema reported by VERBOSE plans, or any node of that table
// when the plan carries no schema.
func (n *Node) Reads(relation string) bool {
	if n == nil || n.RelationName == "" {
		return false
	}
	schema, table, qualified := strings.Cut(relation, ".")
	if !qualified {
		return n.RelationName == relation
	}
	return n.RelationName == table && (n.Schema == "" || n.Schema == schema)
}

// Children returns the sub-plans feeding this node, in plan order.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	return n.Plans
}
