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

package analyzer

//go:generate mockgen -source conn.go -destination conn_mock.go -package analyzer

import (
	"context"
)

// Rows is a fully fetched result set. Values holds one slice per row, in
// Columns order.
type Rows struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

// Conn is the database side of an analysis, bound to one session.
type Conn interface {
	// RunExplain returns the JSON plan document of query, executing it.
	RunExplain(ctx context.Context, query string) ([]byte, error)
	RunQuery(ctx context.Context, sql string) (*Rows, error)
	// GetColumns lists the column names of relation in ordinal order.
	GetColumns(ctx context.Context, relation string) ([]string, error)
	// GetIOStats returns the per-table I/O counters of the database.
	GetIOStats(ctx context.Context) (*Rows, error)
	// GetRelationBlockCounts maps every user relation to its size in blocks.
	GetRelationBlockCounts(ctx context.Context) (map[string]int64, error)
	ResetStats(ctx context.Context) error
}
