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

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blockscope/blockscope/pkg/plan"
	"github.com/blockscope/blockscope/pkg/predicate"
	"github.com/blockscope/blockscope/pkg/status"
	"github.com/blockscope/blockscope/pkg/util/sqlbuilder"
	"github.com/blockscope/blockscope/pkg/util/stringutil"
)

const (
	DefaultSettleTimeout = 5 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
	// PostgreSQL 15+ backends flush pending I/O counters at most once a
	// second, so a shorter quiet period can miss a late flush.
	DefaultStableWindow = 1100 * time.Millisecond
)

// BlockSummary maps a block number to the count of its tuples satisfying the
// scan filter.
type BlockSummary map[int64]int64

// BlockReport is the outcome of a block analysis. ColumnNames lists the
// columns of the relation, ResultColumns the columns of Rows.
type BlockReport struct {
	ColumnNames   []string `json:"column_names"`
	ResultColumns []string `json:"result_columns"`
	Rows          [][]any  `json:"accessed"`
}

// RelationAccess describes one scan of the captured plan.
type RelationAccess struct {
	Relation    string `json:"relation"`
	Alias       string `json:"alias,omitempty"`
	Filter      string `json:"filter,omitempty"`
	TotalBlocks int64  `json:"total_blocks"`
}

// QueryReport is the outcome of running a query under EXPLAIN.
type QueryReport struct {
	Plan        json.RawMessage  `json:"results"`
	Explain     *plan.Explain    `json:"-"`
	PlanTree    []string         `json:"plan_tree"`
	Statistics  *Rows            `json:"statistics,omitempty"`
	BlockCounts map[string]int64 `json:"-"`
	Relations   []RelationAccess `json:"relations,omitempty"`
}

// Analyzer holds the analysis settings. It keeps no per-request state and
// may be shared between sessions.
type Analyzer struct {
	ScanPolicy plan.ScanPolicy
	// SettleTimeout bounds each wait for statistics to settle, after the
	// reset and after the EXPLAIN. Zero disables both waits.
	SettleTimeout time.Duration
	PollInterval  time.Duration
	// StableWindow is how long snapshots must stay unchanged to count as
	// settled. Zero accepts the first two equal consecutive snapshots.
	StableWindow time.Duration
	// Address decomposes row identifiers, sqlbuilder.CTID when nil.
	Address sqlbuilder.RowAddress
}

func New() *Analyzer {
	return &Analyzer{
		ScanPolicy:    plan.ScanPolicyLast,
		SettleTimeout: DefaultSettleTimeout,
		PollInterval:  DefaultPollInterval,
		StableWindow:  DefaultStableWindow,
		Address:       sqlbuilder.CTID,
	}
}

// BuildBlockQuery locates the scan of relation in the plan document and
// synthesizes the block statement for its filter. block is
// sqlbuilder.NoBlock for the relation-wide summary.
func (a *Analyzer) BuildBlockQuery(planDoc []byte, relation string, block int64) (string, error) {
	explain, err := plan.Load(planDoc)
	if err != nil {
		return "", err
	}
	record, err := plan.FindScan(explain.Plan, relation, a.ScanPolicy)
	if err != nil {
		return "", err
	}
	filter := predicate.Normalize(record.Relation, record.Alias, record.Filter)

	address := a.Address
	if address == nil {
		address = sqlbuilder.CTID
	}
	sql, err := sqlbuilder.NewBlockQueryBuilder().
		SetRelation(relation).
		SetFilter(filter).
		ForBlock(block).
		WithAddress(address).
		ToSQL()
	if err != nil {
		return "", status.Wrap(status.Code_BAD_REQUEST, err)
	}
	return sql, nil
}

// AnalyzeBlocks reports, for one block of relation, every tuple stored in it
// tagged with whether it satisfies the captured scan filter. With
// sqlbuilder.NoBlock it reports the per-block match counts instead.
func (a *Analyzer) AnalyzeBlocks(ctx context.Context, conn Conn, planDoc []byte, relation string, block int64) (*BlockReport, error) {
	sql, err := a.BuildBlockQuery(planDoc, relation, block)
	if err != nil {
		return nil, err
	}
	columns, err := conn.GetColumns(ctx, relation)
	if err != nil {
		return nil, err
	}
	rows, err := conn.RunQuery(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &BlockReport{
		ColumnNames:   columns,
		ResultColumns: rows.Columns,
		Rows:          rows.Values,
	}, nil
}

// AnalyzeVisuals returns the number of tuples satisfying the captured scan
// filter in every block of relation.
func (a *Analyzer) AnalyzeVisuals(ctx context.Context, conn Conn, planDoc []byte, relation string) (BlockSummary, error) {
	sql, err := a.BuildBlockQuery(planDoc, relation, sqlbuilder.NoBlock)
	if err != nil {
		return nil, err
	}
	rows, err := conn.RunQuery(ctx, sql)
	if err != nil {
		return nil, err
	}
	summary := make(BlockSummary, len(rows.Values))
	for _, row := range rows.Values {
		if len(row) < 2 {
			return nil, status.Newf(status.Code_INTERNAL, "block summary row has %d columns, want 2", len(row))
		}
		block, err := toInt64(row[0])
		if err != nil {
			return nil, status.Wrap(status.Code_INTERNAL, fmt.Errorf("block id: %w", err))
		}
		count, err := toInt64(row[1])
		if err != nil {
			return nil, status.Wrap(status.Code_INTERNAL, fmt.Errorf("tuple count: %w", err))
		}
		summary[block] = count
	}
	return summary, nil
}

// AnalyzeQuery resets the I/O statistics, runs query under EXPLAIN and
// correlates the plan with the statistics gathered during its execution.
//
// When the statistics cannot be read the returned report still carries the
// plan, together with a Code_STATISTICS_UNAVAILABLE error.
func (a *Analyzer) AnalyzeQuery(ctx context.Context, conn Conn, query string) (*QueryReport, error) {
	query = stringutil.CompactWhitespace(query)
	if query == "" {
		return nil, status.New(status.Code_BAD_REQUEST, "query is empty")
	}

	var statsErr error
	if err := conn.ResetStats(ctx); err != nil {
		statsErr = err
	} else if err := a.waitStatsSettled(ctx, conn); err != nil {
		if ctx.Err() != nil {
			return nil, status.Wrap(status.Code_QUERY_EXECUTION_FAILED, ctx.Err())
		}
		statsErr = err
	}

	doc, err := conn.RunExplain(ctx, query)
	if err != nil {
		return nil, err
	}
	explain, err := plan.Load(doc)
	if err != nil {
		return nil, err
	}
	report := &QueryReport{
		Plan:     json.RawMessage(doc),
		Explain:  explain,
		PlanTree: plan.Render(explain.Plan),
	}
	logrus.Debugf("EXPLAIN plan tree:\n%s", strings.Join(report.PlanTree, "\n"))

	// counters of the EXPLAIN ANALYZE itself may still be pending
	if statsErr == nil {
		statsErr = a.waitStatsSettled(ctx, conn)
	}
	if statsErr == nil {
		statsErr = a.Correlate(ctx, conn, report)
	}
	if statsErr != nil {
		logrus.Warnf("statistics unavailable: %v", statsErr)
		return report, status.Wrap(status.Code_STATISTICS_UNAVAILABLE, statsErr)
	}
	return report, nil
}

// Correlate attaches the I/O statistics and relation sizes to report, and
// lists every scan of the plan with the size of the scanned relation.
func (a *Analyzer) Correlate(ctx context.Context, conn Conn, report *QueryReport) error {
	stats, err := conn.GetIOStats(ctx)
	if err != nil {
		return err
	}
	counts, err := conn.GetRelationBlockCounts(ctx)
	if err != nil {
		return err
	}
	report.Statistics = stats
	report.BlockCounts = counts

	report.Relations = nil
	if report.Explain == nil {
		return nil
	}
	return plan.WalkTree(report.Explain.Plan, func(n *plan.Node, _ int) error {
		if !n.IsScan() || n.RelationName == "" {
			return nil
		}
		report.Relations = append(report.Relations, RelationAccess{
			Relation:    n.RelationName,
			Alias:       n.Alias,
			Filter:      predicate.Normalize(n.RelationName, n.Alias, n.Filter),
			TotalBlocks: counts[n.RelationName],
		})
		return nil
	})
}

// waitStatsSettled polls the I/O statistics until they stay unchanged for
// StableWindow. Running out of time is not an error: the caller then goes on
// with whatever has been flushed so far.
func (a *Analyzer) waitStatsSettled(ctx context.Context, conn Conn) error {
	if a.SettleTimeout <= 0 {
		return nil
	}
	interval := a.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.NewTimer(a.SettleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *Rows
	var unchangedSince time.Time
	for {
		current, err := conn.GetIOStats(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		if last != nil && reflect.DeepEqual(last, current) {
			if now.Sub(unchangedSince) >= a.StableWindow {
				return nil
			}
		} else {
			last = current
			unchangedSince = now
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			logrus.Warnf("statistics did not settle within %v, continuing", a.SettleTimeout)
			return nil
		case <-ticker.C:
		}
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported value %v of type %T", v, v)
	}
}
