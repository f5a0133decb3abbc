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

package tableview

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// ConvertToTable writes a result set to table. rows hold one slice per row in
// header order.
func ConvertToTable(header []string, rows [][]any, table *tablewriter.Table) error {
	table.SetHeader(header)
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(header))
		}
		curRow := make([]string, 0, len(row))
		for _, v := range row {
			curRow = append(curRow, FormatValue(v))
		}
		table.Append(curRow)
	}
	return nil
}

// ConvertSummaryToTable writes a block summary, ordered by block.
func ConvertSummaryToTable(summary map[int64]int64, table *tablewriter.Table) {
	table.SetHeader([]string{"block_id", "tuple_count"})
	blocks := make([]int64, 0, len(summary))
	for block := range summary {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	for _, block := range blocks {
		table.Append([]string{strconv.FormatInt(block, 10), strconv.FormatInt(summary[block], 10)})
	}
}

// FormatValue renders a scalar decoded from JSON or read from the database.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
