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

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/pkg/client"
	"github.com/blockscope/blockscope/pkg/util/tableview"
)

var (
	showStats bool

	queryCmd = &cobra.Command{
		Use:   "query <sql query>",
		Short: "Run a query and show its plan and the blocks of each scanned relation",
		Args:  cobra.MatchAll(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			return runQuery(args[0])
		},
	}
)

func init() {
	queryCmd.Flags().BoolVar(&showStats, "stats", false, "print the table I/O statistics gathered for the query")
}

func runQuery(query string) error {
	startTime := time.Now()
	ctx, cancel := newContext()
	defer cancel()
	response, err := stub.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	printQueryResponse(response, time.Since(startTime))
	return nil
}

func printQueryResponse(response *client.QueryResponse, cost time.Duration) {
	fmt.Printf("[plan] (%v)\n", cost)
	for _, line := range response.PlanTree {
		fmt.Println(line)
	}

	if len(response.Relations) > 0 {
		fmt.Println("[relations]")
		table := newTable()
		table.SetHeader([]string{"relation", "alias", "filter", "total_blocks"})
		for _, rel := range response.Relations {
			table.Append([]string{rel.Relation, rel.Alias, rel.Filter, strconv.FormatInt(rel.TotalBlocks, 10)})
		}
		table.Render()
	}

	if response.StatisticsError != "" {
		fmt.Printf("Warning : statistics unavailable: %v\n", response.StatisticsError)
		return
	}
	if len(response.Count) > 0 && len(response.Count[0]) > 0 {
		fmt.Println("[block counts]")
		counts := response.Count[0]
		relations := make([]string, 0, len(counts))
		for rel := range counts {
			relations = append(relations, rel)
		}
		sort.Strings(relations)
		table := newTable()
		table.SetHeader([]string{"relation", "blocks"})
		for _, rel := range relations {
			table.Append([]string{rel, strconv.FormatInt(counts[rel], 10)})
		}
		table.Render()
	}
	if showStats && response.Statistics != nil {
		fmt.Println("[statistics]")
		table := newTable()
		if err := tableview.ConvertToTable(response.Statistics.Columns, response.Statistics.Values, table); err != nil {
			fmt.Fprintf(os.Stderr, "[statistics]convertToTable with err:%v\n", err)
			return
		}
		table.Render()
	}
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	return table
}
