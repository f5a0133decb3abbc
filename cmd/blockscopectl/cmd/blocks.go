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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/pkg/util/tableview"
)

var (
	planFile string

	blocksCmd = &cobra.Command{
		Use:   "blocks <table> <block>",
		Short: "Show the tuples of one block of a table read by the last query",
		Args:  cobra.MatchAll(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			block, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || block < 0 {
				return fmt.Errorf("block should be a non-negative integer, got %q", args[1])
			}
			planDoc, err := readPlanFile()
			if err != nil {
				return err
			}
			return runBlocks(args[0], block, planDoc)
		},
	}

	visualsCmd = &cobra.Command{
		Use:   "visuals <table>",
		Short: "Show how many tuples the last query read from each block of a table",
		Args:  cobra.MatchAll(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			planDoc, err := readPlanFile()
			if err != nil {
				return err
			}
			return runVisuals(args[0], planDoc)
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{blocksCmd, visualsCmd} {
		cmd.Flags().StringVar(&planFile, "plan-file", "", "analyze this EXPLAIN (FORMAT JSON) document instead of the session's last plan")
	}
}

func readPlanFile() ([]byte, error) {
	if planFile == "" {
		return nil, nil
	}
	return os.ReadFile(planFile)
}

func runBlocks(table string, block int64, planDoc []byte) error {
	startTime := time.Now()
	ctx, cancel := newContext()
	defer cancel()
	report, err := stub.Blocks(ctx, table, block, planDoc)
	if err != nil {
		return fmt.Errorf("blocks: %w", err)
	}
	view := newTable()
	if err := tableview.ConvertToTable(report.ResultColumns, report.Rows, view); err != nil {
		return fmt.Errorf("blocks: %w", err)
	}
	fmt.Printf("%v rows in set: (%v)\n", view.NumLines(), time.Since(startTime))
	view.Render()
	return nil
}

func runVisuals(table string, planDoc []byte) error {
	ctx, cancel := newContext()
	defer cancel()
	summary, err := stub.Visuals(ctx, table, planDoc)
	if err != nil {
		return fmt.Errorf("visuals: %w", err)
	}
	view := newTable()
	tableview.ConvertSummaryToTable(summary, view)
	fmt.Printf("%v blocks of %s\n", len(summary), table)
	view.Render()
	return nil
}
