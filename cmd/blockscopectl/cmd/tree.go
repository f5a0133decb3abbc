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

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/pkg/plan"
)

var treeCmd = &cobra.Command{
	Use:   "tree <plan file>",
	Short: "Print the node tree of a saved EXPLAIN (FORMAT JSON) document",
	Args:  cobra.MatchAll(cobra.ExactArgs(1)),
	// works offline
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	RunE: func(cmd *cobra.Command, args []string) error {
		explain, err := plan.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Print(plan.PrintTree(explain.Plan))
		fmt.Printf("%d nodes\n", plan.CountNodes(explain.Plan))
		return nil
	},
}
