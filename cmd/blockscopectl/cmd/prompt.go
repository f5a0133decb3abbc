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
	"strings"

	"github.com/influxdata/go-prompt"
	"github.com/spf13/cobra"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Issue queries and inspect their blocks in interactive mode",
	Long: `Interactive mode. Lines are SQL statements separated by ';', except:
  \blocks <table> <block>   tuples of one block read by the last query
  \visuals <table>          tuples read per block by the last query
  \stats on|off             print table I/O statistics after each query
  quit | exit               close the session and leave`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if stub.Token == "" {
			if connParams.DBName == "" || connParams.User == "" {
				return fmt.Errorf("pass --token or --dbname and --username")
			}
			ctx, cancel := newContext()
			_, err := stub.Connect(ctx, connParams)
			cancel()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			ownSession = true
		}
		runPromptMode()
		return nil
	},
}

// ownSession is set when the prompt opened the session itself.
var ownSession bool

func init() {
	addConnFlags(promptCmd, false)
}

func runPromptMode() {
	p := prompt.New(func(string) {}, completer,
		prompt.OptionPrefix("> "),
		prompt.OptionLivePrefix(livePrefix),
		prompt.OptionPrefixTextColor(prompt.Yellow),
	)

	// Run does not support multiple-line input, read line by line instead.
	for {
		inputStr := p.Input()
		for _, line := range strings.Split(inputStr, ";") {
			if !runLine(line) {
				return
			}
		}
	}
}

func livePrefix() (string, bool) {
	if connParams.DBName != "" {
		return fmt.Sprintf("[%s]%s> ", connParams.DBName, connParams.User), true
	}
	return "> ", true
}

func completer(d prompt.Document) []prompt.Suggest {
	if !strings.HasPrefix(d.TextBeforeCursor(), `\`) {
		return []prompt.Suggest{}
	}
	s := []prompt.Suggest{
		{Text: `\blocks`, Description: "tuples of one block"},
		{Text: `\visuals`, Description: "tuples read per block"},
		{Text: `\stats`, Description: "toggle statistics output"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

// runLine runs one statement or command and reports whether to keep going.
func runLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") {
		return true
	}
	if line == "quit" || line == "exit" {
		leave()
		return false
	}

	var err error
	if strings.HasPrefix(line, `\`) {
		err = runCommand(strings.Fields(line))
	} else {
		err = runQuery(line)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	return true
}

func runCommand(items []string) error {
	switch items[0] {
	case `\blocks`:
		if len(items) != 3 {
			return fmt.Errorf("expect `\\blocks $table $block`, but got: %v", strings.Join(items, " "))
		}
		block, err := strconv.ParseInt(items[2], 10, 64)
		if err != nil || block < 0 {
			return fmt.Errorf("block should be a non-negative integer, got %q", items[2])
		}
		return runBlocks(items[1], block, nil)
	case `\visuals`:
		if len(items) != 2 {
			return fmt.Errorf("expect `\\visuals $table`, but got: %v", strings.Join(items, " "))
		}
		return runVisuals(items[1], nil)
	case `\stats`:
		if len(items) != 2 || (items[1] != "on" && items[1] != "off") {
			return fmt.Errorf("expect `\\stats on|off`")
		}
		showStats = items[1] == "on"
		return nil
	}
	return fmt.Errorf("unknown command %s", items[0])
}

func leave() {
	if ownSession {
		ctx, cancel := newContext()
		defer cancel()
		if err := stub.Disconnect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "disconnect: %v\n", err)
		}
	}
	fmt.Fprintln(os.Stdout, "Bye ^_^")
}
