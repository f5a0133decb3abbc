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
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockscope/blockscope/pkg/client"
	"github.com/blockscope/blockscope/pkg/pgconn"
)

const tokenEnv = "BLOCKSCOPE_TOKEN"

var (
	host     string
	token    string
	timeoutS int

	connParams pgconn.ConnParams

	stub *client.Client

	rootCmd = &cobra.Command{
		Use:   "blockscopectl",
		Short: "terminal client for blockscope",
		Long:  `Blockscopectl submits queries to a blockscope server and shows which heap blocks and tuples their scans read.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			stub = client.NewClient(host, &http.Client{Timeout: time.Duration(timeoutS) * time.Second})
			stub.Token = token
		},
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version string) {
	rootCmd.Version = version
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:5000", "blockscope server host")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "session token returned by connect, defaults to $"+tokenEnv)
	rootCmd.PersistentFlags().IntVar(&timeoutS, "timeout", 300, "timeout seconds for http requests to blockscope")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(visualsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(promptCmd)
}

// addConnFlags registers the database flags on commands that open a session.
func addConnFlags(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&connParams.DBName, "dbname", "", "database name")
	cmd.Flags().StringVar(&connParams.User, "username", "", "database user")
	cmd.Flags().StringVar(&connParams.Password, "password", "", "database password")
	cmd.Flags().StringVar(&connParams.Host, "db-host", "localhost", "database host as seen by the server")
	cmd.Flags().IntVar(&connParams.Port, "db-port", 5432, "database port")
	if required {
		cmd.MarkFlagRequired("dbname")
		cmd.MarkFlagRequired("username")
	}
}

func requireToken() error {
	if stub.Token == "" {
		return fmt.Errorf("no session token, run connect first and pass --token or set $%s", tokenEnv)
	}
	return nil
}

func newContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(timeoutS)*time.Second)
}
