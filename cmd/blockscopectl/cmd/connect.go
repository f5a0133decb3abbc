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
)

var (
	connectCmd = &cobra.Command{
		Use:   "connect",
		Short: "Open a session on a database and print its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := newContext()
			defer cancel()
			token, err := stub.Connect(ctx, connParams)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}

	disconnectCmd = &cobra.Command{
		Use:   "disconnect",
		Short: "Close the session of the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			ctx, cancel := newContext()
			defer cancel()
			if err := stub.Disconnect(ctx); err != nil {
				return fmt.Errorf("disconnect: %w", err)
			}
			fmt.Println("disconnected")
			return nil
		},
	}
)

func init() {
	addConnFlags(connectCmd, true)
}
