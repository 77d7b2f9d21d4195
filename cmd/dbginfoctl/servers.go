// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"golang.org/x/debuginfo/socket"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List live rpcdebuginfo servers for the current user",
	Long: `servers lists the pids of every process owned by the current user that
currently has a live debug-info RPC socket open (see the rpcdebuginfo and
socket packages), so a pid can be found for a future attach command
without the operator already knowing it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		live, err := socket.ListLive(os.Getuid())
		if err != nil {
			return err
		}
		if len(live) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no live debug-info servers for this user")
			return nil
		}
		for _, pid := range live {
			fmt.Fprintln(cmd.OutOrStdout(), pid)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
}
