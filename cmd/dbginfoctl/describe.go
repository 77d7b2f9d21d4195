// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"golang.org/x/debuginfo/core"
)

var describeCmd = &cobra.Command{
	Use:   "describe <addr>",
	Short: "Describe a code address: object, function, file and line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return fmt.Errorf("parsing address %q: %w", args[0], err)
		}
		d := eng.DescribeCodeAddress(core.Address(addr))
		if !d.Found {
			color.New(color.FgRed).Fprintln(cmd.OutOrStdout(), "not found")
			return nil
		}
		color.New(color.FgCyan).Fprintf(cmd.OutOrStdout(), "%#x", addr)
		fmt.Fprintf(cmd.OutOrStdout(), " in ")
		color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "%s", d.Function)
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)\n  at %s/%s:%d\n", d.ObjectName, d.Dir, d.File, d.Line)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
