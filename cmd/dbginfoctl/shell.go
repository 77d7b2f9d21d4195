// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"golang.org/x/debuginfo/core"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive read-eval-print loop over describe/objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := readline.New("dbginfo> ")
		if err != nil {
			return err
		}
		defer rl.Close()

		for {
			line, err := rl.Readline()
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			if err != nil {
				return err
			}
			runShellLine(rl, strings.TrimSpace(line))
		}
	},
}

func runShellLine(rl *readline.Instance, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	errc := color.New(color.FgRed)
	switch fields[0] {
	case "describe":
		if len(fields) != 2 {
			errc.Fprintln(rl.Stdout(), "usage: describe <addr>")
			return
		}
		addr, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			errc.Fprintln(rl.Stdout(), err)
			return
		}
		d := eng.DescribeCodeAddress(core.Address(addr))
		if !d.Found {
			fmt.Fprintln(rl.Stdout(), "not found")
			return
		}
		fmt.Fprintf(rl.Stdout(), "%s at %s/%s:%d (%s)\n", d.Function, d.Dir, d.File, d.Line, d.ObjectName)
	case "objects":
		for _, r := range reg.Records() {
			fmt.Fprintf(rl.Stdout(), "%d  %s  debuginfo=%v\n", r.Handle, r.Filename, r.HaveDebugInfo)
		}
	case "help":
		fmt.Fprintln(rl.Stdout(), "commands: describe <addr>, objects, help, quit")
	case "quit", "exit":
		rl.Close()
	default:
		errc.Fprintf(rl.Stdout(), "unknown command %q (try 'help')\n", fields[0])
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
