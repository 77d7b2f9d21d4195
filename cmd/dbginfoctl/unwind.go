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
	iunwind "golang.org/x/debuginfo/unwind"
)

var unwindCmd = &cobra.Command{
	Use:   "unwind <ip> <sp> <fp>",
	Short: "Unwind one stack frame given a register triple",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var regs [3]uint64
		for i, a := range args {
			v, err := strconv.ParseUint(a, 0, 64)
			if err != nil {
				return fmt.Errorf("parsing register %q: %w", a, err)
			}
			regs[i] = v
		}
		cur := iunwind.Frame{IP: regs[0], SP: regs[1], FP: regs[2]}
		accessible := core.AccessibleRange{Lo: 0, Hi: core.Address(^uint64(0))}
		next, ok := iunwind.Step(eng, cur, accessible, noMem)
		if !ok {
			color.New(color.FgRed).Fprintln(cmd.OutOrStdout(), "unwind failed: no CFI covers this address, or a rule could not be applied")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ip=%#x sp=%#x fp=%#x\n", next.IP, next.SP, next.FP)
		return nil
	},
}

// noMem always fails: dbginfoctl has no live process to read memory from,
// so only CFI rows whose rules never dereference memory can be unwound.
func noMem(addr uint64, n int) (uint64, bool) { return 0, false }

func init() {
	rootCmd.AddCommand(unwindCmd)
}
