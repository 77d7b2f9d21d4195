// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dbginfoctl is a command-line tool for exploring the debug
// information a registry has acquired from a set of object files: symbol
// and line lookups, one-step stack unwinds, and an interactive shell.
// Run "dbginfoctl help" for a list of commands.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/diag"
	"golang.org/x/debuginfo/objfile/elfreader"
	"golang.org/x/debuginfo/option"
	"golang.org/x/debuginfo/query"
	"golang.org/x/debuginfo/registry"
)

var (
	objectPaths []string
	loadBase    uint64

	opts *option.Bag
	reg  *registry.Registry
	eng  *query.Engine
)

// hugeSpan is a generous upper bound used for the two synthetic
// mappings (RX then RW, back to back) each --object is registered
// under. The RX range only gates which record a probed address is
// searched in; within it, lookups binary-search the object's own
// tables, so an oversized span is harmless with a single object per
// base address. Both mappings must be delivered before the record is
// eligible for debug-info reading.
const hugeSpan = 1 << 32

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dbginfoctl",
	Short: "Explore acquired debug information for a set of object files",
	Long: `dbginfoctl loads one or more object files into a debug-info registry
and lets you query the result: symbol and line lookups by address, one-step
stack unwinds against a CFI table, and a listing of every acquired object.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts = option.New()
		if pat, _ := cmd.Flags().GetString("trace-symtab-pattern"); pat != "" {
			opts.Viper().Set("trace-symtab-pattern", pat)
		}
		if v, _ := cmd.Flags().GetInt("verbosity"); v != 0 {
			opts.Viper().Set("verbosity", v)
		}
		reg = registry.New([]registry.Reader{elfreader.Reader{}}, nil, nil, core.DefaultPlatform{})
		reg.SetLogger(diag.New(cmd.ErrOrStderr(), nil, opts.Verbosity()))
		eng = query.NewEngine(reg, nil)
		reg.SetCache(eng)

		for _, p := range objectPaths {
			rx := core.Mapping{
				Min:  core.Address(loadBase),
				Max:  core.Address(loadBase) + hugeSpan,
				Perm: core.Read | core.Exec,
			}
			rw := core.Mapping{
				Min:  core.Address(loadBase) + hugeSpan,
				Max:  core.Address(loadBase) + 2*hugeSpan,
				Perm: core.Read | core.Write,
			}
			reg.NotifyMap(rx, p, "")
			reg.NotifyMap(rw, p, "")
		}
		return nil
	},
}

// Execute adds all child commands to rootCmd and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&objectPaths, "object", nil, "object file to load (repeatable)")
	rootCmd.PersistentFlags().Uint64Var(&loadBase, "base", 0, "address each --object is considered mapped at")
	rootCmd.PersistentFlags().String("trace-symtab-pattern", "", "log symbol-table reads for objects whose name matches this regexp")
	rootCmd.PersistentFlags().Int("verbosity", 0, "diagnostic verbosity; 1 and above log reader errors")
}

func main() {
	Execute()
}
