// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List every object the registry has acquired",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "handle\trx\trw\tdebuginfo\tsymbols\tlines\tcfi\tfile")
		for _, r := range reg.Records() {
			fmt.Fprintf(w, "%d\t%v\t%v\t%v\t%d\t%d\t%d\t%s\n",
				r.Handle, r.RX, r.RW, r.HaveDebugInfo, len(r.Symbols), len(r.Lines), len(r.CFI), r.Filename)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(objectsCmd)
}
