// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dbginfo-tui is a read-only terminal browser over a debug-info
// registry: a list of acquired objects on the left, and the selected
// object's sections, symbol count, line count and CFI row count on the
// right. It takes the same --object/--base flags as dbginfoctl.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/diag"
	"golang.org/x/debuginfo/objfile"
	"golang.org/x/debuginfo/objfile/elfreader"
	"golang.org/x/debuginfo/registry"
)

const hugeSpan = 1 << 32

func main() {
	var objectPaths stringList
	var base uint64
	var verbosity int
	flag.Var(&objectPaths, "object", "object file to load (repeatable)")
	flag.Uint64Var(&base, "base", 0, "address each --object is considered mapped at")
	flag.IntVar(&verbosity, "verbosity", 0, "diagnostic verbosity; 1 and above log reader errors")
	flag.Parse()

	reg := registry.New([]registry.Reader{elfreader.Reader{}}, nil, nil, core.DefaultPlatform{})
	// Logged to stderr before the tcell screen takes over the terminal,
	// so reader diagnostics are visible without corrupting the TUI.
	reg.SetLogger(diag.New(os.Stderr, nil, verbosity))
	for _, p := range objectPaths {
		rx := core.Mapping{Min: core.Address(base), Max: core.Address(base) + hugeSpan, Perm: core.Read | core.Exec}
		rw := core.Mapping{Min: core.Address(base) + hugeSpan, Max: core.Address(base) + 2*hugeSpan, Perm: core.Read | core.Write}
		reg.NotifyMap(rx, p, "")
		reg.NotifyMap(rw, p, "")
	}

	app := tview.NewApplication()
	list := tview.NewList().ShowSecondaryText(false)
	detail := tview.NewTextView().SetDynamicColors(true).SetWordWrap(true)
	detail.SetBorder(true).SetTitle("object")

	records := reg.Records()
	for i, r := range records {
		r := r
		list.AddItem(r.Filename, "", 0, func() {
			showDetail(detail, r)
		})
		if i == 0 {
			showDetail(detail, r)
		}
	}
	list.SetBorder(true).SetTitle("objects")

	flex := tview.NewFlex().
		AddItem(list, 0, 1, true).
		AddItem(detail, 0, 2, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	if err := app.SetRoot(flex, true).SetFocus(list).Run(); err != nil {
		fmt.Println(err)
	}
}

func showDetail(detail *tview.TextView, r *objfile.Record) {
	detail.Clear()
	fmt.Fprintf(detail, "[yellow]handle[white] %d\n", r.Handle)
	fmt.Fprintf(detail, "[yellow]rx[white] %v\n[yellow]rw[white] %v\n", r.RX, r.RW)
	fmt.Fprintf(detail, "[yellow]debuginfo acquired[white] %v\n", r.HaveDebugInfo)
	fmt.Fprintf(detail, "[yellow]symbols[white] %d\n", len(r.Symbols))
	fmt.Fprintf(detail, "[yellow]lines[white] %d\n", len(r.Lines))
	fmt.Fprintf(detail, "[yellow]cfi rows[white] %d (range %#x-%#x)\n", len(r.CFI), r.CFIMin, r.CFIMax)
	fmt.Fprintf(detail, "[yellow]fpo rows[white] %d\n", len(r.FPO))
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
