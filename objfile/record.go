// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package objfile implements the per-loaded-image object record:
// identity, mapping descriptors, section descriptors, the
// canonicalised symbol/line/CFI/FPO tables, the string arena, and the
// variable-scope tree, plus the canonicalisation pass that every
// record goes through exactly once after reading.
package objfile

import (
	"fmt"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/dwarf/vartree"
	"golang.org/x/debuginfo/internal/dtab"
	"golang.org/x/debuginfo/internal/strtab"
)

// Symbol is one symbol-table entry.
type Symbol struct {
	Addr   core.Address
	TOC    uint64 // table-of-contents pointer, 0 if the architecture has none
	Size   uint64
	Name   *string
	IsText bool
}

// Line is one line-table entry. Span and
// SourceLine are stored as plain ints here rather than bit-packed, since
// this module's tables are plain Go slices, not a fixed-width C layout;
// Canonicalize's coalescing clamps a merged span at maxLineSpan rather
// than letting it grow past what the bit packing could hold.
type Line struct {
	Addr       core.Address
	Span       uint32
	SourceLine uint32
	File       *string
	Dir        *string
}

// maxLineSpan caps a line record's span; coalescing clamps rather than
// overflowing past it.
const maxLineSpan = 1<<16 - 1

// TypeRef and LocExpr are admin-list entries referenced by variables,
// kept solely so every object is freed exactly once.
type TypeRef struct{ Name *string }
type LocExpr struct{ ExprIdx int }

// Sections holds the optional section descriptors: each a flag plus
// actual base and size.
type Sections struct {
	Text, Data, SData, BSS, SBSS, RoData, PLT, GOT, GOTPLT, OPD SectionDesc
	TextBias                                                   int64
}

// SectionDesc is a single optional section descriptor.
type SectionDesc struct {
	Present    bool
	Base, Size uint64
}

// PDBBias holds the four independent bias values PDB-sourced objects
// use for their symbol, line, second-generation line, and FPO tables.
// The four are frequently equal in practice but are computed
// separately; collapsing them would bake in an equality nothing
// guarantees.
type PDBBias [4]int64

// Record is one loaded image's object record.
type Record struct {
	// Identity.
	Filename   string
	MemberName string // archive member, if any
	SOName     string // shared-object name, if any
	Handle     uint64 // set at acquisition: monotonic from 1, never reused; 0 before

	// Mapping descriptors. At most one of each kind.
	RX, RW *core.Mapping

	Sections Sections
	PDBBias  PDBBias

	Symbols []Symbol
	Lines   []Line
	CFI     []frame.CfSI
	FPO     []frame.CfSI // optional, PDB-sourced; empty when absent

	CFIMin, CFIMax core.Address

	HaveDebugInfo bool

	Strings *strtab.Arena
	Vars    *vartree.Tree
	Arena   *frame.ExprArena

	Types []TypeRef
	Locs  []LocExpr

	// mark is the registry's transient overlap-sweep bit; it is
	// meaningless outside a sweep in progress.
	mark bool
}

// NewRecord allocates a record with its owned arenas initialised; the
// registry fills in identity and mapping descriptors as mappings arrive.
func NewRecord(filename string, handle uint64) *Record {
	return &Record{
		Filename: filename,
		Handle:   handle,
		Strings:  strtab.New(),
		Vars:     vartree.NewTree(),
		Arena:    frame.NewExprArena(),
	}
}

// Ready reports whether both mapping kinds are present, the
// precondition for attempting a read.
func (r *Record) Ready() bool { return r.RX != nil && r.RW != nil }

// Canonicalize sorts each table by primary address, coalesces adjacent
// identical-payload records, truncates overlaps in the line and CFI
// tables, drops zero-length records, and computes the CFI min/max
// summary. It must run exactly once, after reading succeeds and before
// HaveDebugInfo is set.
func (r *Record) Canonicalize() {
	r.canonicalizeSymbols()
	r.canonicalizeLines()
	r.canonicalizeCFI()
	r.canonicalizeFPO()
}

func (r *Record) canonicalizeSymbols() {
	t := dtab.IndexTable{
		Len:      func() int { return len(r.Symbols) },
		Less:     func(i, j int) bool { return r.Symbols[i].Addr < r.Symbols[j].Addr },
		Swap:     func(i, j int) { r.Symbols[i], r.Symbols[j] = r.Symbols[j], r.Symbols[i] },
		Truncate: func(n int) { r.Symbols = r.Symbols[:n] },
	}
	t.Sort()
	t.DropZeroLength(func(i int) bool { return r.Symbols[i].Size == 0 })
	// No duplicate address entries after the zero-length pass.
	t.Coalesce(
		func(i, j int) bool { return r.Symbols[i].Addr == r.Symbols[j].Addr },
		func(i, j int) {
			if r.Symbols[j].Size > r.Symbols[i].Size {
				r.Symbols[i].Size = r.Symbols[j].Size
			}
		},
	)
}

func (r *Record) canonicalizeLines() {
	t := dtab.IndexTable{
		Len:      func() int { return len(r.Lines) },
		Less:     func(i, j int) bool { return r.Lines[i].Addr < r.Lines[j].Addr },
		Swap:     func(i, j int) { r.Lines[i], r.Lines[j] = r.Lines[j], r.Lines[i] },
		Truncate: func(n int) { r.Lines = r.Lines[:n] },
	}
	t.Sort()
	t.Coalesce(
		func(i, j int) bool {
			a, b := r.Lines[i], r.Lines[j]
			return a.Addr.Add(int64(a.Span)) == b.Addr && a.SourceLine == b.SourceLine &&
				a.File == b.File && a.Dir == b.Dir
		},
		func(i, j int) {
			sum := uint32(r.Lines[i].Span) + uint32(r.Lines[j].Span)
			if sum > maxLineSpan {
				sum = maxLineSpan
			}
			r.Lines[i].Span = sum
		},
	)
	dtab.TruncateOverlaps(len(r.Lines),
		func(i int) uint64 { return uint64(r.Lines[i].Addr) },
		func(i int) uint64 { return uint64(r.Lines[i].Addr) + uint64(r.Lines[i].Span) },
		func(i int, newEnd uint64) { r.Lines[i].Span = uint32(newEnd - uint64(r.Lines[i].Addr)) },
	)
	t.DropZeroLength(func(i int) bool { return r.Lines[i].Span == 0 })
}

func (r *Record) canonicalizeCFI() {
	t := dtab.IndexTable{
		Len:      func() int { return len(r.CFI) },
		Less:     func(i, j int) bool { return r.CFI[i].Lo < r.CFI[j].Lo },
		Swap:     func(i, j int) { r.CFI[i], r.CFI[j] = r.CFI[j], r.CFI[i] },
		Truncate: func(n int) { r.CFI = r.CFI[:n] },
	}
	t.Sort()
	dtab.TruncateOverlaps(len(r.CFI),
		func(i int) uint64 { return r.CFI[i].Lo },
		func(i int) uint64 { return r.CFI[i].Hi },
		func(i int, newEnd uint64) { r.CFI[i].Hi = newEnd },
	)
	t.DropZeroLength(func(i int) bool { return r.CFI[i].Hi <= r.CFI[i].Lo })

	if len(r.CFI) == 0 {
		r.CFIMin, r.CFIMax = 0, 0
		return
	}
	lo, hi := r.CFI[0].Lo, r.CFI[0].Hi-1
	for _, row := range r.CFI[1:] {
		if row.Lo < lo {
			lo = row.Lo
		}
		if row.Hi-1 > hi {
			hi = row.Hi - 1
		}
	}
	r.CFIMin, r.CFIMax = core.Address(lo), core.Address(hi)
}

func (r *Record) canonicalizeFPO() {
	t := dtab.IndexTable{
		Len:      func() int { return len(r.FPO) },
		Less:     func(i, j int) bool { return r.FPO[i].Lo < r.FPO[j].Lo },
		Swap:     func(i, j int) { r.FPO[i], r.FPO[j] = r.FPO[j], r.FPO[i] },
		Truncate: func(n int) { r.FPO = r.FPO[:n] },
	}
	t.Sort()
	dtab.TruncateOverlaps(len(r.FPO),
		func(i int) uint64 { return r.FPO[i].Lo },
		func(i int) uint64 { return r.FPO[i].Hi },
		func(i int, newEnd uint64) { r.FPO[i].Hi = newEnd },
	)
	t.DropZeroLength(func(i int) bool { return r.FPO[i].Hi <= r.FPO[i].Lo })
}

// CheckInvariants verifies the structural invariants canonicalisation
// must leave the tables in: symbols strictly ordered with no
// zero-length or duplicate-address entries, lines and CFI sorted and
// non-overlapping, the CFI min/max summary matching the table, and
// every CFI row inside the read+execute mapping. A violation is a bug
// in this module, never bad input: callers treat a non-nil return as a
// fatal assertion.
func (r *Record) CheckInvariants() error {
	for i, sym := range r.Symbols {
		if sym.Size == 0 {
			return fmt.Errorf("objfile: symbol %d at %v has zero length", i, sym.Addr)
		}
		if i > 0 && r.Symbols[i-1].Addr >= sym.Addr {
			return fmt.Errorf("objfile: symbols %d and %d out of order at %v", i-1, i, sym.Addr)
		}
	}
	for i, ln := range r.Lines {
		if ln.Span == 0 {
			return fmt.Errorf("objfile: line %d at %v has zero length", i, ln.Addr)
		}
		if i > 0 && r.Lines[i-1].Addr.Add(int64(r.Lines[i-1].Span)) > ln.Addr {
			return fmt.Errorf("objfile: lines %d and %d overlap at %v", i-1, i, ln.Addr)
		}
	}
	if len(r.CFI) > 0 {
		lo, hi := r.CFI[0].Lo, r.CFI[0].Hi-1
		for i, row := range r.CFI {
			if row.Hi <= row.Lo {
				return fmt.Errorf("objfile: CFI row %d at %#x has zero length", i, row.Lo)
			}
			if i > 0 && r.CFI[i-1].Hi > row.Lo {
				return fmt.Errorf("objfile: CFI rows %d and %d overlap at %#x", i-1, i, row.Lo)
			}
			if row.Lo < lo {
				lo = row.Lo
			}
			if row.Hi-1 > hi {
				hi = row.Hi - 1
			}
			if r.RX != nil && (core.Address(row.Lo) < r.RX.Min || core.Address(row.Hi) > r.RX.Max) {
				return fmt.Errorf("objfile: CFI row %d [%#x,%#x) outside the rx mapping", i, row.Lo, row.Hi)
			}
		}
		if r.CFIMin != core.Address(lo) || r.CFIMax != core.Address(hi) {
			return fmt.Errorf("objfile: CFI min/max summary %v/%v does not match table %#x/%#x",
				r.CFIMin, r.CFIMax, lo, hi)
		}
	}
	return nil
}

// FindSymbolAt returns the symbol at exactly addr ("match at entry"),
// and FindSymbolContaining returns the symbol whose [Addr, Addr+Size)
// contains addr ("match anywhere in symbol").
func (r *Record) FindSymbolAt(addr core.Address) (*Symbol, bool) {
	i, found := dtab.BinarySearch(len(r.Symbols), func(i int) uint64 { return uint64(r.Symbols[i].Addr) }, uint64(addr))
	if found {
		return &r.Symbols[i], true
	}
	return nil, false
}

func (r *Record) FindSymbolContaining(addr core.Address) (*Symbol, bool) {
	i := dtab.Predecessor(len(r.Symbols), func(i int) uint64 { return uint64(r.Symbols[i].Addr) }, uint64(addr))
	if i >= 0 && addr < r.Symbols[i].Addr.Add(int64(r.Symbols[i].Size)) {
		return &r.Symbols[i], true
	}
	return nil, false
}

// FindLine returns the line record whose range contains addr.
func (r *Record) FindLine(addr core.Address) (*Line, bool) {
	i := dtab.Predecessor(len(r.Lines), func(i int) uint64 { return uint64(r.Lines[i].Addr) }, uint64(addr))
	if i >= 0 && addr < r.Lines[i].Addr.Add(int64(r.Lines[i].Span)) {
		return &r.Lines[i], true
	}
	return nil, false
}

// FindFPO returns the FPO row covering addr; FPO tables are small and
// carry no min/max summary, so the binary search runs unconditionally.
func (r *Record) FindFPO(addr core.Address) (*frame.CfSI, int, bool) {
	i := dtab.Predecessor(len(r.FPO), func(i int) uint64 { return r.FPO[i].Lo }, uint64(addr))
	if i >= 0 && uint64(addr) < r.FPO[i].Hi {
		return &r.FPO[i], i, true
	}
	return nil, 0, false
}

// FindCFI returns the CFI row covering addr. The min/max summary gives
// O(1) rejection before the binary search.
func (r *Record) FindCFI(addr core.Address) (*frame.CfSI, int, bool) {
	if addr < r.CFIMin || addr > r.CFIMax {
		return nil, 0, false
	}
	i := dtab.Predecessor(len(r.CFI), func(i int) uint64 { return r.CFI[i].Lo }, uint64(addr))
	if i >= 0 && uint64(addr) < r.CFI[i].Hi {
		return &r.CFI[i], i, true
	}
	return nil, 0, false
}
