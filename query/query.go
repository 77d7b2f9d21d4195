// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package query implements the address-lookup layer: registry-wide
// binary-search lookup for symbols, lines and CFI rows, the fast-path
// CFI cache, and the data-address-to-variable attribution path built
// on dwarf/vartree.
package query

import (
	"fmt"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/objfile"
	"golang.org/x/debuginfo/registry"
)

// promoteEvery: every this-many successful searches, the found record
// is advanced one slot toward the registry head. The same cadence is
// used for CFI, line and symbol lookups; FPO lookups promote on their
// own, sparser cadence.
const (
	promoteEvery    = 16
	fpoPromoteEvery = 0x40
)

// cacheSize is the fast-path CFI cache's entry count. A prime keeps
// the direct-map hash from resonating with page-aligned code.
const cacheSize = 511

// noInfoSentinel is the "address known to have no CFI" cache marker: a
// real, otherwise-unreferenced *objfile.Record compared only by
// pointer identity, never dereferenced.
var noInfoSentinel = &objfile.Record{}

type cfiCacheSlot struct {
	addr core.Address
	rec  *objfile.Record // nil = empty, noInfoSentinel = known-absent
	row  int
}

// Engine answers per-address queries against a registry, maintaining the
// fast-path CFI cache and the successful-search counters that drive
// list-order promotion.
type Engine struct {
	reg *registry.Registry

	cache       [cacheSize]cfiCacheSlot
	symHits     int
	lineHits    int
	cfiHits     int
	fpoHits     int
	stacktraces StacktraceProvider
}

// StacktraceProvider is the external collaborator describe-data-address
// needs: one call returning the (ip, sp, fp) triples for
// every frame of a given thread.
type StacktraceProvider interface {
	Stacktrace(threadID int) ([]frame.RegisterSummary, bool)
}

// NewEngine returns a query engine over reg. sp may be nil if
// describe-data-address's thread-stack path is not needed.
func NewEngine(reg *registry.Registry, sp StacktraceProvider) *Engine {
	return &Engine{reg: reg, stacktraces: sp}
}

// InvalidateAll implements registry.CacheInvalidator: all
// slots are zeroed, never partially invalidated.
func (e *Engine) InvalidateAll() {
	for i := range e.cache {
		e.cache[i] = cfiCacheSlot{}
	}
}

func cacheIndex(addr core.Address) int {
	return int(uint64(addr) % cacheSize)
}

// CodeDescription is the result of describe-code-address.
// Any field may be zero-valued/absent.
type CodeDescription struct {
	ObjectName string
	Function   string
	File       string
	Dir        string
	Line       int
	Found      bool
}

// DescribeCodeAddress resolves addr to its object, function, source
// file and line; the returned line record's range always contains
// addr.
func (e *Engine) DescribeCodeAddress(addr core.Address) CodeDescription {
	var out CodeDescription
	var foundRec *objfile.Record

	e.reg.Each(func(r *objfile.Record) bool {
		if !r.HaveDebugInfo {
			return true // not yet acquired: invisible to queries
		}
		if r.RX == nil || !r.RX.Contains(addr) {
			return true
		}
		if sym, ok := r.FindSymbolContaining(addr); ok {
			out.Function = derefOr(sym.Name, "")
		}
		if ln, ok := r.FindLine(addr); ok {
			out.File = derefOr(ln.File, "")
			out.Dir = derefOr(ln.Dir, "")
			out.Line = int(ln.SourceLine)
			out.Found = true
			out.ObjectName = r.Filename
			foundRec = r
			return false
		}
		if out.Function != "" {
			out.Found = true
			out.ObjectName = r.Filename
			foundRec = r
			return false
		}
		return true
	})

	if foundRec != nil {
		e.lineHits++
		if e.lineHits%promoteEvery == 0 {
			e.reg.Promote(foundRec)
		}
	}
	return out
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// LookupCFI probes the fast-path cache first and falls back to a
// registry-wide binary search, populating the cache either way. It
// returns the owning record and row index; ok is false if no CFI
// covers addr.
func (e *Engine) LookupCFI(addr core.Address) (rec *objfile.Record, rowIdx int, ok bool) {
	slot := &e.cache[cacheIndex(addr)]
	if slot.rec != nil && slot.addr == addr {
		if slot.rec == noInfoSentinel {
			return nil, 0, false
		}
		return slot.rec, slot.row, true
	}

	var foundRec *objfile.Record
	var foundIdx int
	e.reg.Each(func(r *objfile.Record) bool {
		if !r.HaveDebugInfo || len(r.CFI) == 0 {
			return true
		}
		if addr < r.CFIMin || addr > r.CFIMax {
			return true // O(1) range rejection
		}
		if _, idx, found := r.FindCFI(addr); found {
			foundRec, foundIdx = r, idx
			return false
		}
		return true
	})

	if foundRec == nil {
		*slot = cfiCacheSlot{addr: addr, rec: noInfoSentinel}
		return nil, 0, false
	}
	*slot = cfiCacheSlot{addr: addr, rec: foundRec, row: foundIdx}

	e.cfiHits++
	if e.cfiHits%promoteEvery == 0 {
		e.reg.Promote(foundRec)
	}
	return foundRec, foundIdx, true
}

// LookupFPO locates the record whose FPO table covers addr, the same
// registry-scan-plus-binary-search contract as LookupCFI but over the
// PDB-sourced FPO tables and without the fast-path cache.
func (e *Engine) LookupFPO(addr core.Address) (rec *objfile.Record, rowIdx int, ok bool) {
	var foundRec *objfile.Record
	var foundIdx int
	e.reg.Each(func(r *objfile.Record) bool {
		if !r.HaveDebugInfo || len(r.FPO) == 0 {
			return true
		}
		if _, idx, found := r.FindFPO(addr); found {
			foundRec, foundIdx = r, idx
			return false
		}
		return true
	})
	if foundRec == nil {
		return nil, 0, false
	}
	e.fpoHits++
	if e.fpoHits%fpoPromoteEvery == 0 {
		e.reg.Promote(foundRec)
	}
	return foundRec, foundIdx, true
}

// LookupSymbolAt implements "match at entry": addr must
// equal a symbol's address exactly.
func (e *Engine) LookupSymbolAt(addr core.Address) (sym *objfile.Symbol, rec *objfile.Record, ok bool) {
	var found *objfile.Record
	e.reg.Each(func(r *objfile.Record) bool {
		if !r.HaveDebugInfo || r.RX == nil || !r.RX.Contains(addr) {
			return true
		}
		if s, ok := r.FindSymbolAt(addr); ok {
			sym, found = s, r
			return false
		}
		return true
	})
	if found == nil {
		return nil, nil, false
	}
	e.symHits++
	if e.symHits%promoteEvery == 0 {
		e.reg.Promote(found)
	}
	return sym, found, true
}

// LookupSymbolContaining implements "match anywhere in symbol": any
// address within [addr, addr+size) of a symbol matches.
func (e *Engine) LookupSymbolContaining(addr core.Address) (sym *objfile.Symbol, rec *objfile.Record, ok bool) {
	var found *objfile.Record
	e.reg.Each(func(r *objfile.Record) bool {
		if !r.HaveDebugInfo || r.RX == nil || !r.RX.Contains(addr) {
			return true
		}
		if s, ok := r.FindSymbolContaining(addr); ok {
			sym, found = s, r
			return false
		}
		return true
	})
	if found == nil {
		return nil, nil, false
	}
	e.symHits++
	if e.symHits%promoteEvery == 0 {
		e.reg.Promote(found)
	}
	return sym, found, true
}

// LookupSymbolByName searches every record whose SOName matches
// sonameGlob for a symbol named name, in ascending handle order.
func (e *Engine) LookupSymbolByName(sonameGlob, name string) (addr core.Address, toc uint64, found bool) {
	for _, r := range e.reg.FindByName(sonameGlob) {
		for i := range r.Symbols {
			if derefOr(r.Symbols[i].Name, "") == name {
				return r.Symbols[i].Addr, r.Symbols[i].TOC, true
			}
		}
	}
	return 0, 0, false
}

// DataDescription is describe-data-address's result: a
// two-line human description naming the variable, its offset within the
// probe, the frame index, and the thread id.
type DataDescription struct {
	VarName  string
	Offset   int64
	Frame    int
	ThreadID int
	Found    bool
}

func (d DataDescription) String() string {
	if !d.Found {
		return "<unknown>"
	}
	return fmt.Sprintf("address is %d bytes into %s\nin frame %d of thread %d",
		d.Offset, d.VarName, d.Frame, d.ThreadID)
}

// DescribeDataAddress walks each frame of the given thread's
// stacktrace, innermost first, and asks each frame's owning record's
// variable tree whether dataAddr falls inside a variable covering that
// frame's pc.
func (e *Engine) DescribeDataAddress(threadID int, mem frame.MemReader, dataAddr core.Address) DataDescription {
	if e.stacktraces == nil {
		return DataDescription{}
	}
	frames, ok := e.stacktraces.Stacktrace(threadID)
	if !ok {
		return DataDescription{}
	}
	for i, fr := range frames {
		var found *objfile.Record
		e.reg.Each(func(r *objfile.Record) bool {
			if !r.HaveDebugInfo || r.RX == nil || !r.RX.Contains(core.Address(fr.IP)) {
				return true
			}
			found = r
			return false
		})
		if found == nil || found.Vars == nil {
			continue
		}
		// Variable locations routinely reference the CFA (a frame base
		// of DW_OP_call_frame_cfa); resolve it from the frame's CFI row
		// when one covers the probe, best-effort.
		if cfiRec, idx, cfiOK := e.LookupCFI(core.Address(fr.IP)); cfiOK {
			if cfa, cfaOK := cfiRec.CFI[idx].ComputeCFA(cfiRec.Arena, fr, mem); cfaOK {
				fr.CFA, fr.HaveCFA = cfa, true
			}
		}
		v, _, ok := found.Vars.Lookup(fr.IP, uint64(dataAddr), found.Arena, fr, mem)
		if !ok {
			v, ok = found.Vars.LookupGlobal(uint64(dataAddr), found.Arena, fr, mem)
		}
		if !ok {
			continue
		}
		loc, locOK := v.Eval(found.Arena, fr, mem)
		if !locOK {
			continue
		}
		return DataDescription{
			VarName:  v.Name,
			Offset:   int64(uint64(dataAddr) - loc),
			Frame:    i,
			ThreadID: threadID,
			Found:    true,
		}
	}
	return DataDescription{}
}
