// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vartree implements the per-object variable-scope tree: an
// ordered array of scopes, scope 0 being the global scope that covers
// every address, used to find which variable (if any) a data address
// falls inside at a given code address.
package vartree

import "golang.org/x/debuginfo/dwarf/frame"

// MaxAddr is the upper bound of scope 0's single address range.
const MaxAddr = ^uint64(0)

// Variable is one variable's declared location: a name, its type size
// (used for the data-address containment check), and the location and,
// when needed, frame-base expressions that resolve it to an address.
type Variable struct {
	Name      string
	TypeSize  uint64
	LocExpr   int // index into the owning Record's expression arena
	FrameBase int // index into the arena, or -1 if the location expression is self-contained
}

// AddrRange is one disjoint code-address range within a scope, owning
// the variables whose lifetime covers it.
type AddrRange struct {
	Lo, Hi    uint64
	Variables []Variable
}

func (r AddrRange) contains(pc uint64) bool { return pc >= r.Lo && pc < r.Hi }

// Scope is one nesting level. Scope 0 (the global scope) holds exactly
// one range, [0, MaxAddr); deeper scopes hold however many disjoint
// presence ranges the compiler emitted.
type Scope struct {
	Ranges []AddrRange
}

// Tree is the ordered array of scopes for one object.
// Index 0 is always the global scope.
type Tree struct {
	Scopes []Scope
}

// NewTree returns a tree with only the global scope populated.
func NewTree() *Tree {
	return &Tree{Scopes: []Scope{{Ranges: []AddrRange{{Lo: 0, Hi: MaxAddr}}}}}
}

// AddScope appends a new non-global scope and returns its index.
func (t *Tree) AddScope() int {
	t.Scopes = append(t.Scopes, Scope{})
	return len(t.Scopes) - 1
}

// AddRange adds range r to scope idx (idx must not be 0; use
// AddGlobal for scope 0) and returns its index within that scope.
func (t *Tree) AddRange(idx int, r AddrRange) int {
	t.Scopes[idx].Ranges = append(t.Scopes[idx].Ranges, r)
	return len(t.Scopes[idx].Ranges) - 1
}

// AddVarToRange appends v to scope idx's range rangeIdx (as returned by
// the index of AddRange's most recent call, i.e. len(ranges)-1).
func (t *Tree) AddVarToRange(idx, rangeIdx int, v Variable) {
	t.Scopes[idx].Ranges[rangeIdx].Variables = append(t.Scopes[idx].Ranges[rangeIdx].Variables, v)
}

// AddGlobal adds a variable to the single global range.
func (t *Tree) AddGlobal(v Variable) {
	t.Scopes[0].Ranges[0].Variables = append(t.Scopes[0].Ranges[0].Variables, v)
}

// containing returns the range in scope idx that contains pc, if any.
func (t *Tree) containing(idx int, pc uint64) (*AddrRange, bool) {
	ranges := t.Scopes[idx].Ranges
	for i := range ranges {
		if ranges[i].contains(pc) {
			return &ranges[i], true
		}
	}
	return nil, false
}

// Eval resolves a variable's address given the code address's register
// state; the memory reader is needed only if an expression
// dereferences memory. When the variable carries a frame-base
// expression, that is evaluated first and bound for the location
// expression's DW_OP_fbreg references; a frame base that cannot be
// resolved fails the whole evaluation.
func (v *Variable) Eval(arena *frame.ExprArena, regs frame.RegisterSummary, mem frame.MemReader) (addr uint64, ok bool) {
	if v.FrameBase >= 0 {
		fb, fbOK := arena.Eval(v.FrameBase, regs, mem)
		if !fbOK {
			return 0, false
		}
		regs.FrameBase, regs.HaveFrameBase = fb, true
	}
	return arena.Eval(v.LocExpr, regs, mem)
}

// Lookup searches scopes innermost-first, stopping before scope 0:
// local lookups must never fall through to the always-matching global
// scope. In each scope, the range containing pc is searched: each
// variable's location expression is evaluated and the first variable
// whose [result, result+TypeSize) holds dataAddr is returned.
func (t *Tree) Lookup(pc, dataAddr uint64, arena *frame.ExprArena, regs frame.RegisterSummary, mem frame.MemReader) (v *Variable, scope int, ok bool) {
	for i := len(t.Scopes) - 1; i >= 1; i-- {
		rng, found := t.containing(i, pc)
		if !found {
			continue
		}
		for j := range rng.Variables {
			cand := &rng.Variables[j]
			addr, evalOK := cand.Eval(arena, regs, mem)
			if !evalOK {
				continue
			}
			if dataAddr >= addr && dataAddr < addr+cand.TypeSize {
				return cand, i, true
			}
		}
	}
	return nil, 0, false
}

// LookupGlobal queries scope 0 directly, bypassing the innermost-first
// local search entirely.
func (t *Tree) LookupGlobal(dataAddr uint64, arena *frame.ExprArena, regs frame.RegisterSummary, mem frame.MemReader) (v *Variable, ok bool) {
	rng := t.Scopes[0].Ranges[0]
	for j := range rng.Variables {
		cand := &rng.Variables[j]
		addr, evalOK := cand.Eval(arena, regs, mem)
		if !evalOK {
			continue
		}
		if dataAddr >= addr && dataAddr < addr+cand.TypeSize {
			return cand, true
		}
	}
	return nil, false
}
