// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vartree

import (
	"testing"

	"golang.org/x/debuginfo/dwarf/frame"
)

func constExpr(arena *frame.ExprArena, v int64) int {
	idx, err := frame.DecodeExpression(arena, []byte{0x10, byte(v)}) // DW_OP_constu small value
	if err != nil {
		panic(err)
	}
	return idx
}

func TestLookupStopsBeforeGlobalScope(t *testing.T) {
	arena := frame.NewExprArena()
	tr := NewTree()
	tr.AddGlobal(Variable{Name: "g", TypeSize: 8, LocExpr: constExpr(arena, 30)})

	inner := tr.AddScope()
	tr.AddRange(inner, AddrRange{
		Lo: 0x1000, Hi: 0x2000,
		Variables: []Variable{{Name: "local", TypeSize: 8, LocExpr: constExpr(arena, 60)}},
	})

	regs := frame.RegisterSummary{}
	// Inside the inner scope's range, at the local's address: found,
	// and reported at the inner scope, never the global one.
	v, scope, ok := tr.Lookup(0x1500, 60, arena, regs, nil)
	if !ok || v.Name != "local" || scope != inner {
		t.Fatalf("Lookup(0x1500,60) = %v,%d,%v", v, scope, ok)
	}

	// At the global variable's address but still inside the inner
	// scope's pc range: Lookup must NOT find it, since it never
	// descends to scope 0.
	if _, _, ok := tr.Lookup(0x1500, 30, arena, regs, nil); ok {
		t.Fatalf("Lookup must not fall through to the global scope")
	}

	// LookupGlobal finds it via the dedicated entry point.
	gv, ok := tr.LookupGlobal(30, arena, regs, nil)
	if !ok || gv.Name != "g" {
		t.Fatalf("LookupGlobal(30) = %v,%v", gv, ok)
	}
}

func TestLookupOutsideAnyRange(t *testing.T) {
	arena := frame.NewExprArena()
	tr := NewTree()
	inner := tr.AddScope()
	tr.AddRange(inner, AddrRange{Lo: 0x1000, Hi: 0x2000})
	if _, _, ok := tr.Lookup(0x5000, 0, arena, frame.RegisterSummary{}, nil); ok {
		t.Fatalf("Lookup at pc outside every range should fail")
	}
}

func TestEvalResolvesFrameBaseBeforeLocation(t *testing.T) {
	arena := frame.NewExprArena()
	// Frame base: DW_OP_call_frame_cfa; location: DW_OP_fbreg -32.
	fbIdx, err := frame.DecodeExpression(arena, []byte{0x9c})
	if err != nil {
		t.Fatalf("decode frame base: %v", err)
	}
	locIdx, err := frame.DecodeExpression(arena, []byte{0x91, 0x60})
	if err != nil {
		t.Fatalf("decode location: %v", err)
	}
	v := Variable{Name: "buf", TypeSize: 16, LocExpr: locIdx, FrameBase: fbIdx}

	regs := frame.RegisterSummary{CFA: 0x7ff0, HaveCFA: true}
	addr, ok := v.Eval(arena, regs, nil)
	if !ok || addr != 0x7fd0 {
		t.Fatalf("Eval = (%#x, %v), want (0x7fd0, true)", addr, ok)
	}

	// Without a CFA binding the frame base cannot resolve, so the
	// variable's address is unknown.
	if _, ok := v.Eval(arena, frame.RegisterSummary{}, nil); ok {
		t.Fatal("Eval should fail when the frame base cannot be resolved")
	}
}
