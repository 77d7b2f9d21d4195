// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "fmt"

// ExprOp is the tag of one node in the expression arena. Nodes form a
// DAG in the raw DWARF byte-code but are copied into an object's arena
// as a tree addressed by integer index: children are
// never pointers, so the arena can grow without invalidating existing
// references.
type ExprOp int

const (
	ExprConst ExprOp = iota
	ExprCFIRegister    // IP/SP/FP — portable, post-translation reference
	ExprSourceRegister // raw DWARF source-register number, pre-translation
	ExprFrameBase      // the enclosing function's frame base (DW_OP_fbreg)
	ExprCallFrameCFA   // the CFA at the probed address (DW_OP_call_frame_cfa)
	ExprAdd
	ExprSub
	ExprAnd
	ExprMul
	ExprDeref
)

// CFIRegister names the three portable registers an expression may
// reference once translated into an object's arena.
type CFIRegister int

const (
	CFIRegIP CFIRegister = iota
	CFIRegSP
	CFIRegFP
)

// ExprNode is one node of a location-expression tree. Const holds an
// immediate value; Reg holds either a CFIRegister (ExprCFIRegister) or a
// raw DWARF register number (ExprSourceRegister); Left/Right/Child are
// indices into the same arena (-1 when unused).
type ExprNode struct {
	Op          ExprOp
	Const       int64
	Reg         int
	Left, Right int
	Child       int
}

// ExprArena is the per-object store of expression trees referenced by
// CfSI rows and variable location/frame-base expressions.
type ExprArena struct {
	nodes []ExprNode
}

func NewExprArena() *ExprArena { return &ExprArena{} }

func (a *ExprArena) add(n ExprNode) int {
	a.nodes = append(a.nodes, n)
	return len(a.nodes) - 1
}

func (a *ExprArena) Node(idx int) ExprNode { return a.nodes[idx] }

func (a *ExprArena) Len() int { return len(a.nodes) }

// RegisterSummary supplies the register values an expression evaluator
// needs: the three portable CFI registers, raw source registers for
// expressions that have not (or cannot) be translated, and the two
// derived bindings variable locations reference — the enclosing
// function's frame base and the CFA. The derived bindings are filled
// in by whoever drives the evaluation; expressions referencing an
// absent binding fail to "unknown".
type RegisterSummary struct {
	IP, SP, FP     uint64
	SourceRegs     map[int]uint64
	HaveSourceRegs bool

	FrameBase     uint64
	HaveFrameBase bool
	CFA           uint64
	HaveCFA       bool
}

func (r RegisterSummary) cfiValue(reg CFIRegister) uint64 {
	switch reg {
	case CFIRegIP:
		return r.IP
	case CFIRegSP:
		return r.SP
	case CFIRegFP:
		return r.FP
	}
	return 0
}

// MemReader reads n bytes (n in {1,2,4,8}) from the guest at addr,
// within the accessible sandbox; it fails (ok=false) for any
// out-of-range access.
type MemReader func(addr uint64, n int) (val uint64, ok bool)

const exprStackLimit = 20

// evalStack is a small bounded integer stack used by expression
// evaluation.
type evalStack struct {
	v []int64
}

func (s *evalStack) push(x int64) error {
	if len(s.v) >= exprStackLimit {
		return fmt.Errorf("dwarf/frame: expression stack overflow")
	}
	s.v = append(s.v, x)
	return nil
}

func (s *evalStack) pop() (int64, error) {
	if len(s.v) == 0 {
		return 0, fmt.Errorf("dwarf/frame: expression stack underflow")
	}
	x := s.v[len(s.v)-1]
	s.v = s.v[:len(s.v)-1]
	return x, nil
}

// Eval evaluates the tree rooted at idx against regs, reading guest
// memory for dereferences through mem. It returns "unknown" (ok=false)
// on any stack violation or out-of-range dereference, never on an
// unsupported operator reaching this point — those are rejected at
// translation time.
func (a *ExprArena) Eval(idx int, regs RegisterSummary, mem MemReader) (result uint64, ok bool) {
	s := &evalStack{}
	if err := a.eval(idx, regs, mem, s); err != nil {
		return 0, false
	}
	v, err := s.pop()
	if err != nil {
		return 0, false
	}
	return uint64(v), true
}

func (a *ExprArena) eval(idx int, regs RegisterSummary, mem MemReader, s *evalStack) error {
	n := a.nodes[idx]
	switch n.Op {
	case ExprConst:
		return s.push(n.Const)
	case ExprCFIRegister:
		return s.push(int64(regs.cfiValue(CFIRegister(n.Reg))))
	case ExprSourceRegister:
		if !regs.HaveSourceRegs {
			return fmt.Errorf("dwarf/frame: no source register bindings available")
		}
		v, ok := regs.SourceRegs[n.Reg]
		if !ok {
			return fmt.Errorf("dwarf/frame: unbound source register %d", n.Reg)
		}
		return s.push(int64(v))
	case ExprFrameBase:
		if !regs.HaveFrameBase {
			return fmt.Errorf("dwarf/frame: no frame base binding available")
		}
		return s.push(int64(regs.FrameBase))
	case ExprCallFrameCFA:
		if !regs.HaveCFA {
			return fmt.Errorf("dwarf/frame: no CFA binding available")
		}
		return s.push(int64(regs.CFA))
	case ExprAdd, ExprSub, ExprAnd, ExprMul:
		if err := a.eval(n.Left, regs, mem, s); err != nil {
			return err
		}
		if err := a.eval(n.Right, regs, mem, s); err != nil {
			return err
		}
		b, err := s.pop()
		if err != nil {
			return err
		}
		aa, err := s.pop()
		if err != nil {
			return err
		}
		switch n.Op {
		case ExprAdd:
			return s.push(aa + b)
		case ExprSub:
			return s.push(aa - b)
		case ExprAnd:
			return s.push(aa & b)
		case ExprMul:
			return s.push(aa * b)
		}
		return nil
	case ExprDeref:
		if err := a.eval(n.Child, regs, mem, s); err != nil {
			return err
		}
		addr, err := s.pop()
		if err != nil {
			return err
		}
		if mem == nil {
			return fmt.Errorf("dwarf/frame: dereference with no memory reader")
		}
		v, ok := mem(uint64(addr), 8)
		if !ok {
			return fmt.Errorf("dwarf/frame: dereference out of accessible range")
		}
		return s.push(int64(v))
	}
	return fmt.Errorf("dwarf/frame: unsupported expression opcode %d", n.Op)
}
