// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unwind implements the one-step stack-frame unwind API:
// given (ip, sp, fp) and an accessible-memory sandbox, it probes the
// query engine's CFI cache, computes the CFA, and applies the row's
// RA/SP/FP rules to produce the caller frame.
package unwind

import (
	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/query"
)

// Frame is a register triple: instruction pointer, stack pointer, frame
// pointer.
type Frame struct {
	IP, SP, FP uint64
}

// MemReader reads guest memory, failing on any access outside the
// accessible sandbox.
type MemReader = frame.MemReader

// Step unwinds one frame: given the current frame and an accessible
// range, it returns the caller's frame, or ok=false if no CFI record
// applies or any sub-step fails. On failure no partial results are
// produced; the caller keeps its own copy of cur unchanged.
func Step(eng *query.Engine, cur Frame, accessible core.AccessibleRange, mem MemReader) (next Frame, ok bool) {
	rec, idx, found := eng.LookupCFI(core.Address(cur.IP))
	if !found {
		return Frame{}, false
	}
	row := &rec.CFI[idx]

	regs := frame.RegisterSummary{IP: cur.IP, SP: cur.SP, FP: cur.FP}
	boundedMem := sandboxReader(accessible, mem)

	cfa, ok := row.ComputeCFA(rec.Arena, regs, boundedMem)
	if !ok {
		return Frame{}, false
	}

	ip, ok := applyRule(row.RA, cur.IP, cfa, regs, rec.Arena, boundedMem)
	if !ok {
		return Frame{}, false
	}
	sp, ok := applyRule(row.SP, cur.SP, cfa, regs, rec.Arena, boundedMem)
	if !ok {
		return Frame{}, false
	}
	fp, ok := applyRule(row.FP, cur.FP, cfa, regs, rec.Arena, boundedMem)
	if !ok {
		return Frame{}, false
	}
	return Frame{IP: ip, SP: sp, FP: fp}, true
}

// sandboxReader adapts an AccessibleRange into a frame.MemReader that
// rejects any read extending outside it.
func sandboxReader(rng core.AccessibleRange, mem MemReader) MemReader {
	return func(addr uint64, n int) (uint64, bool) {
		if mem == nil || !rng.Contains(core.Address(addr), int64(n)) {
			return 0, false
		}
		return mem(addr, n)
	}
}

func regFor(reg frame.CFIRegister, regs frame.RegisterSummary) uint64 {
	switch reg {
	case frame.CFIRegSP:
		return regs.SP
	case frame.CFIRegFP:
		return regs.FP
	default:
		return regs.IP
	}
}

// applyRule applies one register rule: unknown fails, same copies the
// register's own current value (self), CFA-relative computes CFA+off,
// memory-at-CFA-relative dereferences CFA+off through mem, and
// expression evaluates the row's stashed expression tree.
func applyRule(r frame.Rule, self uint64, cfa uint64, regs frame.RegisterSummary, arena *frame.ExprArena, mem MemReader) (uint64, bool) {
	switch r.Kind {
	case frame.RuleUndefined:
		return 0, false
	case frame.RuleSameValue:
		return self, true
	case frame.RuleCFAValOffset:
		return uint64(int64(cfa) + r.Offset), true
	case frame.RuleCFAOffset:
		v, ok := mem(uint64(int64(cfa)+r.Offset), 8)
		return v, ok
	case frame.RuleExpression, frame.RuleValExpression:
		if arena == nil {
			return 0, false
		}
		return arena.Eval(r.ExprIdx, regs, mem)
	case frame.RuleRegister:
		return regFor(frame.CFIRegister(r.Reg), regs), true
	default:
		return 0, false
	}
}

// FPOStep is the independent unwind path for PDB-sourced objects: the
// same contract and signature as Step, but the row comes from the
// owning record's FPO table (a fixed stack-frame layout formula)
// rather than CFI byte-code.
func FPOStep(eng *query.Engine, cur Frame, accessible core.AccessibleRange, mem MemReader) (next Frame, ok bool) {
	rec, idx, found := eng.LookupFPO(core.Address(cur.IP))
	if !found {
		return Frame{}, false
	}
	row := &rec.FPO[idx]
	regs := frame.RegisterSummary{IP: cur.IP, SP: cur.SP, FP: cur.FP}
	boundedMem := sandboxReader(accessible, mem)

	cfa, ok := row.ComputeCFA(rec.Arena, regs, boundedMem)
	if !ok {
		return Frame{}, false
	}
	ip, ok := applyRule(row.RA, cur.IP, cfa, regs, rec.Arena, boundedMem)
	if !ok {
		return Frame{}, false
	}
	sp, ok := applyRule(row.SP, cur.SP, cfa, regs, rec.Arena, boundedMem)
	if !ok {
		return Frame{}, false
	}
	fp, ok := applyRule(row.FP, cur.FP, cfa, regs, rec.Arena, boundedMem)
	if !ok {
		return Frame{}, false
	}
	return Frame{IP: ip, SP: sp, FP: fp}, true
}
