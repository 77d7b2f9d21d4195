// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

// CfSI is one retained unwind row: the half-open address range it
// covers, how to recover the CFA, and how to recover the caller's IP,
// SP and FP. All register references have already been translated from
// raw DWARF source-register numbers to the portable CFIRegister set
// (or the row was rejected at translation time).
type CfSI struct {
	Lo, Hi uint64

	CFAReg    CFIRegister
	CFAIsExpr bool
	CFAOffset int64
	CFAExpr   int // arena index, valid when CFAIsExpr

	RA Rule // translated: Reg holds a CFIRegister when Kind is RuleRegister
	SP Rule
	FP Rule
}

// maxCfSISpan rejects rows spanning more than ten million bytes: a row
// that wide almost always reflects corrupt input rather than a genuine
// giant function.
const maxCfSISpan = 10_000_000

// Summarizer accumulates CfSI rows for one object, decoding expression
// blocks the VM stashed in a RowState into a caller-supplied arena and
// rewriting DWARF source registers to the portable CFIRegister set.
type Summarizer struct {
	Arch  DwarfArch
	Arena *ExprArena
	Rows  []CfSI

	// Rejected counts rows dropped by the translation rules, for
	// diagnostics.
	Rejected int
}

func NewSummarizer(arch DwarfArch, arena *ExprArena) *Summarizer {
	return &Summarizer{Arch: arch, Arena: arena}
}

// Row implements RowFunc: it is handed to Machine.Run and decides
// whether to keep or reject the half-open range [lo, hi) under state
// st.
func (s *Summarizer) Row(lo, hi uint64, st *RowState) bool {
	if hi <= lo {
		return true // loc must advance strictly
	}
	if hi-lo > maxCfSISpan {
		s.Rejected++
		return true
	}
	ra := st.Rule(s.Arch.ReturnReg)
	if ra.Kind == RuleSameValue {
		// A frame that claims its own return address is unchanged
		// cannot be unwound through. An undefined RA rule is kept: it
		// surfaces as a failure when the row is applied, not here.
		s.Rejected++
		return true
	}

	row := CfSI{Lo: lo, Hi: hi}

	switch st.CFA.Kind {
	case RuleCFAValOffset:
		if reg, ok := s.Arch.translate(st.CFA.Reg); ok {
			row.CFAReg = reg
			row.CFAOffset = st.CFA.Offset
		} else {
			s.Rejected++
			return true
		}
	case RuleExpression:
		idx, err := DecodeExpression(s.Arena, st.cfaExprBytes)
		if err != nil {
			s.Rejected++
			return true
		}
		row.CFAIsExpr = true
		row.CFAExpr = idx
	default:
		s.Rejected++
		return true
	}

	row.RA = s.translateRule(ra, st)
	row.SP = Rule{Kind: RuleCFAValOffset, Offset: 0}
	row.FP = s.translateRule(st.Rule(s.Arch.FP), st)

	s.Rows = append(s.Rows, row)
	return true
}

func (s *Summarizer) translateRule(r Rule, st *RowState) Rule {
	switch r.Kind {
	case RuleRegister:
		if reg, ok := s.Arch.translate(r.Reg); ok {
			return Rule{Kind: RuleRegister, Reg: int(reg)}
		}
		return Rule{Kind: RuleUndefined}
	case RuleExpression, RuleValExpression:
		block := st.regExprBytes[r.Reg]
		idx, err := DecodeExpression(s.Arena, block)
		if err != nil {
			return Rule{Kind: RuleUndefined}
		}
		return Rule{Kind: r.Kind, ExprIdx: idx}
	default:
		return r
	}
}

// ComputeCFA resolves row's CFA rule against regs, evaluating the
// stashed expression through arena and mem when the rule is an
// expression.
func (row *CfSI) ComputeCFA(arena *ExprArena, regs RegisterSummary, mem MemReader) (uint64, bool) {
	if row.CFAIsExpr {
		if arena == nil {
			return 0, false
		}
		return arena.Eval(row.CFAExpr, regs, mem)
	}
	var base uint64
	switch row.CFAReg {
	case CFIRegSP:
		base = regs.SP
	case CFIRegFP:
		base = regs.FP
	default:
		base = regs.IP
	}
	return uint64(int64(base) + row.CFAOffset), true
}

// Summarize runs m over fde, appending every retained row to s.Rows (in
// address order, since the VM visits loc monotonically within one FDE)
// and returning the count of rows this call added to s.Rows (rows the
// summariser rejected are not counted), plus the byte-code error if one
// occurred.
func Summarize(m *Machine, fde *FDE, s *Summarizer) (n int, err error) {
	before := len(s.Rows)
	err = m.Run(fde, s.Row)
	return len(s.Rows) - before, err
}
