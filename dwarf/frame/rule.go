// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

// RuleKind is the how-tag of a single register rule: undefined,
// same-value, CFA-relative-memory, CFA-relative-value,
// register-aliased, value-expression, or architectural-default.
type RuleKind int

const (
	RuleUndefined RuleKind = iota
	RuleSameValue
	RuleCFAOffset    // value = load(CFA + Offset)
	RuleCFAValOffset // value = CFA + Offset
	RuleRegister     // value = current value of register Reg
	RuleExpression   // value = load(eval(ExprIdx))
	RuleValExpression
	RuleArchDefault
)

// Rule is one register's rule within a RowState, or the CFA rule itself
// (whose Kind is RuleCFAValOffset or RuleExpression once a
// DW_CFA_def_cfa* opcode has run, RuleUndefined before that — a CFA
// rule of "register+offset" form stores the register number in Reg and
// the offset in Offset).
type Rule struct {
	Kind    RuleKind
	Reg     int
	Offset  int64
	ExprIdx int // index into the record's expression arena, for RuleExpression/RuleValExpression
}

// RowState is the VM's current register-rule set: the CFA rule plus one
// rule per tracked DWARF source register. It is the unit pushed/popped
// by DW_CFA_remember_state/DW_CFA_restore_state.
//
// cfaExprBytes and regExprBytes hold raw DW_OP_* blocks for rules whose
// Kind is RuleExpression/RuleValExpression and whose ExprIdx is still -1:
// the VM stashes the bytes as it executes DW_CFA_def_cfa_expression,
// DW_CFA_expression and DW_CFA_val_expression, and the summariser decodes
// them into the record's expression arena only for the rows it actually
// keeps — decoding every row the VM visits, including ones
// later rejected, would waste arena space on a file with heavy CFI.
type RowState struct {
	CFA          Rule
	Rules        map[int]Rule
	cfaExprBytes []byte
	regExprBytes map[int][]byte
}

func newRowState() *RowState {
	return &RowState{Rules: make(map[int]Rule)}
}

func (r *RowState) clone() *RowState {
	n := &RowState{CFA: r.CFA, Rules: make(map[int]Rule, len(r.Rules)), cfaExprBytes: r.cfaExprBytes}
	for k, v := range r.Rules {
		n.Rules[k] = v
	}
	for k, v := range r.regExprBytes {
		if n.regExprBytes == nil {
			n.regExprBytes = make(map[int][]byte, len(r.regExprBytes))
		}
		n.regExprBytes[k] = v
	}
	return n
}

// exprBytes stashes the raw expression block for register reg's rule.
func (r *RowState) exprBytes(reg int, block []byte) {
	if r.regExprBytes == nil {
		r.regExprBytes = make(map[int][]byte)
	}
	r.regExprBytes[reg] = block
}

// Rule returns the rule for DWARF register reg, defaulting to undefined.
func (r *RowState) Rule(reg int) Rule {
	if ru, ok := r.Rules[reg]; ok {
		return ru
	}
	return Rule{Kind: RuleUndefined, Reg: reg}
}
