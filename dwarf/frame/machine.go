// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "fmt"

// Machine is the CFI byte-code VM. It tracks a pool of parsed CIEs
// bounded at MaxCIEPool; the expression arena the rows reference
// belongs to the record being populated, not to the Machine.
type Machine struct {
	Arch     DwarfArch
	cies     map[uint64]*CIE // keyed by section offset
	cieOrder []uint64
}

// DwarfArch is the minimal architecture knowledge the VM needs: how to
// translate a DWARF source register into a portable CFIRegister, when
// possible.
type DwarfArch struct {
	SP, FP, ReturnReg int
}

func (d DwarfArch) translate(reg int) (CFIRegister, bool) {
	switch reg {
	case d.SP:
		return CFIRegSP, true
	case d.FP:
		return CFIRegFP, true
	case d.ReturnReg:
		return CFIRegIP, true
	}
	return 0, false
}

func NewMachine(arch DwarfArch) *Machine {
	return &Machine{Arch: arch, cies: make(map[uint64]*CIE)}
}

// AddCIE registers a parsed CIE at section offset off, enforcing the
// pool cap.
func (m *Machine) AddCIE(off uint64, cie *CIE) error {
	if _, ok := m.cies[off]; ok {
		return nil
	}
	if len(m.cies) >= MaxCIEPool {
		return fmt.Errorf("%w (%d entries)", ErrCIEPoolExhausted, MaxCIEPool)
	}
	m.cies[off] = cie
	m.cieOrder = append(m.cieOrder, off)
	return nil
}

func (m *Machine) CIE(off uint64) (*CIE, bool) {
	cie, ok := m.cies[off]
	return cie, ok
}

// RowFunc is offered a closed row: the address range [loc, the address
// this row ends at) together with the register-rule state in force over
// that range, each time the byte-code interpreter advances loc. Returning
// false from RowFunc stops interpretation of the current FDE early
// without error (used by Summarize-driven callers that only want a
// specific row).
type RowFunc func(rangeStart, rangeEnd uint64, st *RowState) bool

// Run executes fde's CIE-initial-instructions followed by its own
// instructions, offering a row to emit at every forward advance plus one
// final row at end-of-program. Any
// byte-code error aborts the *current FDE only*: rows already emitted
// via emit are retained by the caller (Machine itself never buffers
// rows), and Run returns a descriptive error the caller should log at
// elevated verbosity before moving on to the next FDE.
func (m *Machine) Run(fde *FDE, emit RowFunc) error {
	st := newRowState()
	stack := []*RowState{}
	loc := fde.InitialLoc
	lastLoc := loc
	var initial *RowState
	restore := func(reg int) {
		if initial != nil {
			if r, ok := initial.Rules[reg]; ok {
				st.Rules[reg] = r
				st.exprBytes(reg, initial.regExprBytes[reg])
				return
			}
		}
		delete(st.Rules, reg)
	}

	exec := func(code []byte) (stop bool, err error) {
		for i := 0; i < len(code); {
			op := code[i]
			i++
			// Packed-operand opcodes first.
			switch op & 0xc0 {
			case opAdvanceLoc:
				delta := uint64(op&0x3f) * fde.CIE.CodeAlignmentFactor
				newLoc := loc + delta
				if newLoc > loc {
					if !emit(lastLoc, newLoc, st) {
						return true, nil
					}
					lastLoc = newLoc
				}
				loc = newLoc
				continue
			case opOffset:
				reg := int(op & 0x3f)
				v, n := uleb128(code[i:])
				i += n
				st.Rules[reg] = Rule{Kind: RuleCFAOffset, Reg: reg, Offset: int64(v) * fde.CIE.DataAlignmentFactor}
				continue
			case opRestore:
				reg := int(op & 0x3f)
				restore(reg)
				continue
			}
			switch op {
			case opNop:
			case opSetLoc:
				if i+8 > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_set_loc")
				}
				var v uint64
				for k := 0; k < 8; k++ {
					v |= uint64(code[i+k]) << (8 * k)
				}
				i += 8
				if v > loc {
					if !emit(lastLoc, v, st) {
						return true, nil
					}
					lastLoc = v
				}
				loc = v
			case opAdvanceLoc1:
				if i+1 > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_advance_loc1")
				}
				delta := uint64(code[i]) * fde.CIE.CodeAlignmentFactor
				i++
				newLoc := loc + delta
				if newLoc > loc {
					if !emit(lastLoc, newLoc, st) {
						return true, nil
					}
					lastLoc = newLoc
				}
				loc = newLoc
			case opAdvanceLoc2:
				if i+2 > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_advance_loc2")
				}
				delta := uint64(uint16(code[i])|uint16(code[i+1])<<8) * fde.CIE.CodeAlignmentFactor
				i += 2
				newLoc := loc + delta
				if newLoc > loc {
					if !emit(lastLoc, newLoc, st) {
						return true, nil
					}
					lastLoc = newLoc
				}
				loc = newLoc
			case opAdvanceLoc4:
				if i+4 > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_advance_loc4")
				}
				var u uint32
				for k := 0; k < 4; k++ {
					u |= uint32(code[i+k]) << (8 * k)
				}
				i += 4
				delta := uint64(u) * fde.CIE.CodeAlignmentFactor
				newLoc := loc + delta
				if newLoc > loc {
					if !emit(lastLoc, newLoc, st) {
						return true, nil
					}
					lastLoc = newLoc
				}
				loc = newLoc
			case opOffsetExtended:
				reg, n := uleb128(code[i:])
				i += n
				v, n2 := uleb128(code[i:])
				i += n2
				st.Rules[int(reg)] = Rule{Kind: RuleCFAOffset, Reg: int(reg), Offset: int64(v) * fde.CIE.DataAlignmentFactor}
			case opOffsetExtendedSF:
				reg, n := uleb128(code[i:])
				i += n
				v, n2 := sleb128(code[i:])
				i += n2
				st.Rules[int(reg)] = Rule{Kind: RuleCFAOffset, Reg: int(reg), Offset: v * fde.CIE.DataAlignmentFactor}
			case opRestoreExtended:
				reg, n := uleb128(code[i:])
				i += n
				restore(int(reg))
			case opUndefined:
				reg, n := uleb128(code[i:])
				i += n
				st.Rules[int(reg)] = Rule{Kind: RuleUndefined, Reg: int(reg)}
			case opSameValue:
				reg, n := uleb128(code[i:])
				i += n
				st.Rules[int(reg)] = Rule{Kind: RuleSameValue, Reg: int(reg)}
			case opRegister:
				reg, n := uleb128(code[i:])
				i += n
				other, n2 := uleb128(code[i:])
				i += n2
				st.Rules[int(reg)] = Rule{Kind: RuleRegister, Reg: int(other)}
			case opRememberState:
				if len(stack) >= maxRuleStackDepth {
					return false, fmt.Errorf("dwarf/frame: rule-stack overflow (depth %d)", maxRuleStackDepth)
				}
				stack = append(stack, st.clone())
			case opRestoreState:
				if len(stack) == 0 {
					return false, fmt.Errorf("dwarf/frame: rule-stack underflow on DW_CFA_restore_state")
				}
				st = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			case opDefCFA:
				reg, n := uleb128(code[i:])
				i += n
				off, n2 := uleb128(code[i:])
				i += n2
				st.CFA = Rule{Kind: RuleCFAValOffset, Reg: int(reg), Offset: int64(off)}
			case opDefCFASF:
				reg, n := uleb128(code[i:])
				i += n
				off, n2 := sleb128(code[i:])
				i += n2
				st.CFA = Rule{Kind: RuleCFAValOffset, Reg: int(reg), Offset: off * fde.CIE.DataAlignmentFactor}
			case opDefCFARegister:
				reg, n := uleb128(code[i:])
				i += n
				st.CFA.Reg = int(reg)
			case opDefCFAOffset:
				off, n := uleb128(code[i:])
				i += n
				st.CFA.Offset = int64(off)
			case opDefCFAOffsetSF:
				off, n := sleb128(code[i:])
				i += n
				st.CFA.Offset = off * fde.CIE.DataAlignmentFactor
			case opDefCFAExpression:
				length, n := uleb128(code[i:])
				i += n
				if i+int(length) > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_def_cfa_expression block")
				}
				block := code[i : i+int(length)]
				i += int(length)
				// The expression is decoded later by Summarizer.Row from
				// cfaExprBytes; here we stash the raw bytes since the
				// expression arena belongs to the record, not the VM.
				st.CFA = Rule{Kind: RuleExpression, ExprIdx: -1}
				st.cfaExprBytes = block
			case opExpression:
				reg, n := uleb128(code[i:])
				i += n
				length, n2 := uleb128(code[i:])
				i += n2
				if i+int(length) > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_expression block")
				}
				block := code[i : i+int(length)]
				i += int(length)
				st.Rules[int(reg)] = Rule{Kind: RuleExpression, Reg: int(reg), ExprIdx: -1}
				st.exprBytes(int(reg), block)
			case opValOffset:
				reg, n := uleb128(code[i:])
				i += n
				v, n2 := uleb128(code[i:])
				i += n2
				st.Rules[int(reg)] = Rule{Kind: RuleCFAValOffset, Reg: int(reg), Offset: int64(v) * fde.CIE.DataAlignmentFactor}
			case opValOffsetSF:
				reg, n := uleb128(code[i:])
				i += n
				v, n2 := sleb128(code[i:])
				i += n2
				st.Rules[int(reg)] = Rule{Kind: RuleCFAValOffset, Reg: int(reg), Offset: v * fde.CIE.DataAlignmentFactor}
			case opValExpression:
				reg, n := uleb128(code[i:])
				i += n
				length, n2 := uleb128(code[i:])
				i += n2
				if i+int(length) > len(code) {
					return false, fmt.Errorf("dwarf/frame: truncated DW_CFA_val_expression block")
				}
				block := code[i : i+int(length)]
				i += int(length)
				st.Rules[int(reg)] = Rule{Kind: RuleValExpression, Reg: int(reg), ExprIdx: -1}
				st.exprBytes(int(reg), block)
			default:
				return false, fmt.Errorf("dwarf/frame: unknown CFA opcode %#x", op)
			}
		}
		return false, nil
	}

	if stop, err := exec(fde.CIE.InitialInstructions); err != nil {
		return err
	} else if stop {
		return nil
	}
	// The CIE's initial row is the baseline every FDE starts from; it is
	// saved so DW_CFA_restore and DW_CFA_restore_extended can put a
	// register back to its initial rule (or undefined if it had none).
	initial = st.clone()
	if stop, err := exec(fde.Instructions); err != nil {
		return err
	} else if stop {
		return nil
	}
	if lastLoc < fde.InitialLoc+fde.AddressRange {
		emit(lastLoc, fde.InitialLoc+fde.AddressRange, st)
	}
	return nil
}
