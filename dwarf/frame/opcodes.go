// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

// DWARF call-frame instruction opcodes, per DWARF4 §7.23. The
// two-bit-opcode-plus-operand family (advance_loc/offset/restore) is
// kept distinct from the full-byte family.
const (
	opNop               = 0x00
	opSetLoc            = 0x01 // address
	opAdvanceLoc1       = 0x02 // 1-byte delta
	opAdvanceLoc2       = 0x03 // 2-byte delta
	opAdvanceLoc4       = 0x04 // 4-byte delta
	opOffsetExtended    = 0x05 // ULEB128 register, ULEB128 offset
	opRestoreExtended   = 0x06 // ULEB128 register
	opUndefined         = 0x07 // ULEB128 register
	opSameValue         = 0x08 // ULEB128 register
	opRegister          = 0x09 // ULEB128 register, ULEB128 register
	opRememberState     = 0x0a
	opRestoreState      = 0x0b
	opDefCFA            = 0x0c // ULEB128 register, ULEB128 offset
	opDefCFARegister    = 0x0d // ULEB128 register
	opDefCFAOffset      = 0x0e // ULEB128 offset
	opDefCFAExpression  = 0x0f // BLOCK
	opExpression        = 0x10 // ULEB128 register, BLOCK
	opOffsetExtendedSF  = 0x11 // ULEB128 register, SLEB128 offset
	opDefCFASF          = 0x12 // ULEB128 register, SLEB128 offset
	opDefCFAOffsetSF    = 0x13 // SLEB128 offset
	opValOffset         = 0x14 // ULEB128, ULEB128
	opValOffsetSF       = 0x15 // ULEB128, SLEB128
	opValExpression     = 0x16 // ULEB128, BLOCK

	opLoUser = 0x1c
	opHiUser = 0x3f

	// High two-bit opcodes with a 6-bit operand packed in.
	opAdvanceLoc = 0x1 << 6 // +delta
	opOffset     = 0x2 << 6 // +register (ULEB128 offset follows)
	opRestore    = 0x3 << 6 // +register
)

// Location-expression (DW_OP_*) opcodes supported by the evaluator.
// Division and anything not listed here fails the expression.
const (
	dwOpAddr         = 0x03
	dwOpDeref        = 0x06
	dwOpConst1u      = 0x08
	dwOpConst1s      = 0x09
	dwOpConst2u      = 0x0a
	dwOpConst2s      = 0x0b
	dwOpConst4u      = 0x0c
	dwOpConst4s      = 0x0d
	dwOpConstu       = 0x10
	dwOpConsts       = 0x11
	dwOpPlus         = 0x22
	dwOpMinus        = 0x1c
	dwOpAnd          = 0x1a
	dwOpMul          = 0x1e
	dwOpBreg0        = 0x70 // + register number, through 0x8f
	dwOpBreg31       = 0x8f
	dwOpFbreg        = 0x91 // SLEB128 offset from the frame base
	dwOpCallFrameCFA = 0x9c
)
