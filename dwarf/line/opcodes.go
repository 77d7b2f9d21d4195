// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package line runs the DWARF line-number program state machine,
// emitting line records as they close.
package line

// Standard opcodes (DWARF4 §6.2.5.2). A program's header gives the
// actual opcode_base and standard_opcode_lengths, so these are the
// canonical numbering only; Program.Run trusts the header over these
// constants when deciding where the special-opcode range begins.
const (
	opCopy             = 0x01
	opAdvancePC        = 0x02 // ULEB128
	opAdvanceLine      = 0x03 // SLEB128
	opSetFile          = 0x04 // ULEB128
	opSetColumn        = 0x05 // ULEB128
	opNegateStmt       = 0x06
	opSetBasicBlock    = 0x07
	opConstAddPC       = 0x08
	opFixedAdvancePC   = 0x09 // uhalf
	opSetPrologueEnd   = 0x0a
	opSetEpilogueBegin = 0x0b
	opSetISA           = 0x0c // ULEB128
)

// Extended opcodes (DWARF4 §6.2.5.3), each preceded by 0x00 and a ULEB128
// length.
const (
	extEndSequence = 0x01
	extSetAddress  = 0x02 // relocatable address
	extDefineFile  = 0x03
)
