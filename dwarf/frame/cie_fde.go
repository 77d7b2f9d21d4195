// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "errors"

// CIE is a Common Information Entry: the preamble shared by a set of
// FDEs. The augmentation is decoded per CIE, never per section: the
// FDE pointer encoding an 'R' letter declares travels with the CIE so
// that every FDE referencing it reads its address fields the same way.
type CIE struct {
	Version             byte
	Augmentation        string
	CodeAlignmentFactor uint64
	DataAlignmentFactor int64
	ReturnAddressReg    int
	InitialInstructions []byte

	// FDEEncoding is the DW_EH_PE pointer encoding FDEs referencing
	// this CIE use for their address fields, from the 'R' letter of a
	// z-augmentation; without one, addresses are absolute
	// pointer-sized fields.
	FDEEncoding byte
	// HasAugData reports whether FDEs carry a z-augmentation data
	// block (ULEB128 length plus that many bytes) between the address
	// range and the instructions.
	HasAugData bool
}

// FDE is a Frame Description Entry: the byte-code covering one
// contiguous range of instruction addresses, plus the CIE it shares a
// preamble with.
type FDE struct {
	CIE          *CIE
	InitialLoc   uint64
	AddressRange uint64
	Instructions []byte
}

// MaxCIEPool bounds the number of distinct CIEs a single Machine will
// track; exceeding it is a reader error, not a query-time failure.
const MaxCIEPool = 2000

// ErrCIEPoolExhausted reports that a section declared more distinct
// CIEs than MaxCIEPool. Callers can match it with errors.Is to
// distinguish the resource-cap case from ordinary malformed input.
var ErrCIEPoolExhausted = errors.New("dwarf/frame: CIE pool exhausted")

// maxRuleStackDepth bounds DW_CFA_remember_state nesting.
const maxRuleStackDepth = 4
