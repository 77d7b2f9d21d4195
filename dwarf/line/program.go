// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package line

import "fmt"

// Header is the line-number program preamble: the handful of fields the
// state machine needs to interpret standard and special opcodes, plus
// the file/directory side tables index 0 of which is reserved for
// "unknown".
type Header struct {
	MinInstructionLength uint8
	DefaultIsStmt        bool
	LineBase             int8
	LineRange            uint8
	OpcodeBase           uint8
	StdOpcodeLengths     []uint8 // length OpcodeBase-1, index 0 == opcode 1

	// CompDir is the compilation directory, used to qualify relative
	// file names when there is room.
	CompDir string

	// Dirs and Files are 1-indexed side tables; index 0 is reserved.
	Dirs  []string
	Files []FileEntry
}

// FileEntry names one file table entry: its raw name and the index into
// Dirs of its directory (0 meaning "no directory recorded").
type FileEntry struct {
	Name   string
	DirIdx int
}

// Record is one emitted line-table row: code covering [Lo, Hi) belongs
// to File at SourceLine.
type Record struct {
	Lo, Hi     uint64
	File       int
	SourceLine int
	Column     int
	IsStmt     bool
}

// ResolvedName returns the named file-table entry, qualified with its
// directory when the name is relative and a directory is known.
// Absolute paths are returned as-is; relative paths fall back to the
// compilation directory when the file's own directory index is unset.
func (h *Header) ResolvedName(fileIdx int) string {
	if fileIdx <= 0 || fileIdx >= len(h.Files) {
		return "<unknown>"
	}
	f := h.Files[fileIdx]
	if len(f.Name) > 0 && f.Name[0] == '/' {
		return f.Name
	}
	dir := ""
	if f.DirIdx > 0 && f.DirIdx < len(h.Dirs) {
		dir = h.Dirs[f.DirIdx]
	} else if h.CompDir != "" {
		dir = h.CompDir
	}
	if dir == "" {
		return f.Name
	}
	return dir + "/" + f.Name
}

// state is the line-number state machine's register set.
type state struct {
	address    uint64
	file       int
	line       int
	column     int
	isStmt     bool
	basicBlock bool

	lastAddr uint64
	lastFile int
	lastLine int
	haveLast bool
}

func newState(h *Header) *state {
	return &state{file: 1, line: 1, isStmt: h.DefaultIsStmt}
}

// Program is a parsed line-number program ready to run.
type Program struct {
	Header Header
	Insns  []byte
}

// Run executes the program's byte-code, invoking emit once per closed
// row: at every boundary where is-stmt holds and the address advanced,
// a record covering [last-boundary, current) is emitted with the
// last-boundary file and line. end-sequence flushes the final record
// and resets the state machine. A malformed program aborts with an
// error; rows already emitted are retained by the caller.
func (p *Program) Run(emit func(Record)) error {
	h := &p.Header
	st := newState(h)
	code := p.Insns

	boundary := func(addr uint64) {
		if st.haveLast && st.isStmt && addr > st.lastAddr {
			emit(Record{
				Lo:         st.lastAddr,
				Hi:         addr,
				File:       st.lastFile,
				SourceLine: st.lastLine,
				Column:     st.column,
				IsStmt:     st.isStmt,
			})
		}
		st.lastAddr = addr
		st.lastFile = st.file
		st.lastLine = st.line
		st.haveLast = true
	}

	for i := 0; i < len(code); {
		op := code[i]
		i++

		switch {
		case op == 0:
			// Extended opcode: ULEB128 length, then the opcode byte
			// and its operands.
			length, n := uleb128(code[i:])
			i += n
			if i+int(length) > len(code) {
				return fmt.Errorf("dwarf/line: truncated extended opcode")
			}
			block := code[i : i+int(length)]
			i += int(length)
			if len(block) == 0 {
				return fmt.Errorf("dwarf/line: empty extended opcode")
			}
			switch block[0] {
			case extEndSequence:
				boundary(st.address)
				st = newState(h)
			case extSetAddress:
				b := block[1:]
				var v uint64
				for k := 0; k < len(b) && k < 8; k++ {
					v |= uint64(b[k]) << (8 * k)
				}
				st.address = v
			case extDefineFile:
				name, n := cstring(block[1:])
				rest := block[1+n:]
				dir, n2 := uleb128(rest)
				rest = rest[n2:]
				_, n3 := uleb128(rest) // mtime, unused
				rest = rest[n3:]
				uleb128(rest) // length, unused
				h.Files = append(h.Files, FileEntry{Name: name, DirIdx: int(dir)})
			default:
				// Vendor extension; the length prefix makes skipping
				// always safe.
			}
			continue
		case op < h.OpcodeBase:
			switch op {
			case opCopy:
				boundary(st.address)
				st.basicBlock = false
			case opAdvancePC:
				v, n := uleb128(code[i:])
				i += n
				st.address += v * uint64(h.MinInstructionLength)
			case opAdvanceLine:
				v, n := sleb128(code[i:])
				i += n
				st.line += int(v)
			case opSetFile:
				v, n := uleb128(code[i:])
				i += n
				st.file = int(v)
			case opSetColumn:
				v, n := uleb128(code[i:])
				i += n
				st.column = int(v)
			case opNegateStmt:
				st.isStmt = !st.isStmt
			case opSetBasicBlock:
				st.basicBlock = true
			case opConstAddPC:
				adjusted := 255 - int(h.OpcodeBase)
				addrAdv := adjusted / int(h.LineRange)
				st.address += uint64(addrAdv) * uint64(h.MinInstructionLength)
			case opFixedAdvancePC:
				if i+2 > len(code) {
					return fmt.Errorf("dwarf/line: truncated DW_LNS_fixed_advance_pc")
				}
				v := uint16(code[i]) | uint16(code[i+1])<<8
				i += 2
				st.address += uint64(v)
			case opSetPrologueEnd, opSetEpilogueBegin:
				// Tracked by CfSI/debuggers for step-over heuristics,
				// not by this reader.
			case opSetISA:
				_, n := uleb128(code[i:])
				i += n
			default:
				// Unknown standard opcode: skip its declared operand
				// count, per the header's StdOpcodeLengths table.
				if int(op)-1 < len(h.StdOpcodeLengths) {
					for k := uint8(0); k < h.StdOpcodeLengths[op-1]; k++ {
						_, n := uleb128(code[i:])
						i += n
					}
				}
			}
		default:
			adjusted := int(op) - int(h.OpcodeBase)
			addrAdv := adjusted / int(h.LineRange)
			lineAdv := int(h.LineBase) + adjusted%int(h.LineRange)
			st.address += uint64(addrAdv) * uint64(h.MinInstructionLength)
			st.line += lineAdv
			boundary(st.address)
			st.basicBlock = false
		}
	}
	return nil
}

func cstring(b []byte) (string, int) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1
		}
	}
	return string(b), len(b)
}
