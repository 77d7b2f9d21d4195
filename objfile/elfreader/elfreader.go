// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elfreader implements the ELF-specific format reader: it
// walks an ELF image's section headers and symbol table via stdlib
// debug/elf, decodes the raw .debug_frame/.eh_frame and .debug_line
// byte-code with this module's own dwarf/frame and dwarf/line VMs, and
// populates an objfile.Record's tables, string arena, and CFI min/max
// summary.
package elfreader

import (
	"debug/elf"
	"errors"
	"fmt"

	"golang.org/x/debuginfo/arch"
	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/dwarf/line"
	"golang.org/x/debuginfo/objfile"
)

// Reader reads ELF objects for registry.Reader.
type Reader struct{}

// CanRead reports whether header starts with the ELF magic number.
func (Reader) CanRead(header []byte) bool {
	return len(header) >= 4 && header[0] == 0x7f && header[1] == 'E' && header[2] == 'L' && header[3] == 'F'
}

// dwarfArchFor maps an ELF machine to the DWARF register numbering the
// CFI VM needs to recognise SP/FP/return-address.
func dwarfArchFor(machine elf.Machine) frame.DwarfArch {
	switch machine {
	case elf.EM_X86_64:
		return frame.DwarfArch{SP: arch.AMD64.DwarfSPRegister, FP: arch.AMD64.DwarfFPRegister, ReturnReg: arch.AMD64.DwarfReturnRegister}
	case elf.EM_386:
		return frame.DwarfArch{SP: arch.X86.DwarfSPRegister, FP: arch.X86.DwarfFPRegister, ReturnReg: arch.X86.DwarfReturnRegister}
	case elf.EM_ARM:
		return frame.DwarfArch{SP: arch.ARM.DwarfSPRegister, FP: arch.ARM.DwarfFPRegister, ReturnReg: arch.ARM.DwarfReturnRegister}
	default:
		return frame.DwarfArch{SP: arch.AMD64.DwarfSPRegister, FP: arch.AMD64.DwarfFPRegister, ReturnReg: arch.AMD64.DwarfReturnRegister}
	}
}

// Read implements registry.Reader: it fills rec's sections, tables,
// string arena and expression arena from the ELF file at rec.Filename.
func (Reader) Read(rec *objfile.Record) error {
	ef, err := elf.Open(rec.Filename)
	if err != nil {
		return err
	}
	defer ef.Close()

	bias := textBias(ef, rec)
	rec.Sections.TextBias = bias
	fillSections(ef, &rec.Sections, bias)

	readSymbols(ef, rec, bias)

	if err := readFrame(ef, rec, bias); err != nil {
		// Malformed CFI aborts only the affected FDEs; a section-level
		// failure (bad section, not a single FDE) drops the CFI table
		// and acquisition continues without it. Blowing the CIE pool is
		// the exception: that is a resource-cap reader error the
		// registry reports, and partial results are discarded with it.
		if errors.Is(err, frame.ErrCIEPoolExhausted) {
			return err
		}
		rec.CFI = nil
	}

	if err := readLines(ef, rec, bias); err != nil {
		rec.Lines = nil
	}

	// A missing or malformed .debug_info is not fatal to acquisition:
	// variable attribution is best-effort on top of the symbol/line/CFI
	// tables that already succeeded.
	_ = readVars(ef, rec, bias)

	return nil
}

// textBias computes actual-minus-stated for the text segment: the
// record's RX mapping's actual base minus the ELF's first executable
// PT_LOAD segment's stated vaddr.
func textBias(ef *elf.File, rec *objfile.Record) int64 {
	if rec.RX == nil {
		return 0
	}
	for _, prog := range ef.Progs {
		if prog.Type == elf.PT_LOAD && prog.Flags&elf.PF_X != 0 {
			return int64(uint64(rec.RX.Min)) - int64(prog.Vaddr)
		}
	}
	return 0
}

func fillSections(ef *elf.File, s *objfile.Sections, bias int64) {
	set := func(d *objfile.SectionDesc, name string) {
		sec := ef.Section(name)
		if sec == nil {
			return
		}
		d.Present = true
		d.Base = uint64(int64(sec.Addr) + bias)
		d.Size = sec.Size
	}
	set(&s.Text, ".text")
	set(&s.Data, ".data")
	set(&s.SData, ".sdata")
	set(&s.BSS, ".bss")
	set(&s.SBSS, ".sbss")
	set(&s.RoData, ".rodata")
	set(&s.PLT, ".plt")
	set(&s.GOT, ".got")
	set(&s.GOTPLT, ".got.plt")
	set(&s.OPD, ".opd")
}

func readSymbols(ef *elf.File, rec *objfile.Record, bias int64) {
	syms, err := ef.Symbols()
	if err != nil {
		return
	}
	for _, s := range syms {
		if s.Name == "" || s.Value == 0 {
			continue
		}
		isText := elf.ST_TYPE(s.Info) == elf.STT_FUNC
		rec.Symbols = append(rec.Symbols, objfile.Symbol{
			Addr:   core.Address(int64(s.Value) + bias),
			Size:   s.Size,
			Name:   rec.Strings.Intern(s.Name),
			IsText: isText,
		})
	}
}

// readFrame decodes .eh_frame (preferred, present in stripped binaries
// too) or .debug_frame into CfSI rows via frame.ParseSection; the
// actual byte-code interpretation never happens here.
func readFrame(ef *elf.File, rec *objfile.Record, bias int64) error {
	sec := ef.Section(".eh_frame")
	if sec == nil {
		sec = ef.Section(".debug_frame")
	}
	if sec == nil {
		return nil
	}
	data, err := sec.Data()
	if err != nil {
		return err
	}

	darch := dwarfArchFor(ef.Machine)
	m := frame.NewMachine(darch)
	summ := frame.NewSummarizer(darch, rec.Arena)

	if err := frame.ParseSection(data, ef.ByteOrder, sec.Addr, bias, m, summ); err != nil {
		return err
	}
	rec.CFI = summ.Rows
	return nil
}

func readLines(ef *elf.File, rec *objfile.Record, bias int64) error {
	data, err := dwarfLineData(ef)
	if err != nil || data == nil {
		return err
	}
	// One line-number program per compilation unit, back to back.
	for len(data) > 0 {
		hdr, insns, next, err := parseLineHeader(data)
		if err != nil {
			return err
		}
		prog := &line.Program{Header: *hdr, Insns: insns}
		err = prog.Run(func(r line.Record) {
			if r.Hi <= r.Lo {
				return
			}
			rec.Lines = append(rec.Lines, objfile.Line{
				Addr:       core.Address(int64(r.Lo) + bias),
				Span:       uint32(r.Hi - r.Lo),
				SourceLine: uint32(r.SourceLine),
				File:       rec.Strings.Intern(hdr.ResolvedName(r.File)),
			})
		})
		if err != nil {
			return err
		}
		if next <= 0 || next >= len(data) {
			break
		}
		data = data[next:]
	}
	return nil
}

func dwarfLineData(ef *elf.File) ([]byte, error) {
	sec := ef.Section(".debug_line")
	if sec == nil {
		return nil, nil
	}
	return sec.Data()
}

// parseLineHeader parses the DWARF line-number program header (DWARF
// 2-4 layout) that precedes the byte-code dwarf/line.Program.Run
// consumes. One compilation unit's program is handled per call; next
// is the offset of the following unit within data.
func parseLineHeader(data []byte) (h *line.Header, insns []byte, next int, err error) {
	if len(data) < 4 {
		return nil, nil, 0, fmt.Errorf("objfile/elfreader: .debug_line too short")
	}
	unitLength := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	i := 4
	if i+2 > len(data) {
		return nil, nil, 0, fmt.Errorf("objfile/elfreader: truncated line header")
	}
	_ = uint16(data[i]) | uint16(data[i+1])<<8 // version
	i += 2
	if i+4 > len(data) {
		return nil, nil, 0, fmt.Errorf("objfile/elfreader: truncated line header")
	}
	headerLength := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
	i += 4
	programStart := i + int(headerLength)

	h = &line.Header{}
	h.MinInstructionLength = data[i]
	i++
	h.DefaultIsStmt = data[i] != 0
	i++
	h.LineBase = int8(data[i])
	i++
	h.LineRange = data[i]
	i++
	h.OpcodeBase = data[i]
	i++
	h.StdOpcodeLengths = make([]uint8, h.OpcodeBase-1)
	for k := range h.StdOpcodeLengths {
		h.StdOpcodeLengths[k] = data[i]
		i++
	}

	h.Dirs = append(h.Dirs, "")
	for {
		s, n := cstringAt(data[i:])
		i += n
		if s == "" {
			break
		}
		h.Dirs = append(h.Dirs, s)
	}
	h.Files = append(h.Files, line.FileEntry{})
	for {
		s, n := cstringAt(data[i:])
		i += n
		if s == "" {
			break
		}
		dirIdx, n2 := uleb128(data[i:])
		i += n2
		_, n3 := uleb128(data[i:]) // mtime
		i += n3
		_, n4 := uleb128(data[i:]) // length
		i += n4
		h.Files = append(h.Files, line.FileEntry{Name: s, DirIdx: int(dirIdx)})
	}

	end := 4 + int(unitLength)
	if end > len(data) {
		end = len(data)
	}
	if programStart > end {
		return nil, nil, 0, fmt.Errorf("objfile/elfreader: line header overruns its unit")
	}
	return h, data[programStart:end], end, nil
}

func cstringAt(b []byte) (string, int) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1
		}
	}
	return "", len(b)
}

func uleb128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	var i int
	for {
		if i >= len(b) {
			return result, i
		}
		c := b[i]
		i++
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, i
}
