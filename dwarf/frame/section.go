// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import (
	"encoding/binary"
	"fmt"
)

// DW_EH_PE pointer-encoding bytes: the low nibble selects the value
// format, bits 4-6 how the value is applied, bit 7 indirection.
const (
	peAbsptr  = 0x00
	peULEB128 = 0x01
	peUdata2  = 0x02
	peUdata4  = 0x03
	peUdata8  = 0x04
	peSLEB128 = 0x09
	peSdata2  = 0x0a
	peSdata4  = 0x0b
	peSdata8  = 0x0c

	pePCRel = 0x10

	peOmit = 0xff
)

// readEncodedPointer decodes one DW_EH_PE-encoded value from the front
// of b. fieldAddr is the stated address of the encoded bytes
// themselves, the base a pc-relative value is applied against.
// Indirect (bit 7) and application bases other than absolute/pcrel are
// not supported.
func readEncodedPointer(enc byte, b []byte, order binary.ByteOrder, fieldAddr uint64) (val uint64, size int, err error) {
	if enc == peOmit {
		return 0, 0, fmt.Errorf("dwarf/frame: omitted pointer encoding")
	}
	if enc&0x80 != 0 {
		return 0, 0, fmt.Errorf("dwarf/frame: indirect pointer encoding %#x unsupported", enc)
	}
	switch enc & 0x0f {
	case peAbsptr, peUdata8, peSdata8:
		if len(b) < 8 {
			return 0, 0, fmt.Errorf("dwarf/frame: truncated encoded pointer")
		}
		val, size = order.Uint64(b), 8
	case peUdata2:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("dwarf/frame: truncated encoded pointer")
		}
		val, size = uint64(order.Uint16(b)), 2
	case peSdata2:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("dwarf/frame: truncated encoded pointer")
		}
		val, size = uint64(int64(int16(order.Uint16(b)))), 2
	case peUdata4:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("dwarf/frame: truncated encoded pointer")
		}
		val, size = uint64(order.Uint32(b)), 4
	case peSdata4:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("dwarf/frame: truncated encoded pointer")
		}
		val, size = uint64(int64(int32(order.Uint32(b)))), 4
	case peULEB128:
		val, size = uleb128(b)
	case peSLEB128:
		var v int64
		v, size = sleb128(b)
		val = uint64(v)
	default:
		return 0, 0, fmt.Errorf("dwarf/frame: pointer encoding %#x unsupported", enc)
	}
	switch enc & 0x70 {
	case 0:
	case pePCRel:
		val += fieldAddr
	default:
		return 0, 0, fmt.Errorf("dwarf/frame: pointer application %#x unsupported", enc&0x70)
	}
	return val, size, nil
}

// ParseSection walks a raw .debug_frame/.eh_frame section (the
// length-prefixed CIE/FDE block sequence of DWARF4 §7.23), registers
// each CIE with m, runs every FDE's byte-code through m, and offers
// every retained row to summ. sectionAddr is the section's stated
// address, the base for pc-relative FDE pointer encodings; bias is
// added to each FDE's stated initial location to produce the actual
// load address. All persisted rows carry actual addresses.
//
// CIEs with an empty or z-style augmentation ("zR", "zPLR", ...) are
// supported; anything else (only the legacy "eh" form in practice) is
// skipped rather than aborting the whole section, so one unsupported
// CIE/FDE pair never takes down an object's entire CFI table. Only the
// 32-bit DWARF initial-length form is handled.
func ParseSection(data []byte, order binary.ByteOrder, sectionAddr uint64, bias int64, m *Machine, summ *Summarizer) error {
	idx := 0
	cies := map[uint64]*CIE{}
	for idx < len(data) {
		start := idx
		if idx+4 > len(data) {
			break
		}
		length := order.Uint32(data[idx:])
		idx += 4
		if length == 0 {
			break // .eh_frame terminator
		}
		if idx+int(length) > len(data) {
			return fmt.Errorf("dwarf/frame: truncated CFI block at offset %d", start)
		}
		block := data[idx : idx+int(length)]
		idx += int(length)

		id := order.Uint32(block)
		n := 4

		if id == 0xffffffff || id == 0 {
			cie, err := parseCIE(block, n, order)
			if err != nil {
				continue // skip this CIE, keep reading the section
			}
			cies[uint64(start)] = cie
			if err := m.AddCIE(uint64(start), cie); err != nil {
				return err
			}
			continue
		}

		cieOff := uint64(start) - uint64(id)
		cie, ok := cies[cieOff]
		if !ok {
			continue
		}
		// The pointer fields start 8 bytes into the block: 4 of length,
		// 4 of CIE id.
		fieldAddr := sectionAddr + uint64(start) + 8
		fde, err := parseFDE(block, n, cie, order, bias, fieldAddr)
		if err != nil {
			continue
		}
		if _, err := Summarize(m, fde, summ); err != nil {
			continue // abort this FDE only
		}
	}
	return nil
}

func parseCIE(block []byte, n int, order binary.ByteOrder) (*CIE, error) {
	cie := &CIE{FDEEncoding: peAbsptr}
	if n >= len(block) {
		return nil, fmt.Errorf("dwarf/frame: truncated CIE")
	}
	cie.Version = block[n]
	n++
	augStart := n
	for n < len(block) && block[n] != 0 {
		n++
	}
	if n >= len(block) {
		return nil, fmt.Errorf("dwarf/frame: unterminated CIE augmentation string")
	}
	cie.Augmentation = string(block[augStart:n])
	n++
	if cie.Augmentation != "" && cie.Augmentation[0] != 'z' {
		// Only the legacy "eh" form in practice; its augmentation data
		// has no length prefix, so it cannot be skipped safely.
		return nil, fmt.Errorf("dwarf/frame: unsupported CIE augmentation %q", cie.Augmentation)
	}
	ca, k := uleb128(block[n:])
	n += k
	da, k2 := sleb128(block[n:])
	n += k2
	var ra uint64
	if cie.Version == 1 {
		if n >= len(block) {
			return nil, fmt.Errorf("dwarf/frame: truncated CIE body")
		}
		ra = uint64(block[n])
		n++
	} else {
		var k3 int
		ra, k3 = uleb128(block[n:])
		n += k3
	}
	if cie.Augmentation != "" {
		cie.HasAugData = true
		augLen, k4 := uleb128(block[n:])
		n += k4
		end := n + int(augLen)
		if end > len(block) {
			return nil, fmt.Errorf("dwarf/frame: CIE augmentation data overruns block")
		}
	letters:
		for _, c := range cie.Augmentation[1:] {
			switch c {
			case 'R':
				if n >= end {
					return nil, fmt.Errorf("dwarf/frame: truncated CIE augmentation data")
				}
				cie.FDEEncoding = block[n]
				n++
			case 'L':
				// LSDA pointer encoding; the pointer itself lives in
				// each FDE's augmentation data, which parseFDE skips
				// wholesale.
				if n >= end {
					return nil, fmt.Errorf("dwarf/frame: truncated CIE augmentation data")
				}
				n++
			case 'P':
				if n >= end {
					return nil, fmt.Errorf("dwarf/frame: truncated CIE augmentation data")
				}
				enc := block[n]
				n++
				_, sz, err := readEncodedPointer(enc, block[n:end], order, 0)
				if err != nil {
					return nil, err
				}
				n += sz // personality routine pointer, not needed here
			case 'S':
				// Signal frame marker; no data.
			default:
				// Unknown letter: the length prefix still bounds the
				// data, so skip the remainder.
				break letters
			}
		}
		n = end
	}
	if n > len(block) {
		return nil, fmt.Errorf("dwarf/frame: truncated CIE body")
	}
	cie.CodeAlignmentFactor = ca
	cie.DataAlignmentFactor = da
	cie.ReturnAddressReg = int(ra)
	cie.InitialInstructions = append([]byte(nil), block[n:]...)
	return cie, nil
}

func parseFDE(block []byte, n int, cie *CIE, order binary.ByteOrder, bias int64, fieldAddr uint64) (*FDE, error) {
	initLoc, sz, err := readEncodedPointer(cie.FDEEncoding, block[n:], order, fieldAddr)
	if err != nil {
		return nil, err
	}
	n += sz
	// The range field shares the CIE's value format but is a plain
	// byte count, never pc-relative.
	rng, sz2, err := readEncodedPointer(cie.FDEEncoding&0x0f, block[n:], order, 0)
	if err != nil {
		return nil, err
	}
	n += sz2
	if cie.HasAugData {
		augLen, k := uleb128(block[n:])
		n += k + int(augLen)
	}
	if n > len(block) {
		return nil, fmt.Errorf("dwarf/frame: truncated FDE")
	}
	return &FDE{
		CIE:          cie,
		InitialLoc:   uint64(int64(initLoc) + bias),
		AddressRange: rng,
		Instructions: append([]byte(nil), block[n:]...),
	}, nil
}
