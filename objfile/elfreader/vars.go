// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfreader

import (
	"debug/dwarf"
	"debug/elf"

	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/dwarf/vartree"
	"golang.org/x/debuginfo/objfile"
)

// readVars populates rec.Vars by walking the top two DIE levels of
// every compilation unit: subprogram DIEs become scopes bounded by
// [lowpc, highpc), and their direct variable/parameter children (plus
// file-scope variables outside any subprogram) are attributed to those
// scopes. Only shallow DIE shapes are consumed here (addresses, names,
// simple single-operand location expressions); full DW_AT_type
// resolution and location lists belong to the type-info reader, an
// external collaborator.
func readVars(ef *elf.File, rec *objfile.Record, bias int64) error {
	d, err := ef.DWARF()
	if err != nil {
		return err
	}
	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		if err := walkCU(r, rec, bias); err != nil {
			return err
		}
	}
	return nil
}

func walkCU(r *dwarf.Reader, rec *objfile.Record, bias int64) error {
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil || entry.Tag == 0 {
			return nil
		}
		switch entry.Tag {
		case dwarf.TagSubprogram:
			if err := readSubprogram(r, entry, rec, bias); err != nil {
				return err
			}
		case dwarf.TagVariable:
			readGlobalVariable(entry, rec, bias)
			if entry.Children {
				r.SkipChildren()
			}
		case dwarf.TagCompileUnit:
			return nil
		default:
			if entry.Children {
				r.SkipChildren()
			}
		}
	}
}

func readSubprogram(r *dwarf.Reader, fn *dwarf.Entry, rec *objfile.Record, bias int64) error {
	lowpc, _ := fn.Val(dwarf.AttrLowpc).(uint64)
	highpc, ok := highPC(fn, lowpc)
	if !ok || !fn.Children {
		r.SkipChildren()
		return nil
	}
	scope := rec.Vars.AddScope()
	rangeIdx := rec.Vars.AddRange(scope, vartree.AddrRange{
		Lo: uint64(int64(lowpc) + bias),
		Hi: uint64(int64(highpc) + bias),
	})

	// DW_AT_frame_base is the base DW_OP_fbreg locations of this
	// subprogram's variables are relative to; typically a single
	// DW_OP_call_frame_cfa or DW_OP_bregN. Location lists are not
	// handled here, so such a frame base stays unresolved and its
	// variables evaluate to "unknown".
	frameBase := -1
	if fb, ok := fn.Val(dwarf.AttrFrameBase).([]byte); ok && len(fb) > 0 {
		if idx, err := frame.DecodeExpression(rec.Arena, fb); err == nil {
			frameBase = idx
		}
	}

	for {
		child, err := r.Next()
		if err != nil {
			return err
		}
		if child == nil || child.Tag == 0 {
			return nil
		}
		switch child.Tag {
		case dwarf.TagFormalParameter, dwarf.TagVariable:
			addVarToScope(rec, scope, rangeIdx, child, frameBase)
		default:
			if child.Children {
				r.SkipChildren()
			}
		}
	}
}

func highPC(entry *dwarf.Entry, lowpc uint64) (uint64, bool) {
	v := entry.AttrField(dwarf.AttrHighpc)
	if v == nil {
		return 0, false
	}
	switch val := v.Val.(type) {
	case uint64:
		if v.Class == dwarf.ClassAddress {
			return val, true
		}
		return lowpc + val, true // ClassConstant: highpc is an offset from lowpc
	case int64:
		return lowpc + uint64(val), true
	}
	return 0, false
}

func addVarToScope(rec *objfile.Record, scope, rangeIdx int, entry *dwarf.Entry, frameBase int) {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return
	}
	loc, ok := entry.Val(dwarf.AttrLocation).([]byte)
	if !ok || len(loc) == 0 {
		return
	}
	idx, err := frame.DecodeExpression(rec.Arena, loc)
	if err != nil {
		return
	}
	rec.Vars.AddVarToRange(scope, rangeIdx, vartree.Variable{
		Name:      *rec.Strings.Intern(name),
		TypeSize:  typeSize(entry),
		LocExpr:   idx,
		FrameBase: frameBase,
	})
}

func readGlobalVariable(entry *dwarf.Entry, rec *objfile.Record, bias int64) {
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return
	}
	loc, ok := entry.Val(dwarf.AttrLocation).([]byte)
	if !ok || len(loc) == 0 {
		return
	}
	idx, err := frame.DecodeExpression(rec.Arena, loc)
	if err != nil {
		return
	}
	rec.Vars.AddGlobal(vartree.Variable{
		Name:      name,
		TypeSize:  typeSize(entry),
		LocExpr:   idx,
		FrameBase: -1,
	})
}

// typeSize reads DW_AT_byte_size directly off the variable's own DIE
// when present; resolving through DW_AT_type to the referenced type
// DIE is the type-info reader's job. Variables without a size here
// fall back to one byte, so only their exact base address attributes
// to them.
func typeSize(entry *dwarf.Entry) uint64 {
	if v, ok := entry.Val(dwarf.AttrByteSize).(int64); ok && v > 0 {
		return uint64(v)
	}
	return 1
}
