// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "fmt"

// DecodeExpression parses a raw DW_OP_* byte sequence into a tree in
// arena, returning the root node index: push-constant (several
// widths/signs), push-register-value (DW_OP_bregN), frame-base- and
// CFA-relative references (DW_OP_fbreg, DW_OP_call_frame_cfa),
// add/sub/and/multiply, and dereference. Division and anything else
// fail the expression by returning an error rather than a root index.
func DecodeExpression(arena *ExprArena, code []byte) (root int, err error) {
	var stack []int
	push := func(idx int) { stack = append(stack, idx) }
	pop := func() (int, error) {
		if len(stack) == 0 {
			return 0, fmt.Errorf("dwarf/frame: expression decode stack underflow")
		}
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return idx, nil
	}

	for i := 0; i < len(code); {
		op := code[i]
		i++
		switch {
		case op == dwOpAddr:
			if i+8 > len(code) {
				return 0, fmt.Errorf("dwarf/frame: truncated DW_OP_addr")
			}
			var v uint64
			for k := 0; k < 8; k++ {
				v |= uint64(code[i+k]) << (8 * k)
			}
			i += 8
			push(arena.add(ExprNode{Op: ExprConst, Const: int64(v)}))
		case op == dwOpDeref:
			child, err := pop()
			if err != nil {
				return 0, err
			}
			push(arena.add(ExprNode{Op: ExprDeref, Child: child}))
		case op == dwOpConst1u:
			if i >= len(code) {
				return 0, fmt.Errorf("dwarf/frame: truncated DW_OP_const1u")
			}
			push(arena.add(ExprNode{Op: ExprConst, Const: int64(code[i])}))
			i++
		case op == dwOpConst1s:
			if i >= len(code) {
				return 0, fmt.Errorf("dwarf/frame: truncated DW_OP_const1s")
			}
			push(arena.add(ExprNode{Op: ExprConst, Const: int64(int8(code[i]))}))
			i++
		case op == dwOpConst2u || op == dwOpConst2s:
			if i+2 > len(code) {
				return 0, fmt.Errorf("dwarf/frame: truncated DW_OP_const2")
			}
			v := int64(uint16(code[i]) | uint16(code[i+1])<<8)
			if op == dwOpConst2s {
				v = int64(int16(v))
			}
			push(arena.add(ExprNode{Op: ExprConst, Const: v}))
			i += 2
		case op == dwOpConst4u || op == dwOpConst4s:
			if i+4 > len(code) {
				return 0, fmt.Errorf("dwarf/frame: truncated DW_OP_const4")
			}
			var u uint32
			for k := 0; k < 4; k++ {
				u |= uint32(code[i+k]) << (8 * k)
			}
			v := int64(u)
			if op == dwOpConst4s {
				v = int64(int32(u))
			}
			push(arena.add(ExprNode{Op: ExprConst, Const: v}))
			i += 4
		case op == dwOpConstu:
			v, n := uleb128(code[i:])
			i += n
			push(arena.add(ExprNode{Op: ExprConst, Const: int64(v)}))
		case op == dwOpConsts:
			v, n := sleb128(code[i:])
			i += n
			push(arena.add(ExprNode{Op: ExprConst, Const: v}))
		case op >= dwOpBreg0 && op <= dwOpBreg31:
			reg := int(op - dwOpBreg0)
			off, n := sleb128(code[i:])
			i += n
			regNode := arena.add(ExprNode{Op: ExprSourceRegister, Reg: reg})
			offNode := arena.add(ExprNode{Op: ExprConst, Const: off})
			push(arena.add(ExprNode{Op: ExprAdd, Left: regNode, Right: offNode}))
		case op == dwOpFbreg:
			off, n := sleb128(code[i:])
			i += n
			fbNode := arena.add(ExprNode{Op: ExprFrameBase})
			offNode := arena.add(ExprNode{Op: ExprConst, Const: off})
			push(arena.add(ExprNode{Op: ExprAdd, Left: fbNode, Right: offNode}))
		case op == dwOpCallFrameCFA:
			push(arena.add(ExprNode{Op: ExprCallFrameCFA}))
		case op == dwOpPlus || op == dwOpMinus || op == dwOpAnd || op == dwOpMul:
			r, err := pop()
			if err != nil {
				return 0, err
			}
			l, err := pop()
			if err != nil {
				return 0, err
			}
			var eop ExprOp
			switch op {
			case dwOpPlus:
				eop = ExprAdd
			case dwOpMinus:
				eop = ExprSub
			case dwOpAnd:
				eop = ExprAnd
			case dwOpMul:
				eop = ExprMul
			}
			push(arena.add(ExprNode{Op: eop, Left: l, Right: r}))
		default:
			return 0, fmt.Errorf("dwarf/frame: unsupported DW_OP opcode %#x", op)
		}
	}
	return pop()
}
