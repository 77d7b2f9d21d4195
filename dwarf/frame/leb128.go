// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

// uleb128 and sleb128 decode the LEB128 integer encodings DWARF uses
// throughout CFI byte-code (register numbers, offsets, block lengths).

func uleb128(b []byte) (v uint64, n int) {
	var shift uint
	for i, x := range b {
		v |= (uint64(x) & 0x7F) << shift
		shift += 7
		if x&0x80 == 0 {
			return v, i + 1
		}
	}
	return v, len(b)
}

func sleb128(b []byte) (v int64, n int) {
	var shift uint
	var result int64
	for i, x := range b {
		result |= (int64(x) & 0x7F) << shift
		shift += 7
		if x&0x80 == 0 {
			if shift < 64 && x&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1
		}
	}
	return result, len(b)
}
