// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package line

func uleb128(b []byte) (v uint64, n int) {
	var shift uint
	for {
		x := b[n]
		n++
		v |= uint64(x&0x7f) << shift
		if x&0x80 == 0 {
			return v, n
		}
		shift += 7
	}
}

func sleb128(b []byte) (v int64, n int) {
	var shift uint
	var x byte
	for {
		x = b[n]
		n++
		v |= int64(x&0x7f) << shift
		shift += 7
		if x&0x80 == 0 {
			break
		}
	}
	if shift < 64 && x&0x40 != 0 {
		v |= -1 << shift
	}
	return v, n
}
