// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package core holds the small vocabulary of address and permission
// types shared by every other package in this module: the actual
// virtual address of a byte in a loaded image (Address), and the
// read/write/execute permissions of a memory region (Perm).
package core

import "fmt"

// Address is an actual virtual memory address: the address at which a
// byte of a loaded object resides once mapped, as opposed to the
// stated address recorded in the object file itself.
type Address uint64

// Add returns a+Address(b).
func (a Address) Add(b int64) Address {
	return Address(int64(a) + b)
}

// Sub returns int64(a-b).
func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

func (a Address) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}
