// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import "strings"

// A Perm represents the permissions an address-space manager reported
// for a mapping.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
)

func (p Perm) String() string {
	var a [3]string
	b := a[:0]
	if p&Read != 0 {
		b = append(b, "Read")
	}
	if p&Write != 0 {
		b = append(b, "Write")
	}
	if p&Exec != 0 {
		b = append(b, "Exec")
	}
	if len(b) == 0 {
		b = append(b, "None")
	}
	return strings.Join(b, "|")
}

// Platform supplies the per-platform permission-combination rule:
// whether a writable+executable mapping still counts as "text-like",
// and whether a readable+writable+executable mapping still counts as
// "data-like". On most platforms both answers are false (W^X); some
// older ELF toolchains mark PLT/GOT sections RWX and still expect them
// classified appropriately.
type Platform interface {
	// TextLikeAllowed reports whether a mapping with the given
	// permissions, which is already known to be Read|Exec, may still be
	// classified as text-like even though it also carries Write.
	TextLikeAllowed(p Perm) bool
	// DataLikeAllowed reports whether a mapping with the given
	// permissions, which is already known to be Read|Write, may still be
	// classified as data-like even though it also carries Exec.
	DataLikeAllowed(p Perm) bool
}

// DefaultPlatform implements the common W^X rule: a mapping is text-like
// only if it is not also writable, and data-like only if it is not also
// executable.
type DefaultPlatform struct{}

func (DefaultPlatform) TextLikeAllowed(p Perm) bool { return p&Write == 0 }
func (DefaultPlatform) DataLikeAllowed(p Perm) bool { return p&Exec == 0 }

// ClassifyMapping classifies a mapping as text-like if it is readable
// and executable and (platform-permits or not writable), and as
// data-like if it is readable and writable and (platform-permits or
// not executable). A mapping that is neither is ignored by the
// registry.
func ClassifyMapping(p Perm, plat Platform) (text, data bool) {
	if plat == nil {
		plat = DefaultPlatform{}
	}
	if p&Read != 0 && p&Exec != 0 && (plat.TextLikeAllowed(p) || p&Write == 0) {
		text = true
	}
	if p&Read != 0 && p&Write != 0 && (plat.DataLikeAllowed(p) || p&Exec == 0) {
		data = true
	}
	return text, data
}
