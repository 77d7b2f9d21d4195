// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

// A Mapping represents a contiguous subset of an inferior's address
// space, as observed by a single notify-map delivery.
type Mapping struct {
	Min  Address
	Max  Address
	Perm Perm

	// Off is the offset within the backing file at which this mapping
	// starts.
	Off int64
}

// Size returns int64(Max-Min).
func (m *Mapping) Size() int64 {
	return m.Max.Sub(m.Min)
}

// Contains reports whether a falls within [Min, Max).
func (m *Mapping) Contains(a Address) bool {
	return m.Min <= a && a < m.Max
}

// Overlaps reports whether m and n share any address.
func (m *Mapping) Overlaps(n *Mapping) bool {
	return m.Min < n.Max && n.Min < m.Max
}

// AccessibleRange is the caller-supplied sandbox within which CFI/location
// expression dereferences are permitted. It is
// intentionally a flat range rather than a general memory map: the guest
// memory reader that backs it is an external collaborator.
type AccessibleRange struct {
	Lo, Hi Address
}

// Contains reports whether reading n bytes at a stays within the range.
func (r AccessibleRange) Contains(a Address, n int64) bool {
	if n <= 0 {
		return false
	}
	end := a.Add(n)
	return a >= r.Lo && end <= r.Hi && end >= a
}
