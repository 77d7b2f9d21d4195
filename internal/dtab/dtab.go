// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dtab implements growable, ordered-array table primitives:
// sorting by a caller-supplied key, coalescing adjacent records,
// truncating overlaps, dropping zero-length records, and binary
// search. The package is index-based rather than generic over a
// record type; callers drive an IndexTable through small index-taking
// callbacks, so the record type itself stays in the caller's package.
package dtab

import "golang.org/x/exp/slices"

// IndexTable canonicalises and searches a table of n records addressed
// purely by index; the caller supplies the comparisons and mutations
// since the record type itself is owned by the caller's package
// (objfile's symbol/line/CFI tables).
type IndexTable struct {
	// Len returns the current number of records.
	Len func() int
	// Less reports whether record i sorts before record j by primary
	// address.
	Less func(i, j int) bool
	// Swap exchanges records i and j.
	Swap func(i, j int)
	// Truncate drops the table down to the first n records.
	Truncate func(n int)
}

// Sort orders the table by primary address using Less/Swap.
func (t IndexTable) Sort() {
	sortByIndex(t.Len(), t.Less, t.Swap)
}

func indices(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

// sortByIndex is an insertion-sort-free, index-permuting sort: it sorts a
// permutation array with slices.SortFunc, then applies that permutation
// to the underlying table via Swap — letting the caller's table stay a
// plain slice of value-typed records rather than needing to implement
// sort.Interface with an alien Less built from indices alone.
func sortByIndex(n int, less func(i, j int) bool, swap func(i, j int)) {
	if n < 2 {
		return
	}
	perm := indices(n)
	slices.SortFunc(perm, func(a, b int) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		default:
			return 0
		}
	})
	// perm[i] names the record that belongs at slot i. The cycle-walk
	// below moves record i to slot inv[i], so it needs the inverse
	// permutation; inv is kept in sync with every swap so each entry
	// still names the destination of the record now sitting there.
	inv := make([]int, n)
	for i, j := range perm {
		inv[j] = i
	}
	for i := 0; i < n; i++ {
		for inv[i] != i {
			j := inv[i]
			swap(i, j)
			inv[i], inv[j] = inv[j], inv[i]
		}
	}
}

// Coalesce removes adjacent records describing an identical payload over
// a contiguous address range. equal reports
// whether records i and i+1 have identical non-address payload and are
// contiguous; merge extends record i to absorb i+1 (e.g. grow its
// length) before i+1 is dropped.
func (t IndexTable) Coalesce(equal func(i, j int) bool, merge func(i, j int)) {
	n := t.Len()
	if n < 2 {
		return
	}
	w := 0
	for r := 0; r < n; r++ {
		if w > 0 && equal(w-1, r) {
			merge(w-1, r)
			continue
		}
		if w != r {
			t.Swap(w, r)
		}
		w++
	}
	t.Truncate(w)
}

// TruncateOverlaps walks the sorted table and, wherever record i's end
// exceeds record i+1's start, truncates record i so its end equals
// record i+1's start. end returns record i's current end
// address; trunc sets record i's end to newEnd.
func TruncateOverlaps(n int, start, end func(i int) uint64, trunc func(i int, newEnd uint64)) {
	for i := 0; i+1 < n; i++ {
		if end(i) > start(i+1) {
			trunc(i, start(i+1))
		}
	}
}

// DropZeroLength removes records for which isZero reports true,
// compacting the table in place.
func (t IndexTable) DropZeroLength(isZero func(i int) bool) {
	n := t.Len()
	w := 0
	for r := 0; r < n; r++ {
		if isZero(r) {
			continue
		}
		if w != r {
			t.Swap(w, r)
		}
		w++
	}
	t.Truncate(w)
}

// BinarySearch returns the index of the first record whose key (as
// produced by at) is >= key, and whether an exact match was found at
// that index. The table (addressed through at, in index order) must
// already be sorted ascending by key, the postcondition Sort leaves it
// in. Internally this runs golang.org/x/exp/slices.BinarySearchFunc over
// the table's index permutation, rather than reimplementing the probe
// loop by hand, so the table stays index-based (callers own the record
// type) while still sharing the generic search machinery sortByIndex
// already pulls in for Sort.
func BinarySearch(n int, at func(i int) uint64, key uint64) (idx int, found bool) {
	return slices.BinarySearchFunc(indices(n), key, func(i int, key uint64) int {
		switch v := at(i); {
		case v < key:
			return -1
		case v > key:
			return 1
		default:
			return 0
		}
	})
}

// Predecessor returns the index of the last record whose key (as
// produced by at) is <= key, or -1 if every record's key exceeds key
// (or the table is empty). This is the containment query used by the
// symbol, line, and CFI lookups: the record whose range might contain
// an address falling strictly between two consecutive starts.
func Predecessor(n int, at func(i int) uint64, key uint64) int {
	idx, found := BinarySearch(n, at, key)
	if found {
		return idx
	}
	return idx - 1
}
