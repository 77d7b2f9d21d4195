// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// record is a tiny addressable payload used to drive an IndexTable
// through a caller's own slice, mirroring how objfile's symbol/line/CFI
// tables each wrap a []T with an IndexTable.
type record struct {
	addr uint64
	tag  string
}

func newTable(recs *[]record) IndexTable {
	return IndexTable{
		Len:      func() int { return len(*recs) },
		Less:     func(i, j int) bool { return (*recs)[i].addr < (*recs)[j].addr },
		Swap:     func(i, j int) { (*recs)[i], (*recs)[j] = (*recs)[j], (*recs)[i] },
		Truncate: func(n int) { *recs = (*recs)[:n] },
	}
}

func TestSortOrdersByAddress(t *testing.T) {
	recs := []record{{30, "c"}, {10, "a"}, {20, "b"}}
	newTable(&recs).Sort()
	assert.Equal(t, []record{{10, "a"}, {20, "b"}, {30, "c"}}, recs)
}

func TestSortStableUnderAlreadySorted(t *testing.T) {
	recs := []record{{1, "a"}, {2, "b"}, {3, "c"}}
	newTable(&recs).Sort()
	assert.Equal(t, []record{{1, "a"}, {2, "b"}, {3, "c"}}, recs)
}

func TestSortHandlesSmallInputs(t *testing.T) {
	var empty []record
	newTable(&empty).Sort()
	assert.Empty(t, empty)

	one := []record{{5, "x"}}
	newTable(&one).Sort()
	assert.Equal(t, []record{{5, "x"}}, one)
}

func TestCoalesceMergesAdjacentIdenticalRecords(t *testing.T) {
	recs := []record{{0, "a"}, {10, "a"}, {20, "b"}}
	table := newTable(&recs)
	table.Coalesce(
		func(i, j int) bool { return recs[i].tag == recs[j].tag },
		func(i, j int) { /* keep i's address, absorb j */ },
	)
	assert.Equal(t, []record{{0, "a"}, {20, "b"}}, recs)
}

func TestCoalesceNoOpWhenNothingAdjacentMatches(t *testing.T) {
	recs := []record{{0, "a"}, {10, "b"}, {20, "c"}}
	table := newTable(&recs)
	table.Coalesce(
		func(i, j int) bool { return recs[i].tag == recs[j].tag },
		func(i, j int) {},
	)
	assert.Equal(t, []record{{0, "a"}, {10, "b"}, {20, "c"}}, recs)
}

func TestTruncateOverlapsClampsEndToNextStart(t *testing.T) {
	type span struct{ lo, hi uint64 }
	spans := []span{{0, 20}, {10, 30}, {30, 40}}
	TruncateOverlaps(len(spans),
		func(i int) uint64 { return spans[i].lo },
		func(i int) uint64 { return spans[i].hi },
		func(i int, newEnd uint64) { spans[i].hi = newEnd },
	)
	assert.Equal(t, []span{{0, 10}, {10, 30}, {30, 40}}, spans)
}

func TestTruncateOverlapsNoOpWhenAlreadyDisjoint(t *testing.T) {
	type span struct{ lo, hi uint64 }
	spans := []span{{0, 10}, {10, 20}}
	TruncateOverlaps(len(spans),
		func(i int) uint64 { return spans[i].lo },
		func(i int) uint64 { return spans[i].hi },
		func(i int, newEnd uint64) { spans[i].hi = newEnd },
	)
	assert.Equal(t, []span{{0, 10}, {10, 20}}, spans)
}

func TestDropZeroLengthCompactsInPlace(t *testing.T) {
	recs := []record{{0, "a"}, {0, "zero"}, {10, "b"}, {0, "zero2"}, {20, "c"}}
	table := newTable(&recs)
	table.DropZeroLength(func(i int) bool { return recs[i].tag == "zero" || recs[i].tag == "zero2" })
	assert.Equal(t, []record{{0, "a"}, {10, "b"}, {20, "c"}}, recs)
}

func TestBinarySearchFindsExactMatch(t *testing.T) {
	keys := []uint64{10, 20, 30, 40}
	at := func(i int) uint64 { return keys[i] }

	idx, found := BinarySearch(len(keys), at, 30)
	assert.True(t, found)
	assert.Equal(t, 2, idx)
}

func TestBinarySearchReturnsInsertionPointWhenAbsent(t *testing.T) {
	keys := []uint64{10, 20, 30, 40}
	at := func(i int) uint64 { return keys[i] }

	idx, found := BinarySearch(len(keys), at, 25)
	assert.False(t, found)
	assert.Equal(t, 2, idx)

	idx, found = BinarySearch(len(keys), at, 5)
	assert.False(t, found)
	assert.Equal(t, 0, idx)

	idx, found = BinarySearch(len(keys), at, 100)
	assert.False(t, found)
	assert.Equal(t, 4, idx)
}

func TestBinarySearchEmptyTable(t *testing.T) {
	idx, found := BinarySearch(0, func(int) uint64 { return 0 }, 1)
	assert.False(t, found)
	assert.Equal(t, 0, idx)
}

func TestPredecessorFindsLastKeyAtOrBelow(t *testing.T) {
	keys := []uint64{10, 20, 30, 40}
	at := func(i int) uint64 { return keys[i] }

	assert.Equal(t, 2, Predecessor(len(keys), at, 30)) // exact match
	assert.Equal(t, 2, Predecessor(len(keys), at, 35)) // between 30 and 40
	assert.Equal(t, 3, Predecessor(len(keys), at, 100))
	assert.Equal(t, -1, Predecessor(len(keys), at, 5))
}

func TestPredecessorEmptyTable(t *testing.T) {
	assert.Equal(t, -1, Predecessor(0, func(int) uint64 { return 0 }, 1))
}
