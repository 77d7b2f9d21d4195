// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/diag"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/objfile"
)

// fakeReader recognizes any file whose header starts with "FK" and fills
// in a single symbol at the record's RX base, so tests never need a real
// ELF file on disk.
type fakeReader struct {
	failRead bool
}

func (fakeReader) CanRead(header []byte) bool {
	return len(header) >= 2 && header[0] == 'F' && header[1] == 'K'
}

func (f fakeReader) Read(rec *objfile.Record) error {
	if f.failRead {
		return os.ErrInvalid
	}
	name := "main"
	rec.Symbols = append(rec.Symbols, objfile.Symbol{Addr: rec.RX.Min, Size: 0x10, Name: &name, IsText: true})
	return nil
}

type fakeFileInfo struct{ name string }

func (f fakeFileInfo) Name() string { return f.name }
func (fakeFileInfo) Size() int64 { return 0 }
func (fakeFileInfo) Mode() os.FileMode { return 0644 }
func (fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fakeFileInfo) IsDir() bool { return false }
func (fakeFileInfo) Sys() any { return nil }

// newTestRegistry builds a registry whose filesystem probes are faked out,
// so NotifyMap's eligibility gate and acquisition path run without touching
// disk.
func newTestRegistry(readers ...Reader) *Registry {
	g := New(readers, nil, nil, core.DefaultPlatform{})
	g.statFile = func(name string) (os.FileInfo, error) { return fakeFileInfo{name: name}, nil }
	g.readHdr = func(name string, n int) ([]byte, error) { return []byte("FK"), nil }
	return g
}

func rxMapping(lo, hi uint64) core.Mapping {
	return core.Mapping{Min: core.Address(lo), Max: core.Address(hi), Perm: core.Read | core.Exec}
}

func rwMapping(lo, hi uint64) core.Mapping {
	return core.Mapping{Min: core.Address(lo), Max: core.Address(hi), Perm: core.Read | core.Write}
}

func TestNotifyMapRequiresBothMappingKinds(t *testing.T) {
	g := newTestRegistry(fakeReader{})

	h := g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	assert.Zero(t, h, "acquisition must not happen until both RX and RW are present")

	h = g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	require.NotZero(t, h, "acquisition should happen once RW arrives")
	assert.Equal(t, uint64(1), h, "first acquired handle is 1")
}

func TestHandlesAreMonotonicAndNeverReused(t *testing.T) {
	g := newTestRegistry(fakeReader{})

	h1 := g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	h1 = g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	h2 := g.NotifyMap(rxMapping(0x5000, 0x6000), "b.so", "")
	h2 = g.NotifyMap(rwMapping(0x7000, 0x7100), "b.so", "")

	require.NotZero(t, h1)
	require.NotZero(t, h2)
	assert.Less(t, h1, h2, "handles increase monotonically")

	g.NotifyUnmap(core.Address(0x1000), 0x1000)
	h3 := g.NotifyMap(rxMapping(0x1000, 0x2000), "c.so", "")
	h3 = g.NotifyMap(rwMapping(0x9000, 0x9100), "c.so", "")
	require.NotZero(t, h3)
	assert.Greater(t, h3, h2, "a handle is never reused even after discard")
}

func TestOverlapDiscardsPriorRecord(t *testing.T) {
	g := newTestRegistry(fakeReader{})

	g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	h1 := g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	require.NotZero(t, h1)
	require.Len(t, g.Records(), 1)

	// b.so's RX overlaps a.so's RX: acquiring b.so must discard a.so first.
	g.NotifyMap(rxMapping(0x1800, 0x2800), "b.so", "")
	h2 := g.NotifyMap(rwMapping(0x4000, 0x4100), "b.so", "")
	require.NotZero(t, h2)

	recs := g.Records()
	require.Len(t, recs, 1, "overlapping record must be discarded")
	assert.Equal(t, "b.so", recs[0].Filename)
}

func TestNotifyUnmapDiscardsByAddress(t *testing.T) {
	g := newTestRegistry(fakeReader{})
	g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	require.Len(t, g.Records(), 1)

	g.NotifyUnmap(core.Address(0x1500), 0x10)
	assert.Empty(t, g.Records())
}

func TestPromoteNeverChangesMembership(t *testing.T) {
	g := newTestRegistry(fakeReader{})
	g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	g.NotifyMap(rxMapping(0x5000, 0x6000), "b.so", "")
	g.NotifyMap(rwMapping(0x7000, 0x7100), "b.so", "")
	g.NotifyMap(rxMapping(0x9000, 0xa000), "c.so", "")
	g.NotifyMap(rwMapping(0xb000, 0xb100), "c.so", "")

	before := names(g.Records())
	last := g.Records()[len(g.Records())-1]
	g.Promote(last)
	after := names(g.Records())

	assert.ElementsMatch(t, before, after, "promotion reorders, never adds or removes")
	assert.NotEqual(t, before, after, "promotion must actually move the record")
}

func names(recs []*objfile.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Filename
	}
	return out
}

func TestFailedReadLeavesRecordUnacquired(t *testing.T) {
	g := newTestRegistry(fakeReader{failRead: true})
	h := g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	h = g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	assert.Zero(t, h)
}

func TestDiscardAllEmptiesRegistry(t *testing.T) {
	g := newTestRegistry(fakeReader{})
	g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	require.NotEmpty(t, g.Records())
	g.DiscardAll()
	assert.Empty(t, g.Records())
}

func TestNotifySegChangeAcquiresInOneCall(t *testing.T) {
	g := newTestRegistry(fakeReader{})

	h := g.NotifySegChange(rxMapping(0x1000, 0x2000), rwMapping(0x3000, 0x3100), "a.so", "", true)
	require.NotZero(t, h, "a complete segment pair acquires immediately")
	require.Len(t, g.Records(), 1)
	assert.True(t, g.Records()[0].HaveDebugInfo)

	h2 := g.NotifySegChange(rxMapping(0x5000, 0x6000), rwMapping(0x7000, 0x7100), "b.so", "", false)
	assert.Zero(t, h2, "acquire=false records mappings without reading")
	require.Len(t, g.Records(), 2)
	for _, r := range g.Records() {
		if r.Filename == "b.so" {
			assert.False(t, r.HaveDebugInfo)
			assert.True(t, r.Ready(), "both mappings recorded for a later acquisition")
		}
	}
}

type countingCache struct{ invalidations int }

func (c *countingCache) InvalidateAll() { c.invalidations++ }

func TestMappingChangesInvalidateCache(t *testing.T) {
	g := newTestRegistry(fakeReader{})
	cache := &countingCache{}
	g.SetCache(cache)

	g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	require.NotEmpty(t, g.Records())
	acquires := cache.invalidations
	assert.Positive(t, acquires, "acquisition must invalidate the fast-path cache")

	g.NotifyUnmap(core.Address(0x1500), 0x10)
	assert.Greater(t, cache.invalidations, acquires, "discard must invalidate the fast-path cache")
}

func TestFailedReadLogsReaderError(t *testing.T) {
	var buf bytes.Buffer
	g := newTestRegistry(fakeReader{failRead: true})
	g.SetLogger(diag.New(&buf, nil, 1))

	h := g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	h = g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	assert.Zero(t, h)
	assert.Contains(t, buf.String(), "a.so", "reader errors are logged against the record's filename")

	buf.Reset()
	g.SetLogger(diag.New(&buf, nil, 0))
	h = g.NotifyMap(rxMapping(0x4000, 0x5000), "b.so", "")
	h = g.NotifyMap(rwMapping(0x6000, 0x6100), "b.so", "")
	assert.Zero(t, h)
	assert.Empty(t, buf.String(), "verbosity 0 drops reader-error diagnostics")
}

// capReader fails every read with a wrapped CIE-pool-exhausted error,
// the way a format reader surfaces blowing the cap mid-section.
type capReader struct{}

func (capReader) CanRead(header []byte) bool {
	return len(header) >= 2 && header[0] == 'F' && header[1] == 'K'
}

func (capReader) Read(rec *objfile.Record) error {
	return fmt.Errorf("reading CFI: %w", frame.ErrCIEPoolExhausted)
}

func TestCIEPoolExhaustionLogsResourceCapHit(t *testing.T) {
	var buf bytes.Buffer
	g := newTestRegistry(capReader{})
	g.SetLogger(diag.New(&buf, nil, 1))

	g.NotifyMap(rxMapping(0x1000, 0x2000), "a.so", "")
	h := g.NotifyMap(rwMapping(0x3000, 0x3100), "a.so", "")
	assert.Zero(t, h, "a resource-cap reader error fails acquisition")
	assert.Contains(t, buf.String(), "resource cap", "the cap diagnostic is logged, not the generic reader error")
	assert.Contains(t, buf.String(), "a.so")
}
