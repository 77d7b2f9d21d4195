// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unwind

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/objfile"
	"golang.org/x/debuginfo/query"
	"golang.org/x/debuginfo/registry"
)

type fixtureReader struct {
	populate map[string]func(*objfile.Record)
}

func (fixtureReader) CanRead(header []byte) bool { return len(header) >= 2 && header[0] == 'F' && header[1] == 'K' }

func (f fixtureReader) Read(rec *objfile.Record) error {
	if fn := f.populate[rec.Filename]; fn != nil {
		fn(rec)
	}
	return nil
}

func newTestEngine(t *testing.T, fill func(*objfile.Record)) (*query.Engine, *objfile.Record) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.so")
	require.NoError(t, os.WriteFile(path, []byte("FK"), 0o644))

	var rec *objfile.Record
	populate := map[string]func(*objfile.Record){
		path: func(r *objfile.Record) {
			rec = r
			fill(r)
		},
	}
	reg := registry.New([]registry.Reader{fixtureReader{populate: populate}}, nil, nil, core.DefaultPlatform{})
	rx := core.Mapping{Min: 0x1000, Max: 0x2000, Perm: core.Read | core.Exec}
	rw := core.Mapping{Min: 0x2000, Max: 0x2100, Perm: core.Read | core.Write}
	reg.NotifyMap(rx, path, "")
	reg.NotifyMap(rw, path, "")

	return query.NewEngine(reg, nil), rec
}

// TestStepAppliesCFARegisterAndReturnAddressRules walks a single CFI row
// that defines CFA = SP + 16, RA = load(CFA - 8), and leaves SP/FP at
// their documented defaults, then checks the caller frame Step produces.
func TestStepAppliesCFARegisterAndReturnAddressRules(t *testing.T) {
	eng, _ := newTestEngine(t, func(r *objfile.Record) {
		r.CFI = []frame.CfSI{{
			Lo: 0x1000, Hi: 0x1010,
			CFAReg: frame.CFIRegSP, CFAOffset: 16,
			RA: frame.Rule{Kind: frame.RuleCFAOffset, Offset: -8},
			SP: frame.Rule{Kind: frame.RuleCFAValOffset, Offset: 0},
			FP: frame.Rule{Kind: frame.RuleSameValue},
		}}
		r.CFIMin, r.CFIMax = 0x1000, 0x100f
	})

	cur := Frame{IP: 0x1005, SP: 0x7000, FP: 0x7100}
	// CFA = SP+16 = 0x7010; RA loaded from CFA-8 = 0x7008.
	mem := func(addr uint64, n int) (uint64, bool) {
		if addr == 0x7008 {
			return 0xdeadbeef, true
		}
		return 0, false
	}
	accessible := core.AccessibleRange{Lo: 0, Hi: core.Address(^uint64(0))}

	next, ok := Step(eng, cur, accessible, mem)
	require.True(t, ok)
	assert.EqualValues(t, 0xdeadbeef, next.IP)
	assert.EqualValues(t, 0x7010, next.SP) // CFA+0
	assert.EqualValues(t, cur.FP, next.FP) // same-value
}

func TestStepFailsWhenDereferenceOutsideAccessibleRange(t *testing.T) {
	eng, _ := newTestEngine(t, func(r *objfile.Record) {
		r.CFI = []frame.CfSI{{
			Lo: 0x1000, Hi: 0x1010,
			CFAReg: frame.CFIRegSP, CFAOffset: 16,
			RA: frame.Rule{Kind: frame.RuleCFAOffset, Offset: -8},
			SP: frame.Rule{Kind: frame.RuleCFAValOffset, Offset: 0},
			FP: frame.Rule{Kind: frame.RuleSameValue},
		}}
		r.CFIMin, r.CFIMax = 0x1000, 0x100f
	})

	cur := Frame{IP: 0x1005, SP: 0x7000, FP: 0x7100}
	mem := func(addr uint64, n int) (uint64, bool) { return 0xdeadbeef, true }
	// Accessible range excludes the RA dereference at CFA-8 = 0x7008.
	accessible := core.AccessibleRange{Lo: 0x8000, Hi: 0x9000}

	_, ok := Step(eng, cur, accessible, mem)
	assert.False(t, ok)
}

func TestStepFailsWhenNoCFICoversAddress(t *testing.T) {
	eng, _ := newTestEngine(t, func(r *objfile.Record) {})
	cur := Frame{IP: 0x1005}
	accessible := core.AccessibleRange{Lo: 0, Hi: core.Address(^uint64(0))}
	_, ok := Step(eng, cur, accessible, func(uint64, int) (uint64, bool) { return 0, false })
	assert.False(t, ok)
}

func TestFPOStepUsesFixedLayoutFormula(t *testing.T) {
	eng, _ := newTestEngine(t, func(r *objfile.Record) {
		r.FPO = []frame.CfSI{{
			Lo: 0x1000, Hi: 0x1010,
			CFAReg: frame.CFIRegSP, CFAOffset: 32,
			RA: frame.Rule{Kind: frame.RuleCFAOffset, Offset: -8},
			SP: frame.Rule{Kind: frame.RuleCFAValOffset, Offset: 0},
			FP: frame.Rule{Kind: frame.RuleSameValue},
		}}
	})

	cur := Frame{IP: 0x1008, SP: 0x7000, FP: 0x7100}
	mem := func(addr uint64, n int) (uint64, bool) {
		if addr == 0x7000+32-8 {
			return 0x42, true
		}
		return 0, false
	}
	accessible := core.AccessibleRange{Lo: 0, Hi: core.Address(^uint64(0))}

	next, ok := FPOStep(eng, cur, accessible, mem)
	require.True(t, ok)
	assert.EqualValues(t, 0x42, next.IP)
	assert.EqualValues(t, 0x7020, next.SP)
}

func TestFPOStepFailsOutsideTable(t *testing.T) {
	eng, _ := newTestEngine(t, func(r *objfile.Record) {
		r.FPO = []frame.CfSI{{Lo: 0x1000, Hi: 0x1010, RA: frame.Rule{Kind: frame.RuleSameValue}}}
	})
	cur := Frame{IP: 0x9000}
	accessible := core.AccessibleRange{Lo: 0, Hi: core.Address(^uint64(0))}
	_, ok := FPOStep(eng, cur, accessible, func(uint64, int) (uint64, bool) { return 0, false })
	assert.False(t, ok)
}
