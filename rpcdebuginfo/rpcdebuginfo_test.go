// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpcdebuginfo

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

func strp(s string) *string { return &s }

type fixtureReader struct{ fill func(*objfile.Record) }

func (fixtureReader) CanRead(header []byte) bool { return len(header) >= 2 && header[0] == 'F' && header[1] == 'K' }

func (f fixtureReader) Read(rec *objfile.Record) error {
	if f.fill != nil {
		f.fill(rec)
	}
	return nil
}

// newTestServer builds a Server backed by a registry holding a single
// fixture object, exercising the real registry.NotifyMap acquisition
// path rather than a hand-wired *objfile.Record. This is the wire
// surface's request/response plumbing under test, not the query/unwind
// logic those packages already cover independently.
func newTestServer(t *testing.T, fill func(*objfile.Record), mem MemReader) *Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.so")
	require.NoError(t, os.WriteFile(path, []byte("FK"), 0o644))

	reg := registry.New([]registry.Reader{fixtureReader{fill: fill}}, nil, nil, core.DefaultPlatform{})
	reg.NotifyMap(core.Mapping{Min: 0x1000, Max: 0x2000, Perm: core.Read | core.Exec}, path, "")
	reg.NotifyMap(core.Mapping{Min: 0x2000, Max: 0x2100, Perm: core.Read | core.Write}, path, "")

	return &Server{Engine: query.NewEngine(reg, nil), Reg: reg, Mem: mem}
}

func TestServerDescribeCodeAddress(t *testing.T) {
	s := newTestServer(t, func(r *objfile.Record) {
		r.Symbols = []objfile.Symbol{{Addr: 0x1000, Size: 0x100, Name: strp("main"), IsText: true}}
		r.Lines = []objfile.Line{{Addr: 0x1000, Span: 0x10, SourceLine: 9, File: strp("main.go")}}
	}, nil)

	var resp DescribeCodeAddressResponse
	require.NoError(t, s.DescribeCodeAddress(&DescribeCodeAddressRequest{Addr: 0x1005}, &resp))
	assert.True(t, resp.Found)
	assert.Equal(t, "main", resp.Function)
	assert.Equal(t, "main.go", resp.File)
	assert.Equal(t, 9, resp.Line)
}

func TestServerDescribeCodeAddressMiss(t *testing.T) {
	s := newTestServer(t, nil, nil)
	var resp DescribeCodeAddressResponse
	require.NoError(t, s.DescribeCodeAddress(&DescribeCodeAddressRequest{Addr: 0x9999}, &resp))
	assert.False(t, resp.Found)
}

func TestServerUnwindOneFrame(t *testing.T) {
	mem := func(addr uint64, n int) (uint64, bool) {
		if addr == 0x7008 {
			return 0xdeadbeef, true
		}
		return 0, false
	}
	s := newTestServer(t, func(r *objfile.Record) {
		r.CFI = []frame.CfSI{{
			Lo: 0x1000, Hi: 0x1010,
			CFAReg: frame.CFIRegSP, CFAOffset: 16,
			RA: frame.Rule{Kind: frame.RuleCFAOffset, Offset: -8},
			SP: frame.Rule{Kind: frame.RuleCFAValOffset, Offset: 0},
			FP: frame.Rule{Kind: frame.RuleSameValue},
		}}
		r.CFIMin, r.CFIMax = 0x1000, 0x100f
	}, mem)

	req := &UnwindOneFrameRequest{IP: 0x1005, SP: 0x7000, FP: 0x7100, AccessibleLo: 0, Hi: ^uint64(0)}
	var resp UnwindOneFrameResponse
	require.NoError(t, s.UnwindOneFrame(req, &resp))
	require.True(t, resp.OK)
	assert.EqualValues(t, 0xdeadbeef, resp.IP)
	assert.EqualValues(t, 0x7010, resp.SP)
}

func TestServerUnwindOneFrameFailsWithoutCFI(t *testing.T) {
	s := newTestServer(t, nil, nil)
	req := &UnwindOneFrameRequest{IP: 0x1005, AccessibleLo: 0, Hi: ^uint64(0)}
	var resp UnwindOneFrameResponse
	require.NoError(t, s.UnwindOneFrame(req, &resp))
	assert.False(t, resp.OK)
}

func TestServerUnwindOneFrameFPO(t *testing.T) {
	mem := func(addr uint64, n int) (uint64, bool) {
		if addr == 0x7000+32-8 {
			return 0x42, true
		}
		return 0, false
	}
	s := newTestServer(t, func(r *objfile.Record) {
		r.FPO = []frame.CfSI{{
			Lo: 0x1000, Hi: 0x1010,
			CFAReg: frame.CFIRegSP, CFAOffset: 32,
			RA: frame.Rule{Kind: frame.RuleCFAOffset, Offset: -8},
			SP: frame.Rule{Kind: frame.RuleCFAValOffset, Offset: 0},
			FP: frame.Rule{Kind: frame.RuleSameValue},
		}}
	}, mem)

	req := &UnwindOneFrameRequest{IP: 0x1008, SP: 0x7000, FP: 0x7100, AccessibleLo: 0, Hi: ^uint64(0)}
	var resp UnwindOneFrameResponse
	require.NoError(t, s.UnwindOneFrameFPO(req, &resp))
	require.True(t, resp.OK)
	assert.EqualValues(t, 0x42, resp.IP)
	assert.EqualValues(t, 0x7020, resp.SP)
}

func TestServerLookupSymbol(t *testing.T) {
	s := newTestServer(t, func(r *objfile.Record) {
		r.SOName = "libfoo.so"
		r.Symbols = []objfile.Symbol{{Addr: 0x1234, Size: 0x10, TOC: 7, Name: strp("frobnicate")}}
	}, nil)

	var resp LookupSymbolResponse
	require.NoError(t, s.LookupSymbol(&LookupSymbolRequest{SonameGlob: "libfoo.so", Name: "frobnicate"}, &resp))
	assert.True(t, resp.Found)
	assert.EqualValues(t, 0x1234, resp.Addr)
	assert.EqualValues(t, 7, resp.TOC)
}
