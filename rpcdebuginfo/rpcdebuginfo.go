// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpcdebuginfo exposes the query/unwind layer over net/rpc,
// one Request/Response struct pair per method, so a debugger console
// in a separate process can resolve addresses and unwind frames
// against a registry served from the instrumented process.
package rpcdebuginfo

import (
	"net"
	"net/rpc"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/query"
	"golang.org/x/debuginfo/registry"
	"golang.org/x/debuginfo/socket"
	"golang.org/x/debuginfo/unwind"
)

// DescribeCodeAddressRequest/Response carry describe-code-address over
// RPC.
type DescribeCodeAddressRequest struct {
	Addr uint64
}

type DescribeCodeAddressResponse struct {
	ObjectName string
	Function   string
	File       string
	Dir        string
	Line       int
	Found      bool
}

// UnwindOneFrameRequest/Response carry unwind-one-frame over RPC;
// memory reads needed by expression evaluation go through the server's
// own Mem accessor, bounded by the accessible range the request names.
type UnwindOneFrameRequest struct {
	IP, SP, FP       uint64
	AccessibleLo, Hi uint64
}

type UnwindOneFrameResponse struct {
	IP, SP, FP uint64
	OK         bool
}

type DescribeDataAddressRequest struct {
	ThreadID int
	DataAddr uint64
}

type DescribeDataAddressResponse struct {
	Description string
	Found       bool
}

type LookupSymbolRequest struct {
	SonameGlob string
	Name       string
}

type LookupSymbolResponse struct {
	Addr  uint64
	TOC   uint64
	Found bool
}

// MemReader is the RPC server's view of the guest-memory accessor; the
// embedding process plugs in whatever connects to the instrumented
// program.
type MemReader func(addr uint64, n int) (val uint64, ok bool)

// Server is the net/rpc-registered type exposing query/unwind to
// remote clients.
type Server struct {
	Engine *query.Engine
	Reg    *registry.Registry
	Mem    MemReader
}

// DescribeCodeAddress implements the RPC method.
func (s *Server) DescribeCodeAddress(req *DescribeCodeAddressRequest, resp *DescribeCodeAddressResponse) error {
	d := s.Engine.DescribeCodeAddress(core.Address(req.Addr))
	*resp = DescribeCodeAddressResponse{
		ObjectName: d.ObjectName,
		Function:   d.Function,
		File:       d.File,
		Dir:        d.Dir,
		Line:       d.Line,
		Found:      d.Found,
	}
	return nil
}

// UnwindOneFrame implements the RPC method.
func (s *Server) UnwindOneFrame(req *UnwindOneFrameRequest, resp *UnwindOneFrameResponse) error {
	rng := core.AccessibleRange{Lo: core.Address(req.AccessibleLo), Hi: core.Address(req.Hi)}
	next, ok := unwind.Step(s.Engine, unwind.Frame{IP: req.IP, SP: req.SP, FP: req.FP}, rng, unwind.MemReader(s.Mem))
	*resp = UnwindOneFrameResponse{IP: next.IP, SP: next.SP, FP: next.FP, OK: ok}
	return nil
}

// UnwindOneFrameFPO implements the RPC method: the same contract as
// UnwindOneFrame over the FPO path for PDB-sourced objects.
func (s *Server) UnwindOneFrameFPO(req *UnwindOneFrameRequest, resp *UnwindOneFrameResponse) error {
	rng := core.AccessibleRange{Lo: core.Address(req.AccessibleLo), Hi: core.Address(req.Hi)}
	next, ok := unwind.FPOStep(s.Engine, unwind.Frame{IP: req.IP, SP: req.SP, FP: req.FP}, rng, unwind.MemReader(s.Mem))
	*resp = UnwindOneFrameResponse{IP: next.IP, SP: next.SP, FP: next.FP, OK: ok}
	return nil
}

// DescribeDataAddress implements the RPC method.
func (s *Server) DescribeDataAddress(req *DescribeDataAddressRequest, resp *DescribeDataAddressResponse) error {
	d := s.Engine.DescribeDataAddress(req.ThreadID, unwind.MemReader(s.Mem), core.Address(req.DataAddr))
	resp.Found = d.Found
	resp.Description = d.String()
	return nil
}

// LookupSymbol implements the RPC method.
func (s *Server) LookupSymbol(req *LookupSymbolRequest, resp *LookupSymbolResponse) error {
	addr, toc, found := s.Engine.LookupSymbolByName(req.SonameGlob, req.Name)
	*resp = LookupSymbolResponse{Addr: uint64(addr), TOC: toc, Found: found}
	return nil
}

// Serve registers s and accepts connections on the per-UID/PID Unix
// socket of the socket package until l is closed.
func Serve(s *Server) (net.Listener, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("DebugInfo", s); err != nil {
		return nil, err
	}
	l, err := socket.Listen()
	if err != nil {
		return nil, err
	}
	go srv.Accept(l)
	return l, nil
}

// Dial connects to a debug-info RPC server started with Serve in the
// process with the given uid/pid.
func Dial(uid, pid int) (*rpc.Client, error) {
	conn, err := socket.Dial(uid, pid)
	if err != nil {
		return nil, err
	}
	return rpc.NewClient(conn), nil
}
