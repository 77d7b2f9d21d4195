// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry implements the object-record registry and mapping
// lifecycle: a singly-linked list of per-image object records, the
// rules by which mapping notifications create, populate, and discard
// those records, and the overlap-enforcement sweep that keeps no two
// live records ever covering the same address.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/debuginfo/core"
	"golang.org/x/debuginfo/diag"
	"golang.org/x/debuginfo/dwarf/frame"
	"golang.org/x/debuginfo/objfile"
)

// Reader is the format-specific collaborator: given a record with its
// mapping descriptors filled in, it fills
// sections, tables, admin lists and string arena, and reports success.
// Distinct readers are tried in order until one recognises the file's
// signature; CanRead should be cheap (a magic-number sniff).
type Reader interface {
	// CanRead reports whether the first bytes of the file look like a
	// format this reader understands.
	CanRead(header []byte) bool
	// Read populates rec from the backing file, already known to exist
	// at rec.Filename with both mapping descriptors present.
	Read(rec *objfile.Record) error
}

// Redirector is the symbol-redirection collaborator: notified by
// handle only at acquisition and discard, so it never
// retains a *objfile.Record beyond a discard notification.
type Redirector interface {
	NotifyNew(rec *objfile.Record)
	NotifyDelete(rec *objfile.Record)
}

// CacheInvalidator is the fast-path CFI cache's wholesale-invalidation
// hook: the registry never reaches into the cache
// directly, it only tells it to go blank.
type CacheInvalidator interface {
	InvalidateAll()
}

// entry is one node of the registry's singly-linked list.
type entry struct {
	rec  *objfile.Record
	next *entry
	mark bool // transient overlap-sweep bit, meaningless outside a sweep
}

// Registry is the process-global object-record singleton: the list
// head, the handle counter, and the
// collaborators it drives. The zero value is not usable; use New.
type Registry struct {
	head    *entry
	nextH   uint64
	readers []Reader
	redir   Redirector
	cache   CacheInvalidator
	plat    core.Platform
	log     *diag.Logger

	statFile func(name string) (os.FileInfo, error)
	readHdr  func(name string, n int) ([]byte, error)
}

// SetLogger installs the diagnostic sink reader errors (malformed
// input, I/O or stat failure) are logged through. A nil logger (the
// default, since New does not take one) silently drops these
// diagnostics, matching the zero-verbosity default of a fresh
// option.Bag.
func (g *Registry) SetLogger(l *diag.Logger) { g.log = l }

// SetCache installs the fast-path-cache invalidation hook. The query
// engine that owns the cache is built over an existing registry, so
// the hook is wired after construction rather than through New.
func (g *Registry) SetCache(c CacheInvalidator) { g.cache = c }

// New returns an empty registry. readers are tried in order for every
// newly-eligible record; redir and cache may be nil.
func New(readers []Reader, redir Redirector, cache CacheInvalidator, plat core.Platform) *Registry {
	return &Registry{
		readers:  readers,
		redir:    redir,
		cache:    cache,
		plat:     plat,
		statFile: os.Stat,
		readHdr:  readHeaderBytes,
	}
}

func readHeaderBytes(name string, n int) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	m, err := f.Read(buf)
	if err != nil && m == 0 {
		return nil, err
	}
	return buf[:m], nil
}

func (g *Registry) invalidateCache() {
	if g.cache != nil {
		g.cache.InvalidateAll()
	}
}

// key identifies a record by the (filename, member-name) pair used to
// look up or create a record.
type key struct{ filename, member string }

func (g *Registry) find(k key) *entry {
	for e := g.head; e != nil; e = e.next {
		if e.rec.Filename == k.filename && e.rec.MemberName == k.member {
			return e
		}
	}
	return nil
}

func (g *Registry) insert(rec *objfile.Record) *entry {
	e := &entry{rec: rec}
	e.next = g.head
	g.head = e
	return e
}

// NotifyMap classifies the incoming mapping, looks up or creates the
// record, and attempts acquisition once
// both mapping kinds are present. Returns the record's handle (>0) if
// debug info was freshly acquired by this call, or 0 otherwise.
func (g *Registry) NotifyMap(m core.Mapping, filename string, memberName string) uint64 {
	text, data := core.ClassifyMapping(m.Perm, g.plat)
	if !text && !data {
		return 0
	}
	if filename == "" {
		return 0
	}
	if !g.looksLikeObjectFile(filename) {
		return 0
	}

	e := g.find(key{filename, memberName})
	if e == nil {
		rec := objfile.NewRecord(filename, 0)
		rec.MemberName = memberName
		e = g.insert(rec)
	}
	rec := e.rec

	if text && rec.RX == nil {
		mm := m
		rec.RX = &mm
	}
	if data && rec.RW == nil {
		mm := m
		rec.RW = &mm
	}

	if !rec.Ready() || rec.HaveDebugInfo {
		return 0
	}
	return g.acquire(rec)
}

// acquire runs the overlap sweep, the format reader, and
// canonicalisation for a record whose mapping descriptors are complete.
// Returns the freshly allocated handle, or 0 if reading failed (the
// record and its mappings are retained either way).
func (g *Registry) acquire(rec *objfile.Record) uint64 {
	g.discardOverlapping(rec)
	g.invalidateCache()

	if !g.readDebugInfo(rec) {
		return 0
	}

	rec.Canonicalize()
	// A table that fails its structural invariants after
	// canonicalisation is a bug in this module, not bad input.
	if err := rec.CheckInvariants(); err != nil {
		if g.log != nil {
			g.log.InvariantViolation("canonicalised tables", err.Error())
		}
		panic(err)
	}
	rec.HaveDebugInfo = true
	rec.Handle = g.allocHandle()
	if g.redir != nil {
		g.redir.NotifyNew(rec)
	}
	return rec.Handle
}

// NotifySegChange delivers a complete code+data segment pair in one
// call, the ingestion shape used for loaders that report whole
// segments rather than individual page mappings. With acquire false
// the mappings are recorded but no debug-info read is attempted.
func (g *Registry) NotifySegChange(code, data core.Mapping, filename, memberName string, acquire bool) uint64 {
	if filename == "" || !g.looksLikeObjectFile(filename) {
		return 0
	}
	e := g.find(key{filename, memberName})
	if e == nil {
		rec := objfile.NewRecord(filename, 0)
		rec.MemberName = memberName
		e = g.insert(rec)
	}
	rec := e.rec
	if rec.RX == nil {
		mm := code
		rec.RX = &mm
	}
	if rec.RW == nil {
		mm := data
		rec.RW = &mm
	}
	if !acquire || !rec.Ready() || rec.HaveDebugInfo {
		return 0
	}
	return g.acquire(rec)
}

// looksLikeObjectFile applies the acquisition eligibility gate: the path
// must name a regular file (not a symlink, not a device) whose header
// bytes match a recognised signature.
func (g *Registry) looksLikeObjectFile(filename string) bool {
	fi, err := g.statFile(filename)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	hdr, err := g.readHdr(filename, 16)
	if err != nil || len(hdr) == 0 {
		return false
	}
	for _, r := range g.readers {
		if r.CanRead(hdr) {
			return true
		}
	}
	return false
}

func (g *Registry) readDebugInfo(rec *objfile.Record) bool {
	hdr, err := g.readHdr(rec.Filename, 16)
	if err != nil {
		// I/O failure on the object file aborts acquisition for this
		// object; mapping descriptors are retained.
		if g.log != nil {
			g.log.ReaderError(rec.Filename, "reading header: %v", err)
		}
		return false
	}
	for _, r := range g.readers {
		if !r.CanRead(hdr) {
			continue
		}
		if err := r.Read(rec); err != nil {
			// Malformed input is logged at verbosity-1 against the
			// record's filename; blowing a resource cap gets its own
			// diagnostic, with the advice that the cap is a build-time
			// constant.
			if g.log != nil {
				if errors.Is(err, frame.ErrCIEPoolExhausted) {
					g.log.ResourceCapHit(rec.Filename, "CIE pool", frame.MaxCIEPool)
				} else {
					g.log.ReaderError(rec.Filename, "reading debug info: %v", err)
				}
			}
			return false
		}
		return true
	}
	return false
}

func (g *Registry) allocHandle() uint64 {
	g.nextH++
	return g.nextH // monotonic from 1, never reused
}

// discardOverlapping implements the overlap-discard protocol: mark
// every other record overlapping ref's mappings, then repeatedly
// discard the first marked record until none remain.
// Marking and discarding are separated so the sweep never mutates the
// list while walking it.
func (g *Registry) discardOverlapping(ref *objfile.Record) {
	for e := g.head; e != nil; e = e.next {
		e.mark = false
	}
	for e := g.head; e != nil; e = e.next {
		if e.rec == ref {
			continue
		}
		if overlaps(e.rec, ref) {
			e.mark = true
		}
	}
	for {
		e := g.firstMarked()
		if e == nil {
			return
		}
		g.discardEntry(e)
	}
}

func overlaps(a, b *objfile.Record) bool {
	if a.RX != nil && b.RX != nil && a.RX.Overlaps(b.RX) {
		return true
	}
	if a.RW != nil && b.RW != nil && a.RW.Overlaps(b.RW) {
		return true
	}
	return false
}

func (g *Registry) firstMarked() *entry {
	for e := g.head; e != nil; e = e.next {
		if e.mark {
			return e
		}
	}
	return nil
}

// discardEntry removes e from the list, notifies the redirector, and
// invalidates the fast-path cache.
func (g *Registry) discardEntry(e *entry) {
	if g.redir != nil && e.rec.HaveDebugInfo {
		g.redir.NotifyDelete(e.rec)
	}
	var prev *entry
	for p := g.head; p != nil; p = p.next {
		if p.next == e {
			prev = p
			break
		}
	}
	if prev == nil {
		g.head = e.next
	} else {
		prev.next = e.next
	}
	g.invalidateCache()
}

// NotifyUnmap discards every record whose text range intersects
// [addr, addr+length). Iteration restarts after each discard, since
// discardEntry mutates the list.
func (g *Registry) NotifyUnmap(addr core.Address, length int64) {
	target := core.Mapping{Min: addr, Max: addr.Add(length)}
restart:
	for e := g.head; e != nil; e = e.next {
		if e.rec.RX != nil && e.rec.RX.Overlaps(&target) {
			g.discardEntry(e)
			goto restart
		}
	}
}

// NotifyProtect is a no-op by design: observed mprotect
// traffic from dynamic linkers is too noisy to act on safely.
func (g *Registry) NotifyProtect(core.Address, int64, core.Perm) {}

// DiscardAll discards every record in the registry.
func (g *Registry) DiscardAll() {
	for g.head != nil {
		g.discardEntry(g.head)
	}
}

// Records returns a snapshot slice of every current record, in list
// order (most-recently-promoted first), for telemetry consumers.
func (g *Registry) Records() []*objfile.Record {
	var out []*objfile.Record
	for e := g.head; e != nil; e = e.next {
		out = append(out, e.rec)
	}
	return out
}

// Each calls fn for every record in list order, stopping early if fn
// returns false. This is the iteration primitive the query layer uses
// for its min/max-bounded table scan.
func (g *Registry) Each(fn func(*objfile.Record) bool) {
	for e := g.head; e != nil; e = e.next {
		if !fn(e.rec) {
			return
		}
	}
}

// Promote advances rec one position toward the head of the list, an
// O(1) three-pointer swap with its predecessor — a list-order
// optimisation for records looked up repeatedly in a hot loop. It is a
// no-op if rec is already at the head or not found. This never changes
// which records exist, only their order.
func (g *Registry) Promote(rec *objfile.Record) {
	var pp, p *entry
	for e := g.head; e != nil; e = e.next {
		if e.rec == rec {
			if p == nil {
				return // already at head
			}
			if pp == nil {
				g.head = e
			} else {
				pp.next = e
			}
			p.next = e.next
			e.next = p
			return
		}
		pp, p = p, e
	}
}

// FindByName returns the first record whose filename matches exactly,
// for lookup-symbol-by-name's soname-glob path; glob
// matching itself is delegated to filepath.Match on the SOName field.
func (g *Registry) FindByName(sonameGlob string) []*objfile.Record {
	var out []*objfile.Record
	g.Each(func(r *objfile.Record) bool {
		if match, _ := filepath.Match(sonameGlob, r.SOName); match {
			out = append(out, r)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (g *Registry) String() string {
	n := 0
	g.Each(func(*objfile.Record) bool { n++; return true })
	return fmt.Sprintf("registry(%d records)", n)
}
