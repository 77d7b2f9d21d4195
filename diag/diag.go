// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag implements the module's error-handling diagnostics: a
// log/slog logger fanned out (via github.com/samber/slog-multi) across
// a human-readable stderr handler and an optional structured sink, so
// the framework embedding this module can tap reader diagnostics
// without the core packages depending on any particular log transport.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the diagnostic sink every reader and registry operation logs
// through. The zero value is not usable; use New.
type Logger struct {
	base      *slog.Logger
	verbosity int
}

// New returns a Logger fanning out to w (human-readable text) and, if
// extra is non-nil, additionally to extra (e.g. a structured JSON sink
// for telemetry consumers). verbosity gates ReaderError: calls are
// dropped below level 1.
func New(w io.Writer, extra slog.Handler, verbosity int) *Logger {
	if w == nil {
		w = os.Stderr
	}
	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	var handler slog.Handler = text
	if extra != nil {
		handler = slogmulti.Fanout(text, extra)
	}
	return &Logger{base: slog.New(handler), verbosity: verbosity}
}

// ReaderError logs a malformed-input diagnostic against filename at
// verbosity 1 and above: the current sub-unit (FDE, line sequence, DIE
// block) is abandoned, the rest of the object continues to be read,
// and this call only ever informs. It never changes control flow.
func (l *Logger) ReaderError(filename string, format string, args ...any) {
	if l.verbosity < 1 {
		return
	}
	l.base.Warn("debuginfo reader error", "file", filename, "msg", fmt.Sprintf(format, args...))
}

// ResourceCapHit logs a resource-cap diagnostic, advising that the cap
// be raised at build time if the input genuinely needs it.
func (l *Logger) ResourceCapHit(filename, what string, limit int) {
	l.base.Warn("resource cap exceeded; raise at build time if genuinely needed",
		"file", filename, "resource", what, "limit", limit)
}

// InvariantViolation logs the fatal-assertion class of failure: these
// indicate a bug in this module, not bad input, so they are always
// logged regardless of verbosity.
func (l *Logger) InvariantViolation(invariant, detail string) {
	l.base.Error("debuginfo invariant violation", "invariant", invariant, "detail", detail)
}
