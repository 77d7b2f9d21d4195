// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package option exposes the framework's option bag through narrow
// accessors: the other packages never see a *viper.Viper directly,
// only the handful of typed getters this package names.
package option

import (
	"regexp"

	"github.com/spf13/viper"
)

// Keys of the underlying viper bag; unexported so callers cannot bypass
// the typed accessors below.
const (
	keyTraceSymtabPattern = "trace-symtab-pattern"
	keyDumpFrames         = "dump-frames"
	keyVerbosity          = "verbosity"
	keyLimitStaticVars    = "limit-static-vars"
	keyShowBelowMain      = "show-below-main"
)

// Bag wraps a *viper.Viper configured with this module's defaults.
type Bag struct {
	v *viper.Viper
}

// New returns a Bag with every flag registered at its default;
// BindPFlag in cmd/dbginfoctl overrides these from the command line.
func New() *Bag {
	v := viper.New()
	v.SetDefault(keyTraceSymtabPattern, "")
	v.SetDefault(keyDumpFrames, false)
	v.SetDefault(keyVerbosity, 0)
	v.SetDefault(keyLimitStaticVars, 0)
	v.SetDefault(keyShowBelowMain, false)
	v.AutomaticEnv()
	return &Bag{v: v}
}

// Viper exposes the underlying bag for cmd packages to bind flags to;
// core packages (registry, query, unwind, objfile, dwarf/*) never import
// this method or the viper package at all.
func (b *Bag) Viper() *viper.Viper { return b.v }

// TraceSymtabPattern compiles the trace-symtab-pattern flag, if set, as
// a regular expression matched against object filenames during symbol
// table tracing diagnostics. A nil return means "no filter".
func (b *Bag) TraceSymtabPattern() *regexp.Regexp {
	pat := b.v.GetString(keyTraceSymtabPattern)
	if pat == "" {
		return nil
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil
	}
	return re
}

// DumpFrames reports whether the unwinder should log every CfSI row it
// consults, for debugging unwind failures.
func (b *Bag) DumpFrames() bool { return b.v.GetBool(keyDumpFrames) }

// Verbosity is the diagnostic verbosity level; reader errors log at
// verbosity 1 and above.
func (b *Bag) Verbosity() int { return b.v.GetInt(keyVerbosity) }

// LimitStaticVars caps the number of global-scope variables
// describe-data-address considers, 0 meaning unlimited.
func (b *Bag) LimitStaticVars() int { return b.v.GetInt(keyLimitStaticVars) }

// ShowBelowMain toggles whether below-main stack frames are included
// in unwind output; the heuristic itself lives in the external
// pretty-printing collaborator, this flag is only carried through for
// it to consult.
func (b *Bag) ShowBelowMain() bool { return b.v.GetBool(keyShowBelowMain) }
