// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddressAddAndSub(t *testing.T) {
	a := Address(0x1000)
	assert.Equal(t, Address(0x1010), a.Add(0x10))
	assert.Equal(t, Address(0xff0), a.Add(-0x10))
	assert.Equal(t, int64(0x10), Address(0x1010).Sub(a))
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "0x1000", Address(0x1000).String())
}

func TestPermString(t *testing.T) {
	assert.Equal(t, "None", Perm(0).String())
	assert.Equal(t, "Read", Read.String())
	assert.Equal(t, "Read|Write", (Read | Write).String())
	assert.Equal(t, "Read|Write|Exec", (Read | Write | Exec).String())
}

func TestClassifyMappingDefaultPlatformEnforcesWXorX(t *testing.T) {
	text, data := ClassifyMapping(Read|Exec, DefaultPlatform{})
	assert.True(t, text)
	assert.False(t, data)

	text, data = ClassifyMapping(Read|Write, DefaultPlatform{})
	assert.False(t, text)
	assert.True(t, data)

	text, data = ClassifyMapping(Read|Write|Exec, DefaultPlatform{})
	assert.False(t, text, "RWX is not text-like under the default W^X rule")
	assert.False(t, data, "RWX is not data-like under the default W^X rule")

	text, data = ClassifyMapping(Read, DefaultPlatform{})
	assert.False(t, text)
	assert.False(t, data)
}

type permissivePlatform struct{}

func (permissivePlatform) TextLikeAllowed(Perm) bool { return true }
func (permissivePlatform) DataLikeAllowed(Perm) bool { return true }

func TestClassifyMappingCustomPlatformOverridesWXorX(t *testing.T) {
	text, data := ClassifyMapping(Read|Write|Exec, permissivePlatform{})
	assert.True(t, text, "platform opts into classifying RWX as text-like")
	assert.True(t, data, "platform opts into classifying RWX as data-like")
}

func TestClassifyMappingNilPlatformFallsBackToDefault(t *testing.T) {
	text, data := ClassifyMapping(Read|Write|Exec, nil)
	assert.False(t, text)
	assert.False(t, data)
}

func TestMappingSize(t *testing.T) {
	m := Mapping{Min: 0x1000, Max: 0x1800}
	assert.EqualValues(t, 0x800, m.Size())
}

func TestAccessibleRangeContains(t *testing.T) {
	rng := AccessibleRange{Lo: 0x1000, Hi: 0x2000}
	assert.True(t, rng.Contains(0x1000, 8))
	assert.True(t, rng.Contains(0x1ff8, 8))
	assert.False(t, rng.Contains(0x1ff9, 8), "read would extend past Hi")
	assert.False(t, rng.Contains(0xff8, 8), "read starts before Lo")
	assert.False(t, rng.Contains(0x1000, 0), "zero-length read is rejected")
	assert.False(t, rng.Contains(0x1000, -1), "negative length is rejected")
}
