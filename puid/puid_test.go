// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package puid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/webwx/types"
)

func friend(raw types.RawContact) types.Chat {
	return types.NewChat(&raw, "@self")
}

func TestMatchCaptions(t *testing.T) {
	old := Caption{NickName: "Alice", Sex: types.SexFemale, Province: "Zhejiang"}
	assert.True(t, MatchCaptions(old, Caption{NickName: "Alice"}))
	assert.True(t, MatchCaptions(old, Caption{NickName: "Alice", City: "Hangzhou"}))
	assert.False(t, MatchCaptions(old, Caption{NickName: "Alice", Sex: types.SexMale}))
	assert.False(t, MatchCaptions(old, Caption{NickName: "Bob"}))
	assert.False(t, MatchCaptions(old, Caption{Province: "Zhejiang"}))

	merged := MergeCaptions(old, Caption{NickName: "Alice", City: "Hangzhou"})
	assert.Equal(t, Caption{NickName: "Alice", Sex: types.SexFemale, Province: "Zhejiang", City: "Hangzhou"}, merged)
}

func TestMap_Get(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "puid.json"))
	first := friend(types.RawContact{UserName: "@0123456789abcdef", NickName: "Alice", Sex: 2})
	puid := m.Get(first)
	assert.Equal(t, "89abcdef", puid)
	assert.Equal(t, puid, m.Get(first))

	// Next session: the identifier changed but the caption still matches.
	renamed := friend(types.RawContact{UserName: "@fedcba9876543210", NickName: "Alice", Sex: 2, City: "Hangzhou"})
	assert.Equal(t, puid, m.Get(renamed))
	assert.Equal(t, 1, m.Len())

	// Remark names take priority over captions.
	remarked := friend(types.RawContact{UserName: "@1111111122222222", NickName: "Bob", RemarkName: "Boss"})
	bob := m.Get(remarked)
	assert.Equal(t, "22222222", bob)
	again := friend(types.RawContact{UserName: "@3333333344444444", NickName: "Robert", RemarkName: "Boss"})
	assert.Equal(t, bob, m.Get(again))

	assert.Empty(t, m.Get(friend(types.RawContact{UserName: "@nonick"})))
}

func TestMap_StableID(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "puid.json"))
	puid := m.Get(friend(types.RawContact{UserName: "@aaaaaaaabbbbbbbb", NickName: "Carol", Alias: "carol_wx"}))
	assert.Equal(t, puid, m.Get(friend(types.RawContact{UserName: "@ccccccccdddddddd", NickName: "Caroline", Alias: "carol_wx"})))
}

func TestMap_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "puid.json")
	m := New(path)
	require.NoError(t, m.Load())
	puid := m.Get(friend(types.RawContact{UserName: "@0123456789abcdef", NickName: "Alice", Province: "Zhejiang"}))
	require.NoError(t, m.Save())

	loaded := New(path)
	require.NoError(t, loaded.Load())
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, puid, loaded.Get(friend(types.RawContact{UserName: "@ffffffffffffffff", NickName: "Alice", Province: "Zhejiang"})))
}

func TestTwoWay_UniqueValues(t *testing.T) {
	tw := newTwoWay[string]()
	tw.set("a", "1")
	tw.set("b", "1")
	assert.Empty(t, tw.get("a"))
	assert.Equal(t, "1", tw.get("b"))
	tw.set("b", "2")
	_, ok := tw.keyOf("1")
	assert.False(t, ok)
	assert.Equal(t, 1, tw.len())
}

func TestMap_AmbiguousCaptionPrefersOldest(t *testing.T) {
	sequence := func(m *Map) (string, string, string) {
		first := m.Get(friend(types.RawContact{UserName: "@aaaaaaaa11111111", NickName: "Alice", Sex: 2}))
		second := m.Get(friend(types.RawContact{UserName: "@bbbbbbbb22222222", NickName: "Alice", Sex: 1}))
		ambiguous := m.Get(friend(types.RawContact{UserName: "@cccccccc33333333", NickName: "Alice"}))
		return first, second, ambiguous
	}
	for i := 0; i < 100; i++ {
		first, second, ambiguous := sequence(New(filepath.Join(t.TempDir(), "puid.json")))
		require.Equal(t, "11111111", first)
		require.Equal(t, "22222222", second)
		require.Equal(t, first, ambiguous, "run %d", i)
	}

	path := filepath.Join(t.TempDir(), "puid.json")
	m := New(path)
	m.Get(friend(types.RawContact{UserName: "@aaaaaaaa11111111", NickName: "Alice", Sex: 2}))
	m.Get(friend(types.RawContact{UserName: "@bbbbbbbb22222222", NickName: "Alice", Sex: 1}))
	require.NoError(t, m.Save())
	for i := 0; i < 20; i++ {
		loaded := New(path)
		require.NoError(t, loaded.Load())
		assert.Equal(t, "11111111", loaded.Get(friend(types.RawContact{UserName: "@dddddddd44444444", NickName: "Alice"})))
	}
}
