// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/webwx/types"
)

func noop(*types.Message) (*Reply, error) { return nil, nil }

var (
	testGroup  = types.NewChat(&types.RawContact{UserName: "@@group"}, "@self")
	testFriend = types.NewChat(&types.RawContact{UserName: "@friend"}, "@self")
)

func textMessage(chat types.Chat) *types.Message {
	return &types.Message{Type: types.MsgText, Chat: chat, Sender: chat, Text: "ping"}
}

func TestMatch_LaterRegistrationWins(t *testing.T) {
	r := New()
	broad := r.Register(noop, Options{})
	narrow := r.Register(noop, Options{Kinds: []types.ChatKind{types.KindGroup}})

	assert.Same(t, narrow, r.Match(textMessage(testGroup)))
	// The narrow registration doesn't accept friend messages, so the broad one gets them.
	assert.Same(t, broad, r.Match(textMessage(testFriend)))
}

func TestMatch_ExcludesSelfByDefault(t *testing.T) {
	r := New()
	r.Register(noop, Options{})
	msg := textMessage(testFriend)
	msg.FromSelf = true
	assert.Nil(t, r.Match(msg))

	withSelf := r.Register(noop, Options{IncludeSelf: true})
	assert.Same(t, withSelf, r.Match(msg))
}

func TestMatch_SystemRequiresOptIn(t *testing.T) {
	r := New()
	r.Register(noop, Options{})
	msg := textMessage(testGroup)
	msg.Type = types.MsgSystem
	assert.Nil(t, r.Match(msg))

	system := r.Register(noop, Options{Types: []types.MessageType{types.MsgSystem}})
	assert.Same(t, system, r.Match(msg))
}

func TestMatch_ChatFilters(t *testing.T) {
	r := New()
	specific := r.Register(noop, Options{Chats: []types.Chat{types.NewPlaceholder("@friend")}})
	assert.Same(t, specific, r.Match(textMessage(testFriend)))
	assert.Nil(t, r.Match(textMessage(testGroup)))

	users := r.Register(noop, Options{Kinds: []types.ChatKind{types.KindUser}})
	assert.Same(t, users, r.Match(textMessage(testFriend)))
	assert.Nil(t, r.Match(textMessage(testGroup)))
}

func TestEnableDisable(t *testing.T) {
	r := New()
	first := r.Register(noop, Options{})
	second := r.Register(noop, Options{Disabled: true})
	assert.False(t, second.Enabled())
	assert.True(t, second.RunAsync())
	assert.Same(t, first, r.Match(textMessage(testFriend)))

	require.True(t, r.Enable(second.ID))
	assert.Same(t, second, r.Match(textMessage(testFriend)))

	r.DisableAll()
	assert.Nil(t, r.Match(textMessage(testFriend)))
	assert.Len(t, r.Disabled(), 2)
	assert.Empty(t, r.Enabled())

	r.EnableAll()
	require.True(t, r.Disable(second.ID))
	assert.Equal(t, []*Registration{first}, r.Enabled())
	assert.Equal(t, []*Registration{second}, r.Disabled())

	assert.False(t, r.Enable(12345))
}

func TestRemove(t *testing.T) {
	r := New()
	first := r.Register(noop, Options{})
	second := r.Register(noop, Options{Sync: true})
	assert.False(t, second.RunAsync())
	require.True(t, r.Remove(second.ID))
	assert.False(t, r.Remove(second.ID))
	assert.Equal(t, 1, r.Len())
	assert.Same(t, first, r.Match(textMessage(testFriend)))
	assert.Nil(t, r.Get(second.ID))
}

func TestReplies(t *testing.T) {
	assert.Equal(t, &Reply{Type: types.MsgText, Text: "hi"}, TextReply("hi"))
	assert.Equal(t, &Reply{Type: types.MsgImage, Path: "/tmp/a.png"}, MediaReply(types.MsgImage, "/tmp/a.png"))
}
