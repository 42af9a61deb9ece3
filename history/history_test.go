// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/webwx/types"
)

func msg(id int64, chat, text string) *types.Message {
	return &types.Message{ID: id, Type: types.MsgText, Chat: types.NewPlaceholder(chat), Text: text}
}

func TestBuffer_Eviction(t *testing.T) {
	b := New(3)
	for i := int64(1); i <= 5; i++ {
		b.Add(msg(i, "@a", "hello"))
	}
	require.Equal(t, 3, b.Len())
	assert.Nil(t, b.Get(1))
	assert.Nil(t, b.Get(2))
	assert.NotNil(t, b.Get(3))
	all := b.All()
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].GetID())
	assert.Equal(t, int64(5), all[2].GetID())
}

func TestBuffer_DefaultAndDisabled(t *testing.T) {
	assert.Equal(t, DefaultSize, New(0).size)

	disabled := New(-1)
	disabled.Add(msg(1, "@a", "x"))
	assert.Zero(t, disabled.Len())

	var nilBuf *Buffer
	nilBuf.Add(msg(1, "@a", "x"))
	assert.Nil(t, nilBuf.Get(1))
}

func TestBuffer_SentMessages(t *testing.T) {
	b := New(10)
	b.Add(msg(1, "@a", "ping"))
	b.Add(&types.SentMessage{ID: 2, Type: types.MsgText, Receiver: types.NewPlaceholder("@a"), Text: "pong"})
	// Records without a server ID are kept but can't be looked up.
	b.Add(&types.SentMessage{Type: types.MsgText, Receiver: types.NewPlaceholder("@a"), Text: "lost"})

	assert.Equal(t, 3, b.Len())
	assert.NotNil(t, b.GetMessage(1))
	assert.Nil(t, b.GetMessage(2))
	assert.Equal(t, "pong", b.Get(2).GetText())
}

func TestBuffer_Search(t *testing.T) {
	b := New(10)
	b.Add(msg(1, "@a", "Hello World"))
	b.Add(msg(2, "@b", "hello there"))
	b.Add(&types.Message{ID: 3, Type: types.MsgImage, Chat: types.NewPlaceholder("@a")})

	assert.Len(t, b.Search(Query{Keywords: "hello"}), 2)
	assert.Len(t, b.Search(Query{Keywords: "hello world"}), 1)
	assert.Len(t, b.Search(Query{ChatID: "@a"}), 2)
	res := b.Search(Query{ChatID: "@a", Type: types.MsgImage})
	require.Len(t, res, 1)
	assert.Equal(t, int64(3), res[0].GetID())

	b.Clear()
	assert.Zero(t, b.Len())
	assert.Nil(t, b.Get(1))
}
