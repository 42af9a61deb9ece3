// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/jsontime"
)

type mapResolver map[string]Chat

func (mr mapResolver) ResolveChat(username string) Chat {
	if chat, ok := mr[username]; ok {
		return chat
	}
	return NewPlaceholder(username)
}

func (mr mapResolver) ResolveMember(group *Group, username string) *Member {
	if member := group.Member(username); member != nil {
		return member
	}
	return NewMember(&RawContact{UserName: username}, group.Username)
}

func TestParseMessageType(t *testing.T) {
	assert.Equal(t, MsgText, ParseMessageType(1, 0, 0))
	assert.Equal(t, MsgLocation, ParseMessageType(1, 0, 48))
	assert.Equal(t, MsgURL, ParseMessageType(49, 5, 0))
	assert.Equal(t, MsgFile, ParseMessageType(49, 6, 0))
	assert.Equal(t, MsgCash, ParseMessageType(49, 2000, 0))
	assert.Equal(t, MsgUnknown, ParseMessageType(49, 33, 0))
	assert.Equal(t, MsgSystem, ParseMessageType(51, 0, 0))
	assert.Equal(t, MsgSystem, ParseMessageType(9999, 0, 0))
	assert.Equal(t, MsgNotice, ParseMessageType(10000, 0, 0))
	assert.Equal(t, MsgRecalled, ParseMessageType(10002, 0, 0))
	assert.Equal(t, MsgUnknown, ParseMessageType(12345, 0, 0))
}

func TestBuffString(t *testing.T) {
	var profile Profile
	require.NoError(t, json.Unmarshal([]byte(`{"UserName":{"Buff":"@me"},"NickName":"plain"}`), &profile))
	assert.Equal(t, BuffString("@me"), profile.UserName)
	assert.Equal(t, BuffString("plain"), profile.NickName)
	self := RawContact{UserName: "@me", NickName: "old", City: "Oslo"}
	profile.ApplyTo(&self)
	assert.Equal(t, "plain", self.NickName)
	assert.Equal(t, "Oslo", self.City)
}

func TestParseGroupText(t *testing.T) {
	group := NewGroup(makeGroup("", 0, "@self", "@abc1"), "@self", nil)
	group.Members[0].DisplayName = "Bot"
	resolver := mapResolver{group.Username: group}
	now := time.Now()
	raw := &RawMessage{
		NewMsgID:     42,
		FromUserName: group.Username,
		ToUserName:   "@self",
		MsgType:      RawMsgText,
		Content:      "@abc1:<br/>hello @Bot there &amp; you",
		CreateTime:   jsontime.U(now.Add(-2 * time.Second)),
	}
	msg := ParseMessage(raw, "@self", resolver, now)
	assert.Equal(t, MsgText, msg.Type)
	assert.Equal(t, "hello @Bot there & you", msg.Text)
	require.NotNil(t, msg.Member)
	assert.Equal(t, "@abc1", msg.Member.Username)
	assert.True(t, SameChat(group, msg.Chat))
	assert.True(t, msg.IsAt)
	assert.False(t, msg.FromSelf)
	assert.Equal(t, "@@group", msg.GetChatID())
}

func TestParseSelfMessage(t *testing.T) {
	friend := NewChat(&RawContact{UserName: "@friend", NickName: "F"}, "@self")
	resolver := mapResolver{"@friend": friend}
	raw := &RawMessage{FromUserName: "@self", ToUserName: "@friend", MsgType: RawMsgText, Content: "hi"}
	msg := ParseMessage(raw, "@self", resolver, time.Now())
	assert.True(t, msg.FromSelf)
	assert.True(t, SameChat(friend, msg.Chat))
	assert.Nil(t, msg.Member)
	assert.True(t, msg.Sender.Base().Placeholder)
}

func TestReceiveTimeClamped(t *testing.T) {
	now := time.Now()
	raw := &RawMessage{FromUserName: "@a", ToUserName: "@self", MsgType: RawMsgText, CreateTime: jsontime.U(now.Add(time.Minute))}
	msg := ParseMessage(raw, "@self", mapResolver{}, now)
	assert.False(t, msg.ReceiveTime.Before(msg.CreateTime))
	assert.Equal(t, time.Duration(0), msg.Latency())

	raw.CreateTime = jsontime.U(now.Add(-3 * time.Second))
	msg = ParseMessage(raw, "@self", mapResolver{}, now)
	assert.Equal(t, msg.ReceiveTime.Sub(msg.CreateTime), msg.Latency())
	assert.GreaterOrEqual(t, msg.Latency(), time.Duration(0))
}

func TestParseRecalled(t *testing.T) {
	raw := &RawMessage{
		FromUserName: "@a",
		ToUserName:   "@self",
		MsgType:      RawMsgRecalled,
		Content:      `&lt;sysmsg type="revokemsg"&gt;&lt;revokemsg&gt;&lt;msgid&gt;1234&lt;/msgid&gt;&lt;replacemsg&gt;&lt;![CDATA["A" recalled a message]]&gt;&lt;/replacemsg&gt;&lt;/revokemsg&gt;&lt;/sysmsg&gt;`,
	}
	msg := ParseMessage(raw, "@self", mapResolver{}, time.Now())
	assert.Equal(t, MsgRecalled, msg.Type)
	assert.Equal(t, int64(1234), msg.RecalledID)
	assert.Equal(t, `"A" recalled a message`, msg.Text)
}

func TestParseCash(t *testing.T) {
	raw := &RawMessage{
		FromUserName: "@a",
		ToUserName:   "@self",
		MsgType:      RawMsgApp,
		AppMsgType:   AppMsgCash,
		Content:      `<msg><appmsg><title>Transfer</title><wcpayinfo><feedesc>¥12.50</feedesc><pay_memo>lunch</pay_memo><transcationid>tx1</transcationid></wcpayinfo></appmsg></msg>`,
	}
	msg := ParseMessage(raw, "@self", mapResolver{}, time.Now())
	assert.Equal(t, MsgCash, msg.Type)
	assert.Equal(t, "Transfer", msg.Text)
	require.NotNil(t, msg.Cash)
	assert.InDelta(t, 12.5, msg.Cash.Amount, 0.0001)
	assert.Equal(t, "lunch", msg.Cash.Description)
	assert.Equal(t, "tx1", msg.Cash.ID)
}

func TestParseArticles(t *testing.T) {
	mp := NewChat(&RawContact{UserName: "@mp", VerifyFlag: 8}, "@self")
	raw := &RawMessage{
		FromUserName: "@mp",
		ToUserName:   "@self",
		MsgType:      RawMsgApp,
		AppMsgType:   AppMsgURL,
		Content: `<msg><appmsg><title>First</title></appmsg><mmreader><category count="2">` +
			`<item><title>First</title><digest>d1</digest><url>http://a</url><cover>http://c1</cover></item>` +
			`<item><title>Second</title><digest>d2</digest><url>http://b</url><cover>http://c2</cover></item>` +
			`</category></mmreader></msg>`,
	}
	msg := ParseMessage(raw, "@self", mapResolver{"@mp": mp}, time.Now())
	assert.Equal(t, MsgURL, msg.Type)
	assert.Equal(t, "First", msg.Text)
	require.Len(t, msg.Articles, 2)
	assert.Equal(t, Article{Title: "Second", Summary: "d2", URL: "http://b", Cover: "http://c2"}, msg.Articles[1])
}

func TestParseFileAndFriendRequest(t *testing.T) {
	raw := &RawMessage{
		FromUserName: "@a",
		ToUserName:   "@self",
		MsgType:      RawMsgApp,
		AppMsgType:   AppMsgFile,
		Content:      `<msg><appmsg><title>report.pdf</title><appattach><totallen>2048</totallen></appattach></appmsg></msg>`,
	}
	msg := ParseMessage(raw, "@self", mapResolver{}, time.Now())
	assert.Equal(t, "report.pdf", msg.FileName)
	assert.Equal(t, "report.pdf", msg.Text)
	assert.Equal(t, int64(2048), msg.FileSize)

	raw = &RawMessage{
		FromUserName:  "fmessage",
		ToUserName:    "@self",
		MsgType:       RawMsgVerify,
		Content:       `<msg fromusername="wxid_x" content="let me in" sourcenickname=""/>`,
		RecommendInfo: RecommendInfo{UserName: "@new", NickName: "Newbie", Ticket: "t"},
	}
	msg = ParseMessage(raw, "@self", mapResolver{}, time.Now())
	assert.Equal(t, MsgNewFriend, msg.Type)
	assert.Equal(t, "let me in", msg.Text)
	require.NotNil(t, msg.Card)
	assert.Equal(t, "Newbie", msg.Card.Name())
}

func TestParseLocation(t *testing.T) {
	raw := &RawMessage{
		FromUserName: "@a",
		ToUserName:   "@self",
		MsgType:      RawMsgText,
		SubMsgType:   SubMsgLocation,
		Content:      "Central Park:<br/>/cgi-bin/mmwebwx-bin/webwxgetpubliclinkimg",
		OriContent:   `<?xml version="1.0"?><msg><location x="40.78" y="-73.96" scale="16" label="Central Park" poiname="Park"/></msg>`,
	}
	msg := ParseMessage(raw, "@self", mapResolver{}, time.Now())
	assert.Equal(t, MsgLocation, msg.Type)
	assert.Equal(t, "Central Park", msg.Text)
	require.NotNil(t, msg.Location)
	assert.InDelta(t, 40.78, msg.Location.X, 0.001)
	assert.Equal(t, 16, msg.Location.Scale)
	assert.Equal(t, "Park", msg.Location.PoiName)
}

func TestIsMentioned(t *testing.T) {
	assert.True(t, IsMentioned("@bot hi", "bot"))
	assert.True(t, IsMentioned("hi @bot", "bot"))
	assert.False(t, IsMentioned("hi @bots", "bot"))
	assert.False(t, IsMentioned("hi", ""))
	assert.True(t, IsMentioned("@a.b x", "a.b"))
}
