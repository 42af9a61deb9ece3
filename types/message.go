// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"fmt"
	"time"

	"go.mau.fi/util/jsontime"
)

// RecommendInfo is the user attached to friend requests and contact cards.
type RecommendInfo struct {
	UserName   string `json:"UserName"`
	NickName   string `json:"NickName"`
	QQNum      int64  `json:"QQNum"`
	Province   string `json:"Province"`
	City       string `json:"City"`
	Content    string `json:"Content"`
	Signature  string `json:"Signature"`
	Alias      string `json:"Alias"`
	Scene      int    `json:"Scene"`
	VerifyFlag int    `json:"VerifyFlag"`
	AttrStatus int64  `json:"AttrStatus"`
	Sex        int    `json:"Sex"`
	Ticket     string `json:"Ticket"`
	OpCode     int    `json:"OpCode"`
}

// Contact converts the recommendation into a contact record.
func (ri *RecommendInfo) Contact() RawContact {
	return RawContact{
		UserName:   ri.UserName,
		NickName:   ri.NickName,
		Province:   ri.Province,
		City:       ri.City,
		Signature:  ri.Signature,
		Alias:      ri.Alias,
		VerifyFlag: ri.VerifyFlag,
		AttrStatus: ri.AttrStatus,
		Sex:        ri.Sex,
	}
}

// RawMessage is an entry of the AddMsgList of a sync response.
type RawMessage struct {
	MsgID                string        `json:"MsgId"`
	FromUserName         string        `json:"FromUserName"`
	ToUserName           string        `json:"ToUserName"`
	MsgType              int           `json:"MsgType"`
	Content              string        `json:"Content"`
	Status               int           `json:"Status"`
	ImgStatus            int           `json:"ImgStatus"`
	CreateTime           jsontime.Unix `json:"CreateTime"`
	VoiceLength          int           `json:"VoiceLength"`
	PlayLength           int           `json:"PlayLength"`
	FileName             string        `json:"FileName"`
	FileSize             string        `json:"FileSize"`
	MediaID              string        `json:"MediaId"`
	URL                  string        `json:"Url"`
	AppMsgType           int           `json:"AppMsgType"`
	StatusNotifyCode     int           `json:"StatusNotifyCode"`
	StatusNotifyUserName string        `json:"StatusNotifyUserName"`
	RecommendInfo        RecommendInfo `json:"RecommendInfo"`
	ForwardFlag          int           `json:"ForwardFlag"`
	HasProductID         int           `json:"HasProductId"`
	Ticket               string        `json:"Ticket"`
	ImgHeight            int           `json:"ImgHeight"`
	ImgWidth             int           `json:"ImgWidth"`
	SubMsgType           int           `json:"SubMsgType"`
	NewMsgID             int64         `json:"NewMsgId"`
	OriContent           string        `json:"OriContent"`
	EncryFileName        string        `json:"EncryFileName"`
}

// Article is a single entry of an official account push.
type Article struct {
	Title   string
	Summary string
	URL     string
	Cover   string
}

// Cash is the content of a money transfer message. Transfers can be resent, so check the ID.
type Cash struct {
	Amount      float64
	Description string
	ID          string
}

// Location is the content of a location share.
type Location struct {
	Label   string
	PoiName string
	X       float64
	Y       float64
	Scale   int
}

// Record is a history entry: either a received Message or a SentMessage.
type Record interface {
	GetID() int64
	GetChatID() string
	GetText() string
	GetType() MessageType
	GetTime() time.Time
}

// Message is an immutable snapshot of a received message, including ones the bot account sent
// from another device.
type Message struct {
	// NewMsgId, unique and usually positive.
	ID int64
	// MsgId as sent by the server, used when forwarding or marking as read.
	ServerID string
	Type     MessageType
	Raw      *RawMessage

	Sender   Chat
	Receiver Chat
	// Chat is the receiver for messages sent by the bot account and the sender otherwise.
	Chat Chat
	// Member is the actual sender of a group message. Nil outside groups.
	Member *Member
	// FromSelf is true if the bot account sent the message.
	FromSelf bool

	Text string
	IsAt bool

	// CreateTime is assigned by the server, ReceiveTime locally. ReceiveTime is never before CreateTime.
	CreateTime  time.Time
	ReceiveTime time.Time

	FileName    string
	FileSize    int64
	MediaID     string
	URL         string
	ImgWidth    int
	ImgHeight   int
	PlayLength  int
	VoiceLength int

	RecalledID int64
	Card       *User
	Cash       *Cash
	Location   *Location
	Articles   []Article
}

// Latency returns the time between the server creating the message and it being received locally.
func (msg *Message) Latency() time.Duration {
	return msg.ReceiveTime.Sub(msg.CreateTime)
}

func (msg *Message) String() string {
	from := "?"
	if msg.Chat != nil {
		from = msg.Chat.Name()
	}
	if msg.Member != nil {
		from = fmt.Sprintf("%s › %s", from, msg.Member.Name())
	}
	return fmt.Sprintf("%s (%s): %s", from, msg.Type, msg.Text)
}

func (msg *Message) GetID() int64 {
	return msg.ID
}

func (msg *Message) GetText() string {
	return msg.Text
}

func (msg *Message) GetType() MessageType {
	return msg.Type
}

func (msg *Message) GetTime() time.Time {
	return msg.CreateTime
}

func (msg *Message) GetChatID() string {
	if msg.Chat == nil {
		return ""
	}
	return msg.Chat.ID()
}

// SentMessage is a message sent through the client. Sent messages are recorded in the same
// history as received ones.
type SentMessage struct {
	// Server-assigned message ID.
	ID int64
	// Client-local ID, needed for revoking the message.
	LocalID  string
	Type     MessageType
	RawType  int
	Receiver Chat
	Text     string
	MediaID  string
	Path     string
	// SendTime is when the request was made, ResponseTime when the server acknowledged it.
	SendTime     time.Time
	ResponseTime time.Time
}

func (sm *SentMessage) GetID() int64 {
	return sm.ID
}

func (sm *SentMessage) GetText() string {
	return sm.Text
}

func (sm *SentMessage) GetType() MessageType {
	return sm.Type
}

func (sm *SentMessage) GetTime() time.Time {
	return sm.SendTime
}

func (sm *SentMessage) GetChatID() string {
	if sm.Receiver == nil {
		return ""
	}
	return sm.Receiver.ID()
}

// Latency returns the round trip time of the send request.
func (sm *SentMessage) Latency() time.Duration {
	return sm.ResponseTime.Sub(sm.SendTime)
}
