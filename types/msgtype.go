// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

// MessageType is the friendly type tag of a message.
type MessageType string

const (
	MsgText      MessageType = "TEXT"
	MsgLocation  MessageType = "LOCATION"
	MsgImage     MessageType = "IMAGE"
	MsgVoice     MessageType = "VOICE"
	MsgNewFriend MessageType = "NEW_FRIEND"
	MsgCard      MessageType = "CARD"
	MsgVideo     MessageType = "VIDEO"
	MsgEmoticon  MessageType = "EMOTICON"
	MsgURL       MessageType = "URL"
	MsgFile      MessageType = "FILE"
	MsgCash      MessageType = "CASH"
	MsgNotice    MessageType = "NOTICE"
	MsgRecalled  MessageType = "RECALLED"
	// MsgSystem covers status notifications and system notices. It isn't recorded in history
	// and handlers only receive it when they opt in explicitly.
	MsgSystem  MessageType = "SYSTEM"
	MsgUnknown MessageType = "UNKNOWN"
)

// Raw MsgType values used by the web protocol.
const (
	RawMsgText         = 1
	RawMsgImage        = 3
	RawMsgVoice        = 34
	RawMsgVerify       = 37
	RawMsgPossible     = 40
	RawMsgShareCard    = 42
	RawMsgVideo        = 43
	RawMsgEmoticon     = 47
	RawMsgLocation     = 48
	RawMsgApp          = 49
	RawMsgVOIP         = 50
	RawMsgStatusNotify = 51
	RawMsgMicroVideo   = 62
	RawMsgSysNotice    = 9999
	RawMsgSys          = 10000
	RawMsgRecalled     = 10002
)

// AppMsgType values of MsgType 49 messages.
const (
	AppMsgURL  = 5
	AppMsgFile = 6
	AppMsgCash = 2000
)

// SubMsgLocation is the SubMsgType of a location share.
const SubMsgLocation = 48

// ParseMessageType maps the raw type triple of a message to its friendly type.
func ParseMessageType(msgType, appMsgType, subMsgType int) MessageType {
	switch msgType {
	case RawMsgText:
		if subMsgType == SubMsgLocation {
			return MsgLocation
		}
		return MsgText
	case RawMsgImage:
		return MsgImage
	case RawMsgVoice:
		return MsgVoice
	case RawMsgVerify:
		return MsgNewFriend
	case RawMsgShareCard:
		return MsgCard
	case RawMsgVideo, RawMsgMicroVideo:
		return MsgVideo
	case RawMsgEmoticon:
		return MsgEmoticon
	case RawMsgApp:
		switch appMsgType {
		case AppMsgURL:
			return MsgURL
		case AppMsgFile:
			return MsgFile
		case AppMsgCash:
			return MsgCash
		default:
			return MsgUnknown
		}
	case RawMsgSys:
		return MsgNotice
	case RawMsgRecalled:
		return MsgRecalled
	case RawMsgStatusNotify, RawMsgSysNotice:
		return MsgSystem
	default:
		return MsgUnknown
	}
}
