// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package appstate contains builders for the request bodies that mutate account state:
// contact remarks and pins, friend verification and group chat updates.
package appstate

// OpLogCmd is the command of a webwxoplog request.
type OpLogCmd int

const (
	OpLogSetRemarkName OpLogCmd = 2
	OpLogSetPinned     OpLogCmd = 3
)

// OpLog is the body of a webwxoplog request, excluding BaseRequest.
type OpLog struct {
	CmdID      OpLogCmd `json:"CmdId"`
	OP         *int     `json:"OP,omitempty"`
	RemarkName string   `json:"RemarkName"`
	UserName   string   `json:"UserName"`
}

// BuildRemarkName constructs an op-log entry that sets the remark name of a contact.
// An empty remark name clears it.
func BuildRemarkName(username, remarkName string) OpLog {
	return OpLog{
		CmdID:      OpLogSetRemarkName,
		RemarkName: remarkName,
		UserName:   username,
	}
}

// BuildPin constructs an op-log entry that pins or unpins a chat.
func BuildPin(username string, pinned bool) OpLog {
	op := 0
	if pinned {
		op = 1
	}
	return OpLog{
		CmdID:    OpLogSetPinned,
		OP:       &op,
		UserName: username,
	}
}

// VerifyOpcode is the operation of a webwxverifyuser request.
type VerifyOpcode int

const (
	VerifyFollowMP   VerifyOpcode = 1
	VerifyAddFriend  VerifyOpcode = 2
	VerifyAcceptUser VerifyOpcode = 3
)

// verifySceneWeb is the scene reported for requests made from the web client.
const verifySceneWeb = 33

// VerifyUser is a target of a verify request. The ticket comes from the friend request, if any.
type VerifyUser struct {
	Value            string `json:"Value"`
	VerifyUserTicket string `json:"VerifyUserTicket"`
}

// VerifyRequest is the body of a webwxverifyuser request, excluding BaseRequest.
type VerifyRequest struct {
	Opcode             VerifyOpcode `json:"Opcode"`
	SceneList          []int        `json:"SceneList"`
	SceneListCount     int          `json:"SceneListCount"`
	VerifyContent      string       `json:"VerifyContent"`
	VerifyUserList     []VerifyUser `json:"VerifyUserList"`
	VerifyUserListSize int          `json:"VerifyUserListSize"`
	Skey               string       `json:"skey"`
}

// BuildVerify constructs a verify-user request for a single user.
func BuildVerify(opcode VerifyOpcode, username, ticket, content, skey string) VerifyRequest {
	return VerifyRequest{
		Opcode:             opcode,
		SceneList:          []int{verifySceneWeb},
		SceneListCount:     1,
		VerifyContent:      content,
		VerifyUserList:     []VerifyUser{{Value: username, VerifyUserTicket: ticket}},
		VerifyUserListSize: 1,
		Skey:               skey,
	}
}
