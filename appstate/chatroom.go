// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package appstate

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrTooFewMembers is returned by BuildCreateChatroom when less than two other users are given.
var ErrTooFewMembers = errors.New("at least two other users are needed to create a group")

// MaxTopicBytes is the longest group name the server accepts, measured in GBK bytes.
const MaxTopicBytes = 32

// ChatroomFunc is the fun query parameter of webwxupdatechatroom.
type ChatroomFunc string

const (
	ChatroomAddMember    ChatroomFunc = "addmember"
	ChatroomInviteMember ChatroomFunc = "invitemember"
	ChatroomDelMember    ChatroomFunc = "delmember"
	ChatroomModTopic     ChatroomFunc = "modtopic"
)

// ChatroomUpdate is the body of a webwxupdatechatroom request, excluding BaseRequest.
// Only the field belonging to Func is set.
type ChatroomUpdate struct {
	Func ChatroomFunc `json:"-"`

	ChatRoomName     string `json:"ChatRoomName"`
	AddMemberList    string `json:"AddMemberList,omitempty"`
	InviteMemberList string `json:"InviteMemberList,omitempty"`
	DelMemberList    string `json:"DelMemberList,omitempty"`
	NewTopic         string `json:"NewTopic,omitempty"`
}

// BuildAddMembers constructs a request that adds users to a group directly,
// or sends them invitations if invite is true.
func BuildAddMembers(group string, usernames []string, invite bool) ChatroomUpdate {
	if invite {
		return ChatroomUpdate{
			Func:             ChatroomInviteMember,
			ChatRoomName:     group,
			InviteMemberList: strings.Join(usernames, ","),
		}
	}
	return ChatroomUpdate{
		Func:          ChatroomAddMember,
		ChatRoomName:  group,
		AddMemberList: strings.Join(usernames, ","),
	}
}

// BuildRemoveMembers constructs a request that removes members from a group.
func BuildRemoveMembers(group string, usernames []string) ChatroomUpdate {
	return ChatroomUpdate{
		Func:          ChatroomDelMember,
		ChatRoomName:  group,
		DelMemberList: strings.Join(usernames, ","),
	}
}

// BuildRename constructs a request that changes the name of a group. Long names are truncated.
func BuildRename(group, topic string) ChatroomUpdate {
	return ChatroomUpdate{
		Func:         ChatroomModTopic,
		ChatRoomName: group,
		NewTopic:     TrimTopic(topic),
	}
}

// TrimTopic truncates a group name to MaxTopicBytes. The length is measured in GBK when every
// character can be encoded in it, and in UTF-8 otherwise. Characters are never split.
func TrimTopic(topic string) string {
	encoder := simplifiedchinese.GBK.NewEncoder()
	useGBK := true
	if _, err := encoder.String(topic); err != nil {
		useGBK = false
	}
	var size int
	for i, r := range topic {
		width := utf8.RuneLen(r)
		if useGBK {
			width = 1
			if r >= utf8.RuneSelf {
				width = 2
			}
		}
		if size+width > MaxTopicBytes {
			return topic[:i]
		}
		size += width
	}
	return topic
}

// CreateMember is an entry of the member list of a webwxcreatechatroom request.
type CreateMember struct {
	UserName string `json:"UserName"`
}

// CreateChatroom is the body of a webwxcreatechatroom request, excluding BaseRequest.
type CreateChatroom struct {
	MemberCount int            `json:"MemberCount"`
	MemberList  []CreateMember `json:"MemberList"`
	Topic       string         `json:"Topic"`
}

// BuildCreateChatroom constructs a group creation request. The bot's own identifier is removed
// from the user list, and at least two other users must remain.
func BuildCreateChatroom(self string, usernames []string, topic string) (CreateChatroom, error) {
	members := make([]CreateMember, 0, len(usernames))
	seen := make(map[string]struct{}, len(usernames))
	for _, username := range usernames {
		if _, dup := seen[username]; dup || username == self || username == "" {
			continue
		}
		seen[username] = struct{}{}
		members = append(members, CreateMember{UserName: username})
	}
	if len(members) < 2 {
		return CreateChatroom{}, ErrTooFewMembers
	}
	return CreateChatroom{
		MemberCount: len(members),
		MemberList:  members,
		Topic:       TrimTopic(topic),
	}, nil
}
