// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import "strings"

const (
	// GroupPrefix is the identifier prefix of group chats.
	GroupPrefix = "@@"

	// ServiceAccountFlag is the minimum VerifyFlag of a service account.
	ServiceAccountFlag = 24
	// SubscriptionAccountFlag is the minimum VerifyFlag of a subscription account.
	SubscriptionAccountFlag = 8
)

// Well-known identifiers that are not returned in the contact list.
const (
	FileHelper = "filehelper"
	// FileHelperName is the display name the server uses for FileHelper.
	FileHelperName = "文件传输助手"
)

// Classify determines the entity kind of a raw record from its shape.
//
// Records that don't match any known shape are treated as friends.
func Classify(raw *RawContact) ChatKind {
	switch {
	case raw == nil:
		return KindFriend
	case strings.HasPrefix(raw.UserName, GroupPrefix):
		return KindGroup
	case raw.VerifyFlag >= ServiceAccountFlag:
		return KindServiceAccount
	case raw.VerifyFlag >= SubscriptionAccountFlag:
		return KindSubscriptionAccount
	case raw.MemberStatus != nil, raw.EncryChatRoomID != "", raw.ChatRoomID != 0:
		return KindMember
	default:
		return KindFriend
	}
}

// IsGroupID returns true if the given identifier belongs to a group chat.
func IsGroupID(username string) bool {
	return strings.HasPrefix(username, GroupPrefix)
}
