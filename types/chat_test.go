// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		raw  *RawContact
		want ChatKind
	}{
		{"nil", nil, KindFriend},
		{"group", &RawContact{UserName: "@@abc", VerifyFlag: 24}, KindGroup},
		{"service", &RawContact{UserName: "@a", VerifyFlag: 24}, KindServiceAccount},
		{"service verified", &RawContact{UserName: "@a", VerifyFlag: 56}, KindServiceAccount},
		{"subscription", &RawContact{UserName: "@a", VerifyFlag: 8}, KindSubscriptionAccount},
		{"member status", &RawContact{UserName: "@a", MemberStatus: intPtr(0)}, KindMember},
		{"encrypted room", &RawContact{UserName: "@a", EncryChatRoomID: "@x"}, KindMember},
		{"room id", &RawContact{UserName: "@a", ChatRoomID: 12}, KindMember},
		{"plain", &RawContact{UserName: "@a", NickName: "Alice"}, KindFriend},
		{"empty", &RawContact{}, KindFriend},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			first := Classify(c.raw)
			assert.Equal(t, c.want, first)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, Classify(c.raw))
			}
		})
	}
}

func TestChatKindHierarchy(t *testing.T) {
	assert.True(t, KindServiceAccount.Is(KindMP))
	assert.True(t, KindServiceAccount.Is(KindUser))
	assert.True(t, KindSubscriptionAccount.Is(KindChat))
	assert.True(t, KindFriend.Is(KindUser))
	assert.True(t, KindMember.Is(KindUser))
	assert.True(t, KindGroup.Is(KindChat))
	assert.False(t, KindGroup.Is(KindUser))
	assert.False(t, KindFriend.Is(KindMP))
	assert.False(t, KindUser.Is(KindFriend))
	assert.Equal(t, "ServiceAccount", KindServiceAccount.String())
}

func TestNamePriority(t *testing.T) {
	raw := &RawContact{UserName: "@u", NickName: "nick", DisplayName: "display", RemarkName: "remark"}
	chat := NewChat(raw, "")
	assert.Equal(t, "remark", chat.Name())
	raw.RemarkName = ""
	assert.Equal(t, "display", NewChat(raw, "").Name())
	raw.DisplayName = ""
	assert.Equal(t, "nick", NewChat(raw, "").Name())
	raw.NickName = ""
	assert.Equal(t, "@u", NewChat(raw, "").Name())
}

func TestStableID(t *testing.T) {
	assert.Equal(t, "alias", NewUser(&RawContact{Alias: "alias", Uin: 5}).StableID())
	assert.Equal(t, "5", NewUser(&RawContact{Uin: 5}).StableID())
	assert.Equal(t, "", NewUser(&RawContact{}).StableID())
}

func makeGroup(owner string, isOwner int, members ...string) *RawContact {
	raw := &RawContact{UserName: "@@group", NickName: "Group", ChatRoomOwner: owner, IsOwner: isOwner, DisplayName: "ignored"}
	for _, member := range members {
		raw.MemberList = append(raw.MemberList, RawMember{UserName: member, NickName: member + "-nick"})
	}
	return raw
}

func TestGroupOwnership(t *testing.T) {
	group := NewGroup(makeGroup("", 0, "@self", "@b", "@c"), "@self", nil)
	require.Len(t, group.Members, 3)
	assert.Equal(t, "@self", group.OwnerUsername)
	assert.True(t, group.IsOwner)
	assert.Equal(t, "Group", group.Name())

	group = NewGroup(makeGroup("@b", 0, "@self", "@b"), "@self", nil)
	assert.Equal(t, "@b", group.OwnerUsername)
	assert.False(t, group.IsOwner)
	assert.Equal(t, "@b", group.Owner().Username)

	group = NewGroup(makeGroup("@b", 1, "@self", "@b"), "@self", nil)
	assert.True(t, group.IsOwner)
}

func TestGroupMembership(t *testing.T) {
	group := NewGroup(makeGroup("", 0, "@self", "@b"), "@self", nil)
	assert.True(t, group.Has("@b"))
	assert.False(t, group.Has("@z"))
	assert.False(t, group.IsShadow())
	require.NotNil(t, group.Self())
	assert.Equal(t, "@@group", group.Self().GroupUsername)
	assert.Equal(t, KindMember, group.Self().Kind())

	shadow := NewGroup(makeGroup("", 0, "@a", "@b"), "@self", nil)
	assert.True(t, shadow.IsShadow())
	assert.Nil(t, shadow.Self())
}

func TestGroupEnrichment(t *testing.T) {
	raw := makeGroup("", 0, "@self", "@b")
	raw.MemberList[1].DisplayName = "Bee"
	group := NewGroup(raw, "@self", func(member *RawMember) RawContact {
		record := member.Contact()
		if member.UserName == "@b" {
			record.MergeFrom(&RawContact{City: "Paris", NickName: "Bob"})
		}
		return record
	})
	b := group.Member("@b")
	require.NotNil(t, b)
	assert.Equal(t, "Paris", b.City)
	assert.Equal(t, "Bob", b.NickName)
	assert.Equal(t, "Bee", b.Name())
}

func TestSearchMembers(t *testing.T) {
	group := NewGroup(makeGroup("", 0, "@self", "@alice", "@bob"), "@self", nil)
	found := group.SearchMembers("ALICE nick")
	require.Len(t, found, 1)
	assert.Equal(t, "@alice", found[0].Username)
	assert.Len(t, group.SearchMembers(""), 3)
}

func TestPlaceholder(t *testing.T) {
	chat := NewPlaceholder("@@unknown")
	assert.Equal(t, KindGroup, chat.Kind())
	assert.True(t, chat.Base().Placeholder)
	user := NewPlaceholder("@user")
	assert.Equal(t, KindUser, user.Kind())
	assert.True(t, SameChat(user, NewUser(&RawContact{UserName: "@user"})))
	assert.False(t, SameChat(user, nil))
}

func TestMergeFromKeepsExisting(t *testing.T) {
	rc := RawContact{UserName: "@a", NickName: "old", City: "Berlin"}
	rc.MergeFrom(&RawContact{UserName: "@other", NickName: "new"})
	assert.Equal(t, "@a", rc.UserName)
	assert.Equal(t, "new", rc.NickName)
	assert.Equal(t, "Berlin", rc.City)
}
