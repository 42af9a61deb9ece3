// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package appstate

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPin(t *testing.T) {
	data, err := json.Marshal(BuildPin("@abc", true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"CmdId":3,"OP":1,"RemarkName":"","UserName":"@abc"}`, string(data))

	data, err = json.Marshal(BuildPin("@abc", false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"CmdId":3,"OP":0,"RemarkName":"","UserName":"@abc"}`, string(data))

	data, err = json.Marshal(BuildRemarkName("@abc", "Boss"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"CmdId":2,"RemarkName":"Boss","UserName":"@abc"}`, string(data))
}

func TestBuildVerify(t *testing.T) {
	req := BuildVerify(VerifyAcceptUser, "@new", "v2_ticket", "", "@crypt_skey")
	assert.Equal(t, []int{33}, req.SceneList)
	assert.Equal(t, 1, req.VerifyUserListSize)
	assert.Equal(t, "v2_ticket", req.VerifyUserList[0].VerifyUserTicket)
	assert.Equal(t, VerifyOpcode(3), req.Opcode)
}

func TestBuildCreateChatroom(t *testing.T) {
	_, err := BuildCreateChatroom("@self", []string{"@self", "@a", "@a"}, "")
	assert.ErrorIs(t, err, ErrTooFewMembers)

	req, err := BuildCreateChatroom("@self", []string{"@a", "@self", "@b"}, "topic")
	require.NoError(t, err)
	assert.Equal(t, 2, req.MemberCount)
	assert.Equal(t, []CreateMember{{UserName: "@a"}, {UserName: "@b"}}, req.MemberList)
}

func TestChatroomUpdates(t *testing.T) {
	add := BuildAddMembers("@@g", []string{"@a", "@b"}, false)
	assert.Equal(t, ChatroomAddMember, add.Func)
	assert.Equal(t, "@a,@b", add.AddMemberList)

	invite := BuildAddMembers("@@g", []string{"@a"}, true)
	assert.Equal(t, ChatroomInviteMember, invite.Func)
	data, err := json.Marshal(invite)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ChatRoomName":"@@g","InviteMemberList":"@a"}`, string(data))

	del := BuildRemoveMembers("@@g", []string{"@c"})
	assert.Equal(t, ChatroomDelMember, del.Func)
	assert.Equal(t, "@c", del.DelMemberList)
}

func TestTrimTopic(t *testing.T) {
	assert.Equal(t, "short", TrimTopic("short"))
	assert.Equal(t, strings.Repeat("a", 32), TrimTopic(strings.Repeat("a", 40)))
	// Chinese characters take two bytes in GBK.
	assert.Equal(t, strings.Repeat("群", 16), TrimTopic(strings.Repeat("群", 20)))
	// Emoji can't be encoded in GBK, so UTF-8 lengths apply.
	assert.Equal(t, strings.Repeat("😀", 8), TrimTopic(strings.Repeat("😀", 10)))
	assert.Equal(t, "Rename", BuildRename("@@g", "Rename").NewTopic)
}
