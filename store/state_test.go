// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/webwx/types"
)

type hookRecorder struct {
	events []string
}

func (hr *hookRecorder) hooks() Hooks {
	return Hooks{
		NewFriend: func(friend *types.Friend) {
			hr.events = append(hr.events, "new friend "+friend.Username)
		},
		NewGroup: func(group *types.Group) {
			hr.events = append(hr.events, "new group "+group.Username)
		},
		NewMember: func(group *types.Group, member *types.Member) {
			hr.events = append(hr.events, "new member "+member.Username)
		},
		DeletingFriend: func(friend *types.Friend) {
			hr.events = append(hr.events, "deleting friend "+friend.Username)
		},
		DeletingGroup: func(group *types.Group) {
			hr.events = append(hr.events, "deleting group "+group.Username)
		},
		DeletingMember: func(group *types.Group, member *types.Member) {
			hr.events = append(hr.events, "deleting member "+member.Username)
		},
	}
}

func group(username string, members ...string) types.RawContact {
	raw := types.RawContact{UserName: username, NickName: username + " name"}
	for _, member := range members {
		raw.MemberList = append(raw.MemberList, types.RawMember{UserName: member})
	}
	return raw
}

func newTestState(hr *hookRecorder) *State {
	state := NewState(hr.hooks(), nil)
	state.SetSelf(types.RawContact{UserName: "@self", NickName: "Bot"})
	return state
}

func TestShadowGroupsAreSkipped(t *testing.T) {
	hr := &hookRecorder{}
	state := newTestState(hr)
	state.SetLive(true)
	state.ApplyUpserts([]types.RawContact{group("@@real", "@self", "@a"), group("@@shadow", "@a", "@b")})
	groups := state.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "@@real", groups[0].Username)
	assert.Nil(t, state.Group("@@shadow"))
	assert.Equal(t, []string{"new group @@real"}, hr.events)
}

func TestHooksOnlyFireWhenLive(t *testing.T) {
	hr := &hookRecorder{}
	state := newTestState(hr)
	state.ApplyUpserts([]types.RawContact{{UserName: "@f1", NickName: "F1"}, group("@@g", "@self")})
	assert.Empty(t, hr.events)
	state.SetLive(true)
	state.ApplyUpserts([]types.RawContact{{UserName: "@f1", NickName: "F1 renamed"}, {UserName: "@f2"}})
	assert.Equal(t, []string{"new friend @f2"}, hr.events)
	assert.Equal(t, "F1 renamed", state.Friend("@f1").Name())
}

func TestMemberDiffHooks(t *testing.T) {
	hr := &hookRecorder{}
	state := newTestState(hr)
	state.ApplyUpserts([]types.RawContact{group("@@g", "@self", "@a", "@b")})
	state.SetLive(true)
	state.ApplyUpserts([]types.RawContact{group("@@g", "@self", "@b", "@c")})
	assert.Equal(t, []string{"deleting member @a", "new member @c"}, hr.events)
	g := state.Group("@@g")
	require.NotNil(t, g)
	assert.True(t, g.Has("@c"))
	assert.False(t, g.Has("@a"))
}

func TestDeletingMemberSeesOldList(t *testing.T) {
	var seen bool
	state := NewState(Hooks{
		DeletingMember: func(group *types.Group, member *types.Member) {
			seen = group.Has(member.Username)
		},
	}, nil)
	state.SetSelf(types.RawContact{UserName: "@self"})
	state.ApplyUpserts([]types.RawContact{group("@@g", "@self", "@a")})
	state.SetLive(true)
	state.ApplyUpserts([]types.RawContact{group("@@g", "@self")})
	assert.True(t, seen)
}

func TestMemberRecordsGoToDetailCache(t *testing.T) {
	state := newTestState(&hookRecorder{})
	status := 0
	state.ApplyUpserts([]types.RawContact{
		group("@@g", "@self", "@m"),
		{UserName: "@m", NickName: "Member", MemberStatus: &status, City: "Lyon"},
	})
	assert.Nil(t, state.Friend("@m"))
	assert.Empty(t, state.Friends())
	member := state.Member("@@g", "@m")
	require.NotNil(t, member)
	assert.Equal(t, "Lyon", member.City)
	assert.Equal(t, "Member", member.NickName)
}

func TestMemberMergePrecedence(t *testing.T) {
	state := newTestState(&hookRecorder{})
	raw := group("@@g", "@self", "@m")
	raw.MemberList[1].DisplayName = "In-group name"
	raw.MemberList[1].NickName = "thin nick"
	state.ApplyUpserts([]types.RawContact{raw, {UserName: "@m", NickName: "friend nick", RemarkName: "Remark", City: "Rome", DisplayName: "friend display"}})
	state.ApplyMemberDetails([]types.RawContact{{UserName: "@m", NickName: "detail nick", Province: "Lazio"}})

	member := state.Member("@@g", "@m")
	require.NotNil(t, member)
	assert.Equal(t, "detail nick", member.NickName)
	assert.Equal(t, "Rome", member.City)
	assert.Equal(t, "Lazio", member.Province)
	assert.Equal(t, "Remark", member.RemarkName)
	assert.Equal(t, "In-group name", member.DisplayName)

	// A richer record without a display name must not erase the group's override.
	state.ApplyMemberDetails([]types.RawContact{{UserName: "@m", Signature: "hi"}})
	member = state.Member("@@g", "@m")
	assert.Equal(t, "In-group name", member.DisplayName)
	assert.Equal(t, "hi", member.Signature)
}

func TestApplyDeletes(t *testing.T) {
	hr := &hookRecorder{}
	state := newTestState(hr)
	state.ApplyUpserts([]types.RawContact{{UserName: "@f"}, group("@@g", "@self")})
	state.SetLive(true)
	var friendExistedDuringHook bool
	state.hooks.DeletingFriend = func(friend *types.Friend) {
		friendExistedDuringHook = state.Friend(friend.Username) != nil
	}
	state.ApplyDeletes([]types.RawContact{{UserName: "@f"}, {UserName: "@@g"}, {UserName: "@unknown"}})
	assert.True(t, friendExistedDuringHook)
	assert.Equal(t, []string{"deleting group @@g"}, hr.events)
	assert.Nil(t, state.Friend("@f"))
	assert.Nil(t, state.Group("@@g"))
}

func TestRemovedFromGroup(t *testing.T) {
	hr := &hookRecorder{}
	state := newTestState(hr)
	state.ApplyUpserts([]types.RawContact{group("@@g", "@self", "@a")})
	state.SetLive(true)
	state.ApplyUpserts([]types.RawContact{group("@@g", "@a")})
	assert.Equal(t, []string{"deleting group @@g"}, hr.events)
	assert.Empty(t, state.GroupUsernames())
}

func TestViewsAreSnapshots(t *testing.T) {
	state := newTestState(&hookRecorder{})
	state.ApplyUpserts([]types.RawContact{{UserName: "@f", NickName: "old"}})
	view := state.Friend("@f")
	state.ApplyUpserts([]types.RawContact{{UserName: "@f", NickName: "new"}})
	assert.Equal(t, "old", view.NickName)
	assert.Equal(t, "new", state.Friend("@f").NickName)
}

func TestKindsAndSearch(t *testing.T) {
	state := newTestState(&hookRecorder{})
	state.ApplyUpserts([]types.RawContact{
		{UserName: "@alice", NickName: "Alice"},
		{UserName: "@news", NickName: "Daily News", VerifyFlag: 8},
		{UserName: "@bank", NickName: "Bank", VerifyFlag: 24},
		group("@@g", "@self"),
	})
	assert.Len(t, state.MPs(), 2)
	assert.Len(t, state.Chats(types.KindUser), 3)
	assert.Len(t, state.Chats(types.KindChat), 4)
	found := state.Search("news", types.KindChat)
	require.Len(t, found, 1)
	assert.Equal(t, "@news", found[0].ID())
	assert.Equal(t, "Bot", state.Self().NickName)
	assert.NotNil(t, state.Chat("@self"))
}

func TestMembersWithoutDetails(t *testing.T) {
	state := newTestState(&hookRecorder{})
	state.ApplyUpserts([]types.RawContact{{UserName: "@friend"}, group("@@g", "@self", "@friend", "@stranger")})
	assert.Equal(t, map[string][]string{"@@g": {"@stranger"}}, state.MembersWithoutDetails())
	state.ApplyMemberDetails([]types.RawContact{{UserName: "@stranger", NickName: "S"}})
	assert.Empty(t, state.MembersWithoutDetails())
}

func TestSnapshotRoundTrip(t *testing.T) {
	state := newTestState(&hookRecorder{})
	state.ApplyUpserts([]types.RawContact{{UserName: "@f", NickName: "F"}, group("@@g", "@self", "@f")})
	snap := state.Snapshot()
	snap.Session = Session{Uin: 123, Sid: "sid", SyncKey: SyncKey{Count: 1, List: []SyncKeyItem{{Key: 1, Val: 99}}}}
	data, err := EncodeSnapshot(snap)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	restored := NewState(Hooks{}, nil)
	require.True(t, restored.Restore(decoded))
	assert.Equal(t, "@self", restored.SelfUsername())
	assert.NotNil(t, restored.Friend("@f"))
	assert.NotNil(t, restored.Group("@@g"))
	assert.Equal(t, "1_99", decoded.Session.SyncKey.String())
}

func TestSnapshotVersionMismatch(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"version": 999, "session": {}}`))
	assert.True(t, errors.Is(err, ErrSnapshotVersionMismatch))
	_, err = DecodeSnapshot([]byte(`{"session": {}}`))
	assert.ErrorIs(t, err, ErrSnapshotVersionMismatch)
	_, err = DecodeSnapshot([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
	_, err = DecodeSnapshot([]byte(`{"version": 1, "session": []}`))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
	assert.False(t, NewState(Hooks{}, nil).Restore(&Snapshot{Version: 999}))
}

func TestFileContainer(t *testing.T) {
	ctx := context.Background()
	fc := NewFileContainer(filepath.Join(t.TempDir(), "sub", "session.json"))
	data, err := fc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, fc.Save(ctx, []byte(`{"version":1}`)))
	data, err = fc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))

	require.NoError(t, fc.PutFingerprint(ctx, &BrowserFingerprint{Browser: "Chrome", LocaleLanguage: "zh", LocaleCountry: "CN"}))
	require.NoError(t, fc.Delete(ctx))
	require.NoError(t, fc.Delete(ctx))
	data, err = fc.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	fp, err := fc.GetFingerprint(ctx)
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, "zh_CN", fp.Lang())
}

func TestSessionHelpers(t *testing.T) {
	id := NewDeviceID()
	assert.Len(t, id, 16)
	assert.Equal(t, byte('e'), id[0])
	assert.False(t, Session{}.IsAuthenticated())
	assert.False(t, Session{Uin: 1, Sid: "s"}.IsAuthenticated())
	sess := &Session{Uin: 1, Sid: "s", URIs: Endpoints{Base: "https://x"}}
	assert.True(t, sess.IsAuthenticated())
	sess.SyncKey = SyncKey{List: []SyncKeyItem{{Key: 1, Val: 2}, {Key: 3, Val: 4}}}
	assert.Equal(t, "1_2|3_4", sess.CheckKey().String())
	sess.SyncCheckKey = SyncKey{List: []SyncKeyItem{{Key: 5, Val: 6}}}
	assert.Equal(t, "5_6", sess.CheckKey().String())
	assert.NotEqual(t, sess.BaseRequest().DeviceID, "")
}

func TestConcurrentUpsertsFireHooksOnce(t *testing.T) {
	var newFriends, newGroups, newMembers atomic.Int32
	state := NewState(Hooks{
		NewFriend: func(*types.Friend) { newFriends.Add(1) },
		NewGroup:  func(*types.Group) { newGroups.Add(1) },
		NewMember: func(*types.Group, *types.Member) { newMembers.Add(1) },
	}, nil)
	state.SetSelf(types.RawContact{UserName: "@self"})
	state.ApplyUpserts([]types.RawContact{group("@@old", "@self", "@a")})
	state.SetLive(true)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			state.ApplyUpserts([]types.RawContact{
				{UserName: "@friend", NickName: "Friend"},
				group("@@new", "@self", "@b"),
				group("@@old", "@self", "@a", "@c"),
			})
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, newFriends.Load())
	assert.EqualValues(t, 1, newGroups.Load())
	assert.EqualValues(t, 1, newMembers.Load())
	assert.Len(t, state.Groups(), 2)
	assert.True(t, state.Group("@@old").Has("@c"))
}
