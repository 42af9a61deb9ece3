// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package store contains the session state of a webwx client: the contact cache, session tokens and
// the persistence interfaces.
package store

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"go.mau.fi/util/ptr"

	"go.mau.fi/webwx/types"
	waLog "go.mau.fi/webwx/util/log"
)

// Hooks are called when the contact cache changes after the initial contact pull. They're set once
// when the State is created. Hooks are never called while the state lock is held, so they may read
// from the state freely.
type Hooks struct {
	NewFriend      func(friend *types.Friend)
	NewGroup       func(group *types.Group)
	NewMember      func(group *types.Group, member *types.Member)
	DeletingFriend func(friend *types.Friend)
	DeletingGroup  func(group *types.Group)
	DeletingMember func(group *types.Group, member *types.Member)
}

// State is the in-memory cache of the self identity, chats and group member details.
//
// Only the sync loop mutates the state, but all views may be requested from any goroutine.
// Every view is built fresh from the raw records, so views never change after being returned.
type State struct {
	lock    sync.RWMutex
	self    types.RawContact
	chats   map[string]*types.RawContact
	members map[string]*types.RawContact

	hooks Hooks
	live  atomic.Bool
	log   waLog.Logger
}

// NewState creates an empty state. The hooks are fixed for the lifetime of the state.
func NewState(hooks Hooks, log waLog.Logger) *State {
	if log == nil {
		log = waLog.Noop
	}
	return &State{
		chats:   make(map[string]*types.RawContact),
		members: make(map[string]*types.RawContact),
		hooks:   hooks,
		log:     log,
	}
}

// SetLive enables or disables the change hooks. The client enables them after the initial contact
// pull, so that loading the contact list doesn't produce an event for every friend.
func (s *State) SetLive(live bool) {
	s.live.Store(live)
}

// IsLive returns true if change hooks are enabled.
func (s *State) IsLive() bool {
	return s.live.Load()
}

func cloneContact(raw *types.RawContact) *types.RawContact {
	clone := *raw
	clone.MemberList = slices.Clone(raw.MemberList)
	clone.MemberStatus = ptr.Clone(raw.MemberStatus)
	return &clone
}

// SetSelf replaces the self record.
func (s *State) SetSelf(raw types.RawContact) {
	s.lock.Lock()
	s.self = *cloneContact(&raw)
	s.lock.Unlock()
}

// MergeProfile merges a profile delta from a sync response into the self record.
func (s *State) MergeProfile(profile *types.Profile) {
	if profile == nil {
		return
	}
	s.lock.Lock()
	profile.ApplyTo(&s.self)
	s.lock.Unlock()
}

// SelfUsername returns the identifier of the bot account.
func (s *State) SelfUsername() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.self.UserName
}

// Self returns the bot account as a user, or nil if not logged in yet.
func (s *State) Self() *types.User {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.self.UserName == "" {
		return nil
	}
	return types.NewUser(cloneContact(&s.self))
}

func (s *State) isShadowLocked(raw *types.RawContact) bool {
	if s.self.UserName == "" || len(raw.MemberList) == 0 {
		return false
	}
	for _, member := range raw.MemberList {
		if member.UserName == s.self.UserName {
			return false
		}
	}
	return true
}

// enrichMemberLocked merges what is known about a group member. Later sources override earlier ones
// with their non-empty values: the thin MemberList entry, then the friend record, then the member
// detail cache. The in-group display name only ever comes from the group's own member list.
func (s *State) enrichMemberLocked(member *types.RawMember) types.RawContact {
	record := member.Contact()
	if friend, ok := s.chats[member.UserName]; ok {
		record.MergeFrom(friend)
	}
	if detail, ok := s.members[member.UserName]; ok {
		record.MergeFrom(detail)
	}
	if member.UserName == s.self.UserName {
		record.MergeFrom(&s.self)
	}
	record.DisplayName = member.DisplayName
	return record
}

func (s *State) groupViewLocked(raw *types.RawContact) *types.Group {
	return types.NewGroup(cloneContact(raw), s.self.UserName, s.enrichMemberLocked)
}

func (s *State) chatViewLocked(raw *types.RawContact) types.Chat {
	if types.IsGroupID(raw.UserName) {
		return s.groupViewLocked(raw)
	}
	return types.NewChat(cloneContact(raw), s.self.UserName)
}

func (s *State) mergeMemberLocked(raw *types.RawContact) {
	if existing, ok := s.members[raw.UserName]; ok {
		existing.MergeFrom(raw)
	} else {
		s.members[raw.UserName] = cloneContact(raw)
	}
}

// ApplyUpserts stores new or modified chat records.
//
// Records shaped like group members go to the member detail cache. Shadow groups are dropped,
// and a known group that turns into a shadow group (i.e. the bot was removed) is deleted.
// For live states, new friends and groups fire their hooks, and member list changes of known
// groups fire DeletingMember (before the new list is stored) and NewMember (after).
func (s *State) ApplyUpserts(records []types.RawContact) {
	for i := range records {
		s.applyUpsert(&records[i])
	}
}

func (s *State) applyUpsert(raw *types.RawContact) {
	if raw.UserName == "" {
		return
	}
	kind := types.Classify(raw)
	if kind == types.KindMember {
		s.lock.Lock()
		s.mergeMemberLocked(raw)
		s.lock.Unlock()
		return
	}
	live := s.live.Load()

	s.lock.Lock()
	existing, exists := s.chats[raw.UserName]
	if kind == types.KindGroup && s.isShadowLocked(raw) {
		s.lock.Unlock()
		if exists {
			s.log.Debugf("Self is no longer a member of %s, removing it", raw.UserName)
			s.deleteChat(raw.UserName)
		} else {
			s.log.Debugf("Ignoring shadow group %s", raw.UserName)
		}
		return
	}
	var oldGroup *types.Group
	var left []*types.Member
	if live && exists && kind == types.KindGroup && len(raw.MemberList) > 0 {
		oldGroup = s.groupViewLocked(existing)
		newMembers := make(map[string]struct{}, len(raw.MemberList))
		for _, member := range raw.MemberList {
			newMembers[member.UserName] = struct{}{}
		}
		for _, member := range oldGroup.Members {
			if _, stillThere := newMembers[member.Username]; !stillThere {
				left = append(left, member)
			}
		}
	}
	s.lock.Unlock()

	if s.hooks.DeletingMember != nil {
		for _, member := range left {
			s.hooks.DeletingMember(oldGroup, member)
		}
	}

	// The lock was released for the hooks, so look the chat up again before storing it.
	s.lock.Lock()
	stored, exists := s.chats[raw.UserName]
	var before map[string]struct{}
	if exists {
		if live && kind == types.KindGroup && len(raw.MemberList) > 0 {
			before = make(map[string]struct{}, len(stored.MemberList))
			for _, member := range stored.MemberList {
				before[member.UserName] = struct{}{}
			}
		}
		stored.MergeFrom(raw)
		if len(raw.MemberList) > 0 {
			stored.MemberList = slices.Clone(raw.MemberList)
		}
	} else {
		stored = cloneContact(raw)
		s.chats[raw.UserName] = stored
	}
	var created types.Chat
	var newGroup *types.Group
	var joined []*types.Member
	if live {
		if !exists {
			created = s.chatViewLocked(stored)
		} else if before != nil {
			newGroup = s.groupViewLocked(stored)
			for _, member := range newGroup.Members {
				if _, known := before[member.Username]; !known {
					joined = append(joined, member)
				}
			}
		}
	}
	s.lock.Unlock()

	switch typed := created.(type) {
	case *types.Friend:
		if s.hooks.NewFriend != nil {
			s.hooks.NewFriend(typed)
		}
	case *types.Group:
		if s.hooks.NewGroup != nil && !typed.IsShadow() {
			s.hooks.NewGroup(typed)
		}
	}
	if s.hooks.NewMember != nil {
		for _, member := range joined {
			s.hooks.NewMember(newGroup, member)
		}
	}
}

// ApplyMemberDetails merges enriched member records into the member detail cache, which is shared by all groups.
func (s *State) ApplyMemberDetails(records []types.RawContact) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range records {
		if records[i].UserName != "" {
			s.mergeMemberLocked(&records[i])
		}
	}
}

// ApplyDeletes removes the given chats. Deleting hooks fire before the record is removed.
// Unknown identifiers are logged and ignored.
func (s *State) ApplyDeletes(records []types.RawContact) {
	for i := range records {
		s.deleteChat(records[i].UserName)
	}
}

func (s *State) deleteChat(username string) {
	s.lock.RLock()
	raw, ok := s.chats[username]
	var view types.Chat
	if ok && s.live.Load() {
		view = s.chatViewLocked(raw)
	}
	s.lock.RUnlock()
	if !ok {
		s.log.Warnf("Got delete for unknown chat %s", username)
		return
	}
	switch typed := view.(type) {
	case *types.Friend:
		if s.hooks.DeletingFriend != nil {
			s.hooks.DeletingFriend(typed)
		}
	case *types.Group:
		if s.hooks.DeletingGroup != nil {
			s.hooks.DeletingGroup(typed)
		}
	}
	s.lock.Lock()
	delete(s.chats, username)
	s.lock.Unlock()
}

// RawChat returns a copy of the raw record of a chat.
func (s *State) RawChat(username string) (types.RawContact, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	raw, ok := s.chats[username]
	if !ok {
		return types.RawContact{}, false
	}
	return *cloneContact(raw), true
}

// HasChat returns true if the identifier is in the chat map or is the bot account itself.
func (s *State) HasChat(username string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.chats[username]
	return ok || (username != "" && username == s.self.UserName)
}

// Chat returns a view of the given chat. Group members that aren't friends are returned as plain
// users. Returns nil for unknown identifiers.
func (s *State) Chat(username string) types.Chat {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if raw, ok := s.chats[username]; ok {
		return s.chatViewLocked(raw)
	} else if username != "" && username == s.self.UserName {
		return types.NewUser(cloneContact(&s.self))
	} else if detail, ok := s.members[username]; ok {
		return types.NewUser(cloneContact(detail))
	}
	return nil
}

// Friend returns the given friend, or nil if it's not a friend.
func (s *State) Friend(username string) *types.Friend {
	friend, _ := s.Chat(username).(*types.Friend)
	return friend
}

// Group returns the given group, or nil if it's unknown or a shadow group.
func (s *State) Group(username string) *types.Group {
	if !types.IsGroupID(username) {
		return nil
	}
	group, _ := s.Chat(username).(*types.Group)
	if group == nil || group.IsShadow() {
		return nil
	}
	return group
}

// Member returns a member of the given group.
func (s *State) Member(groupUsername, username string) *types.Member {
	group := s.Group(groupUsername)
	if group == nil {
		return nil
	}
	return group.Member(username)
}

func sortChats[T types.Chat](chats []T) {
	slices.SortFunc(chats, func(a, b T) int {
		return cmp.Or(cmp.Compare(a.Name(), b.Name()), cmp.Compare(a.ID(), b.ID()))
	})
}

// Chats returns all chats of the given kind (or its sub-kinds), sorted by name.
// Shadow groups and groups whose member list hasn't been loaded are never included.
func (s *State) Chats(kind types.ChatKind) []types.Chat {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var out []types.Chat
	for _, raw := range s.chats {
		if !types.Classify(raw).Is(kind) {
			continue
		}
		chat := s.chatViewLocked(raw)
		if group, ok := chat.(*types.Group); ok && group.IsShadow() {
			continue
		}
		out = append(out, chat)
	}
	sortChats(out)
	return out
}

func filterChats[T types.Chat](chats []types.Chat) []T {
	out := make([]T, 0, len(chats))
	for _, chat := range chats {
		if typed, ok := chat.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// Friends returns all friends.
func (s *State) Friends() []*types.Friend {
	return filterChats[*types.Friend](s.Chats(types.KindFriend))
}

// Groups returns all groups the bot account is a member of.
func (s *State) Groups() []*types.Group {
	return filterChats[*types.Group](s.Chats(types.KindGroup))
}

// MPs returns all service and subscription accounts.
func (s *State) MPs() []*types.OfficialAccount {
	return filterChats[*types.OfficialAccount](s.Chats(types.KindMP))
}

// Search returns the chats of the given kind whose names contain all the keywords.
func (s *State) Search(keywords string, kind types.ChatKind) []types.Chat {
	var out []types.Chat
	for _, chat := range s.Chats(kind) {
		if types.MatchName(chat, keywords) {
			out = append(out, chat)
		}
	}
	return out
}

// GroupUsernames returns the identifiers of all stored groups, including ones whose member list
// hasn't been loaded yet.
func (s *State) GroupUsernames() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var out []string
	for username := range s.chats {
		if types.IsGroupID(username) {
			out = append(out, username)
		}
	}
	slices.Sort(out)
	return out
}

// MembersWithoutDetails returns, per group, the members that are neither friends nor in the member
// detail cache.
func (s *State) MembersWithoutDetails() map[string][]string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make(map[string][]string)
	for username, raw := range s.chats {
		if !types.IsGroupID(username) {
			continue
		}
		for _, member := range raw.MemberList {
			_, isChat := s.chats[member.UserName]
			_, hasDetail := s.members[member.UserName]
			if !isChat && !hasDetail && member.UserName != s.self.UserName {
				out[username] = append(out[username], member.UserName)
			}
		}
	}
	return out
}

// Counts returns the number of stored chats and member details.
func (s *State) Counts() (chats, members int) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.chats), len(s.members)
}

// Clear removes everything from the state, including the self record.
func (s *State) Clear() {
	s.lock.Lock()
	s.self = types.RawContact{}
	s.chats = make(map[string]*types.RawContact)
	s.members = make(map[string]*types.RawContact)
	s.lock.Unlock()
}

// Export returns copies of the self record, chats and member details for persistence.
func (s *State) Export() (self types.RawContact, chats, members []types.RawContact) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	self = *cloneContact(&s.self)
	chats = make([]types.RawContact, 0, len(s.chats))
	for _, raw := range s.chats {
		chats = append(chats, *cloneContact(raw))
	}
	members = make([]types.RawContact, 0, len(s.members))
	for _, raw := range s.members {
		members = append(members, *cloneContact(raw))
	}
	slices.SortFunc(chats, compareUsername)
	slices.SortFunc(members, compareUsername)
	return
}

func compareUsername(a, b types.RawContact) int {
	return cmp.Compare(a.UserName, b.UserName)
}

// Import replaces the contents of the state. Hooks are not fired.
func (s *State) Import(self types.RawContact, chats, members []types.RawContact) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.self = *cloneContact(&self)
	s.chats = make(map[string]*types.RawContact, len(chats))
	for i := range chats {
		s.chats[chats[i].UserName] = cloneContact(&chats[i])
	}
	s.members = make(map[string]*types.RawContact, len(members))
	for i := range members {
		s.members[members[i].UserName] = cloneContact(&members[i])
	}
}
