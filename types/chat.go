// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatKind is the entity kind of a chat. Kinds form a hierarchy, see ChatKind.Is.
type ChatKind int

const (
	KindChat ChatKind = iota
	KindUser
	KindFriend
	KindMember
	KindGroup
	KindMP
	KindServiceAccount
	KindSubscriptionAccount
)

var kindParents = map[ChatKind]ChatKind{
	KindUser:                KindChat,
	KindGroup:               KindChat,
	KindFriend:              KindUser,
	KindMember:              KindUser,
	KindMP:                  KindUser,
	KindServiceAccount:      KindMP,
	KindSubscriptionAccount: KindMP,
}

// Is returns true if the kind is the given kind or one of its descendants,
// e.g. KindServiceAccount.Is(KindMP) and KindFriend.Is(KindUser) are both true.
func (k ChatKind) Is(ancestor ChatKind) bool {
	for {
		if k == ancestor {
			return true
		}
		parent, ok := kindParents[k]
		if !ok {
			return false
		}
		k = parent
	}
}

func (k ChatKind) String() string {
	switch k {
	case KindChat:
		return "Chat"
	case KindUser:
		return "User"
	case KindFriend:
		return "Friend"
	case KindMember:
		return "Member"
	case KindGroup:
		return "Group"
	case KindMP:
		return "MP"
	case KindServiceAccount:
		return "ServiceAccount"
	case KindSubscriptionAccount:
		return "SubscriptionAccount"
	default:
		return fmt.Sprintf("ChatKind(%d)", int(k))
	}
}

// Chat is implemented by every chat entity: *User, *Friend, *Member, *Group and *OfficialAccount.
//
// Chats are views built from the session store at the time they were requested. They are not
// updated afterward; fetch the chat again to see newer data.
type Chat interface {
	ID() string
	Name() string
	Kind() ChatKind
	Base() *BaseChat
	isChat()
}

// SameChat returns true if both chats refer to the same identifier.
func SameChat(a, b Chat) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}

// BaseChat contains the fields shared by all chat kinds.
type BaseChat struct {
	Username    string
	NickName    string
	RemarkName  string
	DisplayName string
	Raw         RawContact
	// Placeholder is set when the chat was synthesized from an identifier that wasn't in the store.
	Placeholder bool

	kind ChatKind
}

func newBaseChat(raw *RawContact, kind ChatKind) BaseChat {
	return BaseChat{
		Username:    raw.UserName,
		NickName:    raw.NickName,
		RemarkName:  raw.RemarkName,
		DisplayName: raw.DisplayName,
		Raw:         *raw,
		kind:        kind,
	}
}

func (bc *BaseChat) ID() string      { return bc.Username }
func (bc *BaseChat) Kind() ChatKind  { return bc.kind }
func (bc *BaseChat) Base() *BaseChat { return bc }
func (bc *BaseChat) isChat()         {}

// Name returns the friendly name of the chat: the remark name, in-group display name,
// nickname or identifier, whichever is first non-empty.
func (bc *BaseChat) Name() string {
	switch {
	case bc.RemarkName != "":
		return bc.RemarkName
	case bc.DisplayName != "":
		return bc.DisplayName
	case bc.NickName != "":
		return bc.NickName
	default:
		return bc.Username
	}
}

func (bc *BaseChat) String() string {
	return fmt.Sprintf("<%s: %s>", bc.kind, bc.Name())
}

// Sex is the gender value of a user record.
type Sex int

const (
	SexUnknown Sex = 0
	SexMale    Sex = 1
	SexFemale  Sex = 2
)

// User is a person-like chat. It is used directly for placeholders and card/friend-request users,
// and embedded in Friend, Member and OfficialAccount.
type User struct {
	BaseChat
	Sex       Sex
	Province  string
	City      string
	Signature string
	Alias     string
	Uin       int64
	IsFriend  bool
	IsStarred bool
}

func newUser(raw *RawContact, kind ChatKind) User {
	return User{
		BaseChat:  newBaseChat(raw, kind),
		Sex:       Sex(raw.Sex),
		Province:  raw.Province,
		City:      raw.City,
		Signature: raw.Signature,
		Alias:     raw.Alias,
		Uin:       raw.Uin,
		IsFriend:  kind == KindFriend || raw.ContactFlag&1 != 0,
		IsStarred: raw.StarFriend == 1,
	}
}

// NewUser wraps a raw record as a plain user without classifying it.
func NewUser(raw *RawContact) *User {
	u := newUser(raw, KindUser)
	return &u
}

// StableID returns the best-effort durable identifier of the user: the alias if set,
// otherwise the numeric uin. It is empty when the server hides both.
func (u *User) StableID() string {
	if u.Alias != "" {
		return u.Alias
	} else if u.Uin != 0 {
		return strconv.FormatInt(u.Uin, 10)
	}
	return ""
}

// Friend is a user in the bot's own contact list.
type Friend struct {
	User
}

// Member is a user scoped to one group. The group is referenced by identifier only.
type Member struct {
	User
	GroupUsername string
}

// NewMember wraps a member record belonging to the given group.
func NewMember(raw *RawContact, groupUsername string) *Member {
	return &Member{User: newUser(raw, KindMember), GroupUsername: groupUsername}
}

// OfficialAccount is a subscription or service account.
type OfficialAccount struct {
	User
}

// IsService returns true for service accounts and false for subscription accounts.
func (oa *OfficialAccount) IsService() bool {
	return oa.kind == KindServiceAccount
}

// Group is a group chat with its ordered member list.
type Group struct {
	BaseChat
	Members         []*Member
	OwnerUsername   string
	IsOwner         bool
	SelfUsername    string
	EncryChatRoomID string
}

// MemberEnricher returns the merged record of a group member. It receives the thin MemberList entry.
type MemberEnricher func(member *RawMember) RawContact

// NewGroup wraps a group record. selfUsername is the bot's own identifier; enrich may be nil,
// in which case the thin member list entries are used as-is.
func NewGroup(raw *RawContact, selfUsername string, enrich MemberEnricher) *Group {
	group := &Group{
		BaseChat:        newBaseChat(raw, KindGroup),
		Members:         make([]*Member, 0, len(raw.MemberList)),
		SelfUsername:    selfUsername,
		EncryChatRoomID: raw.EncryChatRoomID,
	}
	// A group's own DisplayName field is meaningless for naming the group.
	group.DisplayName = ""
	for i := range raw.MemberList {
		rm := &raw.MemberList[i]
		var record RawContact
		if enrich != nil {
			record = enrich(rm)
		} else {
			record = rm.Contact()
		}
		group.Members = append(group.Members, NewMember(&record, raw.UserName))
	}
	if raw.ChatRoomOwner != "" {
		group.OwnerUsername = raw.ChatRoomOwner
	} else if len(group.Members) > 0 {
		group.OwnerUsername = group.Members[0].Username
	}
	group.IsOwner = raw.IsOwner == 1 || (selfUsername != "" && group.OwnerUsername == selfUsername)
	return group
}

// Has returns true if the given identifier is a member of the group.
func (g *Group) Has(username string) bool {
	return g.Member(username) != nil
}

// Member finds a member by identifier.
func (g *Group) Member(username string) *Member {
	for _, member := range g.Members {
		if member.Username == username {
			return member
		}
	}
	return nil
}

// Self returns the bot's own member entry, or nil for shadow groups.
func (g *Group) Self() *Member {
	return g.Member(g.SelfUsername)
}

// Owner returns the member entry of the group owner, if known.
func (g *Group) Owner() *Member {
	return g.Member(g.OwnerUsername)
}

// IsShadow returns true if the bot itself isn't a member of the group. Such records are
// server-side artifacts and are never listed.
func (g *Group) IsShadow() bool {
	return g.SelfUsername != "" && !g.Has(g.SelfUsername)
}

// MemberUsernames returns the set of member identifiers.
func (g *Group) MemberUsernames() map[string]struct{} {
	set := make(map[string]struct{}, len(g.Members))
	for _, member := range g.Members {
		set[member.Username] = struct{}{}
	}
	return set
}

// SearchMembers returns the members whose names contain all the given keywords (case-insensitive).
func (g *Group) SearchMembers(keywords string) []*Member {
	var out []*Member
	for _, member := range g.Members {
		if MatchName(member, keywords) {
			out = append(out, member)
		}
	}
	return out
}

// NewChat classifies a raw record and wraps it into the matching entity. Groups are built
// with thin member entries; the session store builds enriched groups.
func NewChat(raw *RawContact, selfUsername string) Chat {
	switch kind := Classify(raw); kind {
	case KindGroup:
		return NewGroup(raw, selfUsername, nil)
	case KindServiceAccount, KindSubscriptionAccount:
		return &OfficialAccount{User: newUser(raw, kind)}
	case KindMember:
		return NewMember(raw, "")
	default:
		return &Friend{User: newUser(raw, KindFriend)}
	}
}

// NewPlaceholder synthesizes a minimal chat for an identifier that isn't known locally.
func NewPlaceholder(username string) Chat {
	raw := &RawContact{UserName: username}
	var chat Chat
	if IsGroupID(username) {
		chat = NewGroup(raw, "", nil)
	} else {
		chat = NewUser(raw)
	}
	chat.Base().Placeholder = true
	return chat
}

// MatchName returns true if the chat's remark name, display name, nickname or stable id
// contains every whitespace-separated keyword (case-insensitive).
func MatchName(chat Chat, keywords string) bool {
	base := chat.Base()
	candidates := []string{base.RemarkName, base.DisplayName, base.NickName}
	if user := asUser(chat); user != nil {
		candidates = append(candidates, user.StableID())
	}
	for _, kw := range strings.Fields(strings.ToLower(keywords)) {
		found := false
		for _, candidate := range candidates {
			if strings.Contains(strings.ToLower(candidate), kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func asUser(chat Chat) *User {
	switch typed := chat.(type) {
	case *User:
		return typed
	case *Friend:
		return &typed.User
	case *Member:
		return &typed.User
	case *OfficialAccount:
		return &typed.User
	default:
		return nil
	}
}

// AsUser returns the embedded user of person-like chats, or nil for groups.
func AsUser(chat Chat) *User {
	return asUser(chat)
}
