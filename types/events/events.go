// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package events contains all the events that webwx.Client emits to functions registered with AddEventHandler.
package events

import (
	"fmt"

	"go.mau.fi/webwx/types"
)

// QR is emitted after a login uuid has been received from the server and should be displayed as a QR code.
//
// Codes contains the string that should be encoded in the QR code. If the uuid expires, a new
// QR event is emitted with a new code.
type QR struct {
	Codes []string
	UUID  string
	// PushLogin is true if the phone was asked to confirm the login directly and no scan is required.
	PushLogin bool
}

// ConfirmLogin is emitted when the QR code has been scanned and the phone is asking the user to confirm.
// Any displayed QR code can be removed at this point.
type ConfirmLogin struct{}

// UUIDExpired is emitted when the login uuid expired before it was scanned. A new uuid is requested automatically.
type UUIDExpired struct{}

// LoggedIn is emitted after the session is authenticated, the contact list has been pulled and
// the sync loop is about to start.
type LoggedIn struct {
	// Resumed is true if a persisted session was reused without a new scan.
	Resumed bool
	Self    *types.User
}

// LogoutReason describes why a session ended.
type LogoutReason int

const (
	LogoutReasonUnknown LogoutReason = iota
	// LogoutReasonRemote means the server reported the session as logged out, e.g. logged out from the phone.
	LogoutReasonRemote
	// LogoutReasonSyncFailed means the sync loop ran out of retries.
	LogoutReasonSyncFailed
	// LogoutReasonManual means Logout was called.
	LogoutReasonManual
	// LogoutReasonResumeFailed means the first sync of a restored session failed.
	LogoutReasonResumeFailed
)

func (lr LogoutReason) String() string {
	switch lr {
	case LogoutReasonRemote:
		return "logged out remotely"
	case LogoutReasonSyncFailed:
		return "sync failed"
	case LogoutReasonManual:
		return "logged out manually"
	case LogoutReasonResumeFailed:
		return "resuming session failed"
	default:
		return "unknown"
	}
}

// LoggedOut is emitted exactly once when an authenticated session ends.
//
// The session data is removed from the container unless the reason is LogoutReasonSyncFailed with a
// network error, in which case the session may still be resumable.
type LoggedOut struct {
	Reason LogoutReason
	// Code is the sync check retcode for remote logouts.
	Code  int
	Error error
}

func (lo *LoggedOut) String() string {
	if lo.Error != nil {
		return fmt.Sprintf("%s: %v", lo.Reason, lo.Error)
	}
	return lo.Reason.String()
}

// NewFriend is emitted when a previously unseen friend appears in a sync delta.
type NewFriend struct {
	Friend *types.Friend
}

// NewGroup is emitted when a previously unseen group appears in a sync delta.
type NewGroup struct {
	Group *types.Group
}

// NewMember is emitted when a member joins a known group.
type NewMember struct {
	Group  *types.Group
	Member *types.Member
}

// DeletingFriend is emitted before a friend is removed from the store.
type DeletingFriend struct {
	Friend *types.Friend
}

// DeletingGroup is emitted before a group is removed from the store.
type DeletingGroup struct {
	Group *types.Group
}

// DeletingMember is emitted before a member that left a group is removed from the group's member list.
type DeletingMember struct {
	Group  *types.Group
	Member *types.Member
}

// Message is emitted for every received message, before it's matched against registered handlers.
type Message struct {
	*types.Message
}

// HandlerError is emitted when a registered message handler returned an error or panicked.
type HandlerError struct {
	RegistrationID uint32
	Message        *types.Message
	Error          error
	Panicked       bool
}
