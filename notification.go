// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"go.mau.fi/webwx/types"
)

type syncResponse struct {
	AddMsgCount            int                 `json:"AddMsgCount"`
	AddMsgList             []*types.RawMessage `json:"AddMsgList"`
	ModContactCount        int                 `json:"ModContactCount"`
	ModContactList         []types.RawContact  `json:"ModContactList"`
	DelContactCount        int                 `json:"DelContactCount"`
	DelContactList         []types.RawContact  `json:"DelContactList"`
	ModChatRoomMemberCount int                 `json:"ModChatRoomMemberCount"`
	ModChatRoomMemberList  []types.RawContact  `json:"ModChatRoomMemberList"`
	Profile                *types.Profile      `json:"Profile"`
	ContinueFlag           int                 `json:"ContinueFlag"`
}

// applySync applies a sync delta in the order the web client does: self profile, contact
// modifications, new messages and finally deletions.
func (cli *Client) applySync(resp *syncResponse) {
	if resp.Profile != nil {
		cli.State.MergeProfile(resp.Profile)
	}
	if len(resp.ModContactList) > 0 {
		cli.syncLog.Debugf("Applying %d modified chats", len(resp.ModContactList))
		cli.State.ApplyUpserts(resp.ModContactList)
	}
	if len(resp.ModChatRoomMemberList) > 0 {
		cli.State.ApplyMemberDetails(resp.ModChatRoomMemberList)
	}
	cli.enqueueMessages(resp.AddMsgList)
	if len(resp.DelContactList) > 0 {
		cli.syncLog.Debugf("Applying %d deleted chats", len(resp.DelContactList))
		cli.State.ApplyDeletes(resp.DelContactList)
	}
}

func (cli *Client) enqueueMessages(msgs []*types.RawMessage) {
	filtered := msgs[:0]
	for _, msg := range msgs {
		if msg != nil {
			filtered = append(filtered, msg)
		}
	}
	if len(filtered) == 0 {
		return
	}
	cli.syncLog.Debugf("Queueing %d new messages", len(filtered))
	cli.queue.Put(filtered...)
	cli.Metrics.setQueueLength(cli.queue.Len())
}
