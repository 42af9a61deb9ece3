// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.mau.fi/util/exhttp"
	"golang.org/x/sync/errgroup"

	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
	"go.mau.fi/webwx/types/events"
)

const (
	batchContactChunkSize = 50
	batchContactWorkers   = 5
)

type baseRequestPayload struct {
	BaseRequest store.BaseRequest `json:"BaseRequest"`
}

type initResponse struct {
	User        types.RawContact   `json:"User"`
	ContactList []types.RawContact `json:"ContactList"`
	Count       int                `json:"Count"`
}

type getContactResponse struct {
	MemberCount int                `json:"MemberCount"`
	MemberList  []types.RawContact `json:"MemberList"`
	Seq         int64              `json:"Seq"`
}

type batchContactItem struct {
	UserName        string `json:"UserName"`
	EncryChatRoomID string `json:"EncryChatRoomId"`
}

type batchContactRequest struct {
	BaseRequest store.BaseRequest  `json:"BaseRequest"`
	Count       int                `json:"Count"`
	List        []batchContactItem `json:"List"`
}

type batchContactResponse struct {
	Count       int                `json:"Count"`
	ContactList []types.RawContact `json:"ContactList"`
}

type statusNotifyRequest struct {
	BaseRequest  store.BaseRequest `json:"BaseRequest"`
	Code         int               `json:"Code"`
	FromUserName string            `json:"FromUserName"`
	ToUserName   string            `json:"ToUserName"`
	ClientMsgID  int64             `json:"ClientMsgId"`
}

// Status notify codes
const (
	statusNotifyMarkRead = 1
	statusNotifyInit     = 3
)

// bringUp fetches the self user and the contact list of a freshly authenticated session.
func (cli *Client) bringUp(ctx context.Context) error {
	if err := cli.webwxInit(ctx); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	self := cli.State.SelfUsername()
	if err := cli.statusNotify(ctx, statusNotifyInit, self, self); err != nil {
		cli.loginLog.Warnf("Failed to send initial status notify: %v", err)
	}
	if err := cli.fetchContactList(ctx); err != nil {
		return fmt.Errorf("failed to fetch contact list: %w", err)
	}
	if err := cli.refreshGroups(ctx, cli.State.GroupUsernames()); err != nil {
		return fmt.Errorf("failed to fetch groups: %w", err)
	}
	if err := cli.fetchMemberDetails(ctx, cli.State.MembersWithoutDetails()); err != nil {
		cli.loginLog.Warnf("Failed to fetch group member details: %v", err)
	}
	chats, members := cli.State.Counts()
	cli.loginLog.Infof("Fetched %d chats and %d member details", chats, members)
	return nil
}

func (cli *Client) webwxInit(ctx context.Context) error {
	sess := cli.Session()
	var resp initResponse
	err := cli.postJSON(ctx, sess.URIs.Base+"/webwxinit", cli.authQuery("r", negativeTimestamp()), &baseRequestPayload{
		BaseRequest: sess.BaseRequest(),
	}, &resp)
	if err != nil {
		return err
	} else if resp.User.UserName == "" {
		return fmt.Errorf("init response didn't contain the self user")
	}
	cli.State.SetSelf(resp.User)
	cli.State.ApplyUpserts(resp.ContactList)
	return nil
}

func (cli *Client) statusNotify(ctx context.Context, code int, from, to string) error {
	sess := cli.Session()
	return cli.postJSON(ctx, sess.URIs.Base+"/webwxstatusnotify", cli.authQuery(), &statusNotifyRequest{
		BaseRequest:  sess.BaseRequest(),
		Code:         code,
		FromUserName: from,
		ToUserName:   to,
		ClientMsgID:  time.Now().UnixMilli(),
	}, nil)
}

// fetchContactList pulls the paginated contact list.
func (cli *Client) fetchContactList(ctx context.Context) error {
	var seq int64
	for {
		sess := cli.Session()
		var resp getContactResponse
		err := cli.getJSON(ctx, sess.URIs.Base+"/webwxgetcontact", cli.authQuery(
			"r", timestampMS(),
			"seq", strconv.FormatInt(seq, 10),
			"skey", sess.Skey,
		), &resp)
		if err != nil {
			return err
		}
		cli.State.ApplyUpserts(resp.MemberList)
		cli.loginLog.Debugf("Got %d contacts (seq %d -> %d)", len(resp.MemberList), seq, resp.Seq)
		if resp.Seq == 0 {
			return nil
		}
		seq = resp.Seq
	}
}

// batchGetContact fetches full records in chunks of 50 with up to 5 concurrent requests.
// The records are returned in request order.
func (cli *Client) batchGetContact(ctx context.Context, items []batchContactItem) ([]types.RawContact, error) {
	if len(items) == 0 {
		return nil, nil
	}
	chunkCount := (len(items) + batchContactChunkSize - 1) / batchContactChunkSize
	results := make([][]types.RawContact, chunkCount)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(batchContactWorkers)
	for i := 0; i < chunkCount; i++ {
		chunk := items[i*batchContactChunkSize : min((i+1)*batchContactChunkSize, len(items))]
		eg.Go(func() error {
			sess := cli.Session()
			var resp batchContactResponse
			err := cli.postJSON(egCtx, sess.URIs.Base+"/webwxbatchgetcontact", cli.authQuery(
				"type", "ex",
				"r", timestampMS(),
			), &batchContactRequest{
				BaseRequest: sess.BaseRequest(),
				Count:       len(chunk),
				List:        chunk,
			}, &resp)
			if err != nil {
				return err
			}
			results[i] = resp.ContactList
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	var out []types.RawContact
	for _, records := range results {
		out = append(out, records...)
	}
	return out, nil
}

// refreshGroups fetches the full records, including member lists, of the given groups.
func (cli *Client) refreshGroups(ctx context.Context, groups []string) error {
	items := make([]batchContactItem, len(groups))
	for i, group := range groups {
		items[i] = batchContactItem{UserName: group}
	}
	records, err := cli.batchGetContact(ctx, items)
	if err != nil {
		return err
	}
	return cli.writeStore(ctx, records, nil)
}

// fetchMemberDetails fetches the full records of group members, keyed by group identifier.
func (cli *Client) fetchMemberDetails(ctx context.Context, members map[string][]string) error {
	var items []batchContactItem
	for group, usernames := range members {
		for _, username := range usernames {
			items = append(items, batchContactItem{UserName: username, EncryChatRoomID: group})
		}
	}
	records, err := cli.batchGetContact(ctx, items)
	if err != nil {
		return err
	}
	return cli.writeStore(ctx, nil, records)
}

// fetchUnknown fetches chats and members that were referenced by a message but aren't in the store.
// Groups with unknown members are refreshed first, so that their member lists include the newcomers.
// Identifiers that are already being fetched are skipped.
func (cli *Client) fetchUnknown(ctx context.Context, chats []string, members map[string][]string) {
	var items []batchContactItem
	var claimed []string
	claim := func(key string) bool {
		if !cli.pendingFetch.Add(key) {
			return false
		}
		claimed = append(claimed, key)
		return true
	}
	for _, username := range chats {
		if claim(username) {
			items = append(items, batchContactItem{UserName: username})
		}
	}
	memberItems := make(map[string][]string)
	for group, usernames := range members {
		for _, username := range usernames {
			if claim(group + "/" + username) {
				memberItems[group] = append(memberItems[group], username)
			}
		}
		if len(memberItems[group]) > 0 && !slices.Contains(chats, group) && claim(group) {
			items = append(items, batchContactItem{UserName: group})
		}
	}
	if len(claimed) == 0 {
		return
	}
	defer func() {
		for _, key := range claimed {
			cli.pendingFetch.Remove(key)
		}
	}()
	if len(items) > 0 {
		records, err := cli.batchGetContact(ctx, items)
		if err != nil {
			cli.recvLog.Warnf("Failed to fetch %d unknown chats: %v", len(items), err)
		} else if err = cli.writeStore(ctx, records, nil); err != nil {
			cli.recvLog.Debugf("Fetched chats weren't stored: %v", err)
		}
	}
	if len(memberItems) > 0 {
		if err := cli.fetchMemberDetails(ctx, memberItems); err != nil {
			cli.recvLog.Warnf("Failed to fetch unknown group members: %v", err)
		}
	}
}

// finishLogin marks the client as logged in and starts the loops.
func (cli *Client) finishLogin(ctx context.Context, resumed bool) {
	cli.setLoginState(types.LoginAuthenticated)
	cli.isLoggedIn.Store(true)
	cli.saveSession(ctx)
	cli.dispatchEvent(&events.LoggedIn{Resumed: resumed, Self: cli.State.Self()})
	cli.State.SetLive(true)
	cli.startLoops(ctx)
}

// handleLoggedOut ends the session. Only the first call after a login has any effect, so
// the LoggedOut event is emitted exactly once per session.
func (cli *Client) handleLoggedOut(ctx context.Context, evt *events.LoggedOut) {
	if !cli.isLoggedIn.CompareAndSwap(true, false) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	cli.State.SetLive(false)
	cli.stopLoops()
	cli.setLoginState(types.LoginNoSession)
	if evt.Reason == events.LogoutReasonSyncFailed && exhttp.IsNetworkError(evt.Error) {
		cli.Log.Warnf("Session ended by network errors, keeping it for a later resume: %v", evt)
		cli.saveSession(ctx)
	} else {
		cli.Log.Infof("Session ended: %v", evt)
		cli.resetSession(ctx)
	}
	cli.dispatchEvent(evt)
}
