// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
	"go.mau.fi/webwx/types/events"
)

var syncCheckRegex = regexp.MustCompile(`window\.synccheck=\{retcode:"(\d+)",selector:"(\d+)"\}`)

type syncRequest struct {
	BaseRequest store.BaseRequest `json:"BaseRequest"`
	SyncKey     store.SyncKey     `json:"SyncKey"`
	RR          int32             `json:"rr"`
}

// storeWrite is a batch of records fetched outside the sync loop. While the loops run, the sync loop
// is the only goroutine that modifies the store, so other goroutines hand their records over.
type storeWrite struct {
	upserts []types.RawContact
	details []types.RawContact
	done    chan struct{}
}

// writeStore applies fetched chat records and member details to the store through the sync loop.
// Before the loops have started (i.e. during login), the records are applied directly.
//
// It waits until the records have been applied, except when the sync loop is applying changes
// itself: the caller may then be an event handler running on the sync loop, and the records are
// applied right after it returns.
func (cli *Client) writeStore(ctx context.Context, upserts, details []types.RawContact) error {
	if len(upserts) == 0 && len(details) == 0 {
		return nil
	}
	write := &storeWrite{upserts: upserts, details: details, done: make(chan struct{})}
	if !cli.syncRunning.Load() {
		cli.applyStoreWrite(write)
		return nil
	}
	cli.storeWrites.Put(write)
	if cli.storeApplying.Load() {
		return nil
	}
	select {
	case <-write.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-cli.loopsDone.GetChan():
		return ErrNotLoggedIn
	}
}

// applying marks the sync loop as busy modifying the store while fn runs.
func (cli *Client) applying(fn func()) {
	cli.storeApplying.Store(true)
	defer cli.storeApplying.Store(false)
	fn()
}

func (cli *Client) applyStoreWrite(write *storeWrite) {
	defer close(write.done)
	if len(write.upserts) > 0 {
		cli.State.ApplyUpserts(write.upserts)
	}
	if len(write.details) > 0 {
		cli.State.ApplyMemberDetails(write.details)
	}
}

// applyStoreWrites applies all handed over records. It must only be called by the sync loop.
func (cli *Client) applyStoreWrites() {
	for {
		write, ok := cli.storeWrites.TryGet()
		if !ok {
			return
		}
		cli.applying(func() {
			cli.applyStoreWrite(write)
		})
	}
}

type syncCheckResult struct {
	selector int
	err      error
}

// waitSyncCheck runs a sync check and applies handed over store writes while waiting for it.
func (cli *Client) waitSyncCheck(ctx context.Context) (int, error) {
	result := make(chan syncCheckResult, 1)
	go func() {
		selector, err := cli.syncCheck(ctx)
		result <- syncCheckResult{selector, err}
	}()
	for {
		cli.applyStoreWrites()
		select {
		case res := <-result:
			cli.applyStoreWrites()
			return res.selector, res.err
		case <-cli.storeWrites.Ready():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// syncLoop long-polls the sync check endpoint and pulls deltas until the session ends or the loop is stopped.
// While it runs, it's the only goroutine that modifies the store.
func (cli *Client) syncLoop(ctx context.Context) {
	cli.syncLog.Debugf("Sync loop started")
	defer func() {
		cli.syncRunning.Store(false)
		if dropped := cli.storeWrites.Clear(); dropped > 0 {
			cli.syncLog.Debugf("Dropped %d pending store writes", dropped)
		}
		cli.syncLog.Debugf("Sync loop stopped")
	}()
	var failures int
	for ctx.Err() == nil {
		selector, err := cli.waitSyncCheck(ctx)
		if ctx.Err() != nil {
			return
		}
		var respErr *ResponseError
		if errors.As(err, &respErr) && IsLogoutCode(respErr.Code) {
			cli.Metrics.incSyncCheck("logged_out")
			cli.handleLoggedOut(ctx, &events.LoggedOut{Reason: events.LogoutReasonRemote, Code: respErr.Code, Error: err})
			return
		} else if err != nil {
			failures++
			cli.Metrics.incSyncCheck("error")
			cli.syncLog.Warnf("Sync check failed (%d/%d): %v", failures, cli.SyncCheckRetries, err)
			if failures >= cli.SyncCheckRetries {
				cli.handleLoggedOut(ctx, &events.LoggedOut{Reason: events.LogoutReasonSyncFailed, Error: err})
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(cli.RetryDelay):
			}
			continue
		}
		failures = 0
		if selector == 0 {
			cli.Metrics.incSyncCheck("idle")
			continue
		}
		cli.Metrics.incSyncCheck("changed")
		if err = cli.syncWithRetries(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			evt := &events.LoggedOut{Reason: events.LogoutReasonSyncFailed, Error: err}
			if errors.As(err, &respErr) && IsLogoutCode(respErr.Code) {
				evt.Reason = events.LogoutReasonRemote
				evt.Code = respErr.Code
			}
			cli.handleLoggedOut(ctx, evt)
			return
		}
	}
}

// syncCheck asks the push endpoint whether there are new changes. A non-zero selector means sync should be called.
func (cli *Client) syncCheck(ctx context.Context) (int, error) {
	sess := cli.Session()
	resp, err := cli.doRequest(ctx, &request{
		URL: sess.URIs.Push + "/synccheck",
		Query: url.Values{
			"r":        {timestampMS()},
			"skey":     {sess.Skey},
			"sid":      {sess.Sid},
			"uin":      {strconv.FormatInt(sess.Uin, 10)},
			"deviceid": {store.NewDeviceID()},
			"synckey":  {sess.CheckKey().String()},
			"_":        {cli.nextCounter()},
		},
		Timeout: cli.SyncCheckTimeout,
		NoRetry: true,
	})
	if err != nil {
		return 0, err
	}
	body := strings.ReplaceAll(string(resp.Body), " ", "")
	match := syncCheckRegex.FindStringSubmatch(body)
	if match == nil {
		if len(body) > 100 {
			body = body[:100]
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidSyncCheck, body)
	}
	retcode, _ := strconv.Atoi(match[1])
	selector, _ := strconv.Atoi(match[2])
	if retcode != RetOK {
		return 0, &ResponseError{Code: retcode, Message: "sync check failed"}
	}
	return selector, nil
}

// syncWithRetries calls sync up to SyncRetries times. Logout codes aren't retried.
func (cli *Client) syncWithRetries(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= max(cli.SyncRetries, 1); attempt++ {
		if err = cli.syncOnce(ctx, true); err == nil {
			return nil
		}
		var respErr *ResponseError
		if ctx.Err() != nil || (errors.As(err, &respErr) && IsLogoutCode(respErr.Code)) {
			return err
		}
		cli.syncLog.Warnf("Sync failed (%d/%d): %v", attempt, cli.SyncRetries, err)
		if attempt < cli.SyncRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cli.RetryDelay):
			}
		}
	}
	return err
}

// syncOnce pulls one delta and applies it. If persist is true, the session is saved afterwards.
func (cli *Client) syncOnce(ctx context.Context, persist bool) error {
	for {
		sess := cli.Session()
		var resp syncResponse
		err := cli.sendJSON(ctx, &request{
			URL: sess.URIs.Base + "/webwxsync",
			Query: url.Values{
				"sid":         {sess.Sid},
				"skey":        {sess.Skey},
				"pass_ticket": {sess.PassTicket},
				"lang":        {cli.lang()},
			},
			Timeout: cli.SyncCheckTimeout,
			NoRetry: true,
		}, &syncRequest{
			BaseRequest: sess.BaseRequest(),
			SyncKey:     sess.SyncKey,
			RR:          ^int32(time.Now().UnixMilli()),
		}, &resp)
		if err != nil {
			return err
		}
		cli.applying(func() {
			cli.applySync(&resp)
		})
		if resp.ContinueFlag == 0 {
			break
		}
		cli.syncLog.Debugf("Server has more changes, syncing again")
	}
	if persist {
		cli.saveSession(ctx)
	}
	return nil
}
