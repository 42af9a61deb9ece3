// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.mau.fi/webwx/registry"
	"go.mau.fi/webwx/types"
	"go.mau.fi/webwx/types/events"
)

// chatResolver resolves identifiers through the session store and remembers the ones it had to
// replace with placeholders.
type chatResolver struct {
	cli            *Client
	missingChats   []string
	missingMembers map[string][]string
}

var _ types.ChatResolver = (*chatResolver)(nil)

func (cr *chatResolver) ResolveChat(username string) types.Chat {
	if chat := cr.cli.State.Chat(username); chat != nil {
		return chat
	}
	if username != "" {
		cr.missingChats = append(cr.missingChats, username)
	}
	return types.NewPlaceholder(username)
}

func (cr *chatResolver) ResolveMember(group *types.Group, username string) *types.Member {
	if member := group.Member(username); member != nil {
		return member
	}
	if cr.missingMembers == nil {
		cr.missingMembers = make(map[string][]string)
	}
	cr.missingMembers[group.ID()] = append(cr.missingMembers[group.ID()], username)
	member := types.NewMember(&types.RawContact{UserName: username}, group.ID())
	member.Placeholder = true
	return member
}

// dispatchLoop takes messages from the ingestion queue and dispatches them. It stops once the
// queue is empty and the client is no longer logged in.
func (cli *Client) dispatchLoop(ctx context.Context) {
	cli.recvLog.Debugf("Dispatch loop started")
	defer cli.recvLog.Debugf("Dispatch loop stopped")
	for {
		raw, ok := cli.queue.Get(cli.DispatchPollInterval)
		if !ok {
			if ctx.Err() != nil || !cli.IsLoggedIn() {
				return
			}
			continue
		}
		cli.Metrics.setQueueLength(cli.queue.Len())
		cli.handleRawMessage(ctx, raw)
	}
}

func (cli *Client) handleRawMessage(ctx context.Context, raw *types.RawMessage) {
	resolver := &chatResolver{cli: cli}
	msg := types.ParseMessage(raw, cli.State.SelfUsername(), resolver, time.Now())
	if len(resolver.missingChats) > 0 || len(resolver.missingMembers) > 0 {
		go cli.fetchUnknown(context.WithoutCancel(ctx), resolver.missingChats, resolver.missingMembers)
	}

	if msg.Type == types.MsgRecalled && msg.RecalledID != 0 {
		if recalled := cli.History.GetMessage(msg.RecalledID); recalled != nil {
			cli.recvLog.Debugf("Message %d recalled: %s", msg.RecalledID, recalled)
		}
	}
	if msg.Type != types.MsgSystem {
		cli.History.Add(msg)
	}
	cli.Metrics.incReceived(string(msg.Type))
	cli.recvLog.Debugf("Received %s", msg)
	cli.dispatchEvent(&events.Message{Message: msg})

	if cli.AutoMarkAsRead && !msg.FromSelf && msg.Type != types.MsgSystem && msg.Chat != nil {
		go func() {
			if err := cli.MarkAsRead(ctx, msg.Chat); err != nil {
				cli.recvLog.Debugf("Failed to mark %s as read: %v", msg.Chat.ID(), err)
			}
		}()
	}

	reg := cli.Registry.Match(msg)
	if reg == nil {
		return
	}
	if reg.RunAsync() {
		go cli.runHandler(ctx, reg, msg)
	} else {
		cli.runHandler(ctx, reg, msg)
	}
}

// runHandler calls a registered handler and sends its reply. Panics are recovered, so a broken
// handler never stops the dispatch loop.
func (cli *Client) runHandler(ctx context.Context, reg *registry.Registration, msg *types.Message) {
	defer func() {
		if err := recover(); err != nil {
			cli.recvLog.Errorf("Handler #%d panicked while handling %s: %v\n%s", reg.ID, msg.ServerID, err, debug.Stack())
			cli.Metrics.incHandlerFailure("panic")
			cli.dispatchEvent(&events.HandlerError{
				RegistrationID: reg.ID,
				Message:        msg,
				Error:          fmt.Errorf("handler panicked: %v", err),
				Panicked:       true,
			})
		}
	}()
	reply, err := reg.Handler(msg)
	if err != nil {
		cli.recvLog.Errorf("Handler #%d failed to handle %s: %v", reg.ID, msg.ServerID, err)
		cli.Metrics.incHandlerFailure("error")
		cli.dispatchEvent(&events.HandlerError{RegistrationID: reg.ID, Message: msg, Error: err})
		return
	} else if reply == nil {
		return
	}
	if _, err = cli.Reply(ctx, msg.Chat, reply); err != nil {
		cli.recvLog.Errorf("Failed to send reply of handler #%d to %s: %v", reg.ID, msg.Chat.ID(), err)
	}
}
