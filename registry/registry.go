// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package registry contains the ordered handler registry that decides which handler receives an incoming message.
package registry

import (
	"slices"
	"sync"
	"sync/atomic"

	"go.mau.fi/webwx/types"
)

// Handler is a function that handles an incoming message.
// A non-nil reply is sent back to the chat the message came from.
type Handler func(msg *types.Message) (*Reply, error)

// Reply is the value a handler returns to respond to a message.
type Reply struct {
	// Type is the message type to send. Empty means MsgText.
	Type types.MessageType
	// Text is the text of a text reply.
	Text string
	// Path is the local file sent for media replies.
	Path string
}

// TextReply creates a plain text reply.
func TextReply(text string) *Reply {
	return &Reply{Type: types.MsgText, Text: text}
}

// MediaReply creates a reply that uploads and sends the file at the given path.
func MediaReply(msgType types.MessageType, path string) *Reply {
	return &Reply{Type: msgType, Path: path}
}

// Options contains the filters and execution mode of a registration.
//
// The zero value matches every non-system message in every chat, ignores messages sent by the bot itself,
// runs the handler in a new goroutine and is enabled immediately.
type Options struct {
	// Chats limits the registration to the given chats, compared by identifier.
	Chats []types.Chat
	// Kinds limits the registration to chats of the given kinds, including sub-kinds.
	// A message matches the chat filter if it matches either Chats or Kinds.
	Kinds []types.ChatKind
	// Types limits the registration to the given message types.
	// When empty, every type except MsgSystem matches.
	Types []types.MessageType

	// IncludeSelf makes the registration match messages sent by the bot account.
	IncludeSelf bool
	// Sync runs the handler on the dispatch goroutine instead of a new goroutine.
	// A slow synchronous handler delays every message after it.
	Sync bool
	// Disabled registers the handler in the disabled state.
	Disabled bool
}

// Registration is a handler registered in a Registry.
type Registration struct {
	ID      uint32
	Handler Handler
	Options Options

	enabled atomic.Bool
}

// Enabled returns whether the registration currently receives messages.
func (reg *Registration) Enabled() bool {
	return reg.enabled.Load()
}

// RunAsync returns true if the handler should be run in its own goroutine.
func (reg *Registration) RunAsync() bool {
	return !reg.Options.Sync
}

func (reg *Registration) matchesChat(chat types.Chat) bool {
	if len(reg.Options.Chats) == 0 && len(reg.Options.Kinds) == 0 {
		return true
	} else if chat == nil {
		return false
	}
	for _, filter := range reg.Options.Chats {
		if types.SameChat(filter, chat) {
			return true
		}
	}
	kind := chat.Kind()
	for _, filter := range reg.Options.Kinds {
		if kind.Is(filter) {
			return true
		}
	}
	return false
}

func (reg *Registration) matchesType(msgType types.MessageType) bool {
	if len(reg.Options.Types) == 0 {
		return msgType != types.MsgSystem
	}
	return slices.Contains(reg.Options.Types, msgType)
}

// Matches checks whether the registration accepts the given message, ignoring the enabled flag.
func (reg *Registration) Matches(msg *types.Message) bool {
	if msg.FromSelf && !reg.Options.IncludeSelf {
		return false
	}
	return reg.matchesType(msg.Type) && reg.matchesChat(msg.Chat)
}

// Registry is an append-only list of registrations.
// Later registrations take priority over earlier ones and at most one handler receives each message.
type Registry struct {
	lock          sync.RWMutex
	registrations []*Registration
	nextID        atomic.Uint32
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a handler with the given options and returns the registration.
func (r *Registry) Register(handler Handler, opts Options) *Registration {
	reg := &Registration{
		ID:      r.nextID.Add(1),
		Handler: handler,
		Options: opts,
	}
	reg.enabled.Store(!opts.Disabled)
	r.lock.Lock()
	r.registrations = append(r.registrations, reg)
	r.lock.Unlock()
	return reg
}

// Match returns the most recently registered enabled registration that accepts the message, or nil.
func (r *Registry) Match(msg *types.Message) *Registration {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for i := len(r.registrations) - 1; i >= 0; i-- {
		reg := r.registrations[i]
		if reg.Enabled() && reg.Matches(msg) {
			return reg
		}
	}
	return nil
}

// Get finds a registration by ID.
func (r *Registry) Get(id uint32) *Registration {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, reg := range r.registrations {
		if reg.ID == id {
			return reg
		}
	}
	return nil
}

// Remove removes a registration. It returns false if the ID was not found.
func (r *Registry) Remove(id uint32) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i, reg := range r.registrations {
		if reg.ID == id {
			r.registrations = slices.Delete(r.registrations, i, i+1)
			return true
		}
	}
	return false
}

func (r *Registry) setEnabled(id uint32, enabled bool) bool {
	reg := r.Get(id)
	if reg == nil {
		return false
	}
	reg.enabled.Store(enabled)
	return true
}

// Enable enables a registration. The change applies to the very next dispatched message.
func (r *Registry) Enable(id uint32) bool {
	return r.setEnabled(id, true)
}

// Disable disables a registration.
func (r *Registry) Disable(id uint32) bool {
	return r.setEnabled(id, false)
}

func (r *Registry) setAll(enabled bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, reg := range r.registrations {
		reg.enabled.Store(enabled)
	}
}

// EnableAll enables every registration.
func (r *Registry) EnableAll() {
	r.setAll(true)
}

// DisableAll disables every registration.
func (r *Registry) DisableAll() {
	r.setAll(false)
}

func (r *Registry) filter(enabled bool) []*Registration {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]*Registration, 0, len(r.registrations))
	for _, reg := range r.registrations {
		if reg.Enabled() == enabled {
			out = append(out, reg)
		}
	}
	return out
}

// Enabled returns the enabled registrations in registration order.
func (r *Registry) Enabled() []*Registration {
	return r.filter(true)
}

// Disabled returns the disabled registrations in registration order.
func (r *Registry) Disabled() []*Registration {
	return r.filter(false)
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.registrations)
}
