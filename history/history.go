// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package history contains a bounded in-memory buffer of received and sent messages.
package history

import (
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap/v3"

	"go.mau.fi/webwx/types"
)

// DefaultSize is the number of records kept when no size is given.
const DefaultSize = 200

// Buffer keeps the most recent messages, evicting the oldest one when full.
type Buffer struct {
	lock    sync.RWMutex
	size    int
	seq     uint64
	records *orderedmap.OrderedMap[uint64, types.Record]
	byID    map[int64]uint64
}

// New creates a history buffer. A size of zero means DefaultSize, a negative size disables history.
func New(size int) *Buffer {
	if size == 0 {
		size = DefaultSize
	}
	return &Buffer{
		size:    size,
		records: orderedmap.NewOrderedMap[uint64, types.Record](),
		byID:    make(map[int64]uint64),
	}
}

// Add appends a record to the buffer.
func (b *Buffer) Add(rec types.Record) {
	if b == nil || b.size < 0 || rec == nil {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	for b.records.Len() >= b.size {
		oldest := b.records.Front()
		if id := oldest.Value.GetID(); b.byID[id] == oldest.Key {
			delete(b.byID, id)
		}
		b.records.Delete(oldest.Key)
	}
	b.seq++
	b.records.Set(b.seq, rec)
	if id := rec.GetID(); id != 0 {
		b.byID[id] = b.seq
	}
}

// Get finds a record by message ID.
func (b *Buffer) Get(id int64) types.Record {
	if b == nil {
		return nil
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	key, ok := b.byID[id]
	if !ok {
		return nil
	}
	rec, _ := b.records.Get(key)
	return rec
}

// GetMessage finds a received message by ID.
func (b *Buffer) GetMessage(id int64) *types.Message {
	msg, _ := b.Get(id).(*types.Message)
	return msg
}

// Len returns the number of records currently kept.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.records.Len()
}

// All returns every record from oldest to newest.
func (b *Buffer) All() []types.Record {
	if b == nil {
		return nil
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	out := make([]types.Record, 0, b.records.Len())
	for rec := range b.records.Values() {
		out = append(out, rec)
	}
	return out
}

// Query contains the filters for Search. Empty fields match everything.
type Query struct {
	// Keywords must all appear in the record text (case-insensitive).
	Keywords string
	ChatID   string
	Type     types.MessageType
}

func (q *Query) matches(rec types.Record) bool {
	if q.ChatID != "" && rec.GetChatID() != q.ChatID {
		return false
	} else if q.Type != "" && rec.GetType() != q.Type {
		return false
	}
	if q.Keywords == "" {
		return true
	}
	text := strings.ToLower(rec.GetText())
	for _, kw := range strings.Fields(strings.ToLower(q.Keywords)) {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

// Search returns the records matching the query from oldest to newest.
func (b *Buffer) Search(q Query) []types.Record {
	if b == nil {
		return nil
	}
	b.lock.RLock()
	defer b.lock.RUnlock()
	var out []types.Record
	for rec := range b.records.Values() {
		if q.matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Clear removes every record.
func (b *Buffer) Clear() {
	if b == nil {
		return
	}
	b.lock.Lock()
	b.records = orderedmap.NewOrderedMap[uint64, types.Record]()
	b.byID = make(map[int64]uint64)
	b.lock.Unlock()
}
