// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package puid assigns chats a pseudo-identifier that stays the same across sessions.
//
// The server rotates chat identifiers on every login, so the map remembers the identifier, stable id,
// remark name and caption (nickname, sex, province, city) of every chat it has seen, and reuses the
// pseudo-identifier of the first record that matches.
package puid

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/elliotchance/orderedmap/v3"

	"go.mau.fi/webwx/types"
)

// Caption is the fuzzy part of a chat's identity.
type Caption struct {
	NickName string    `json:"nick_name"`
	Sex      types.Sex `json:"sex,omitempty"`
	Province string    `json:"province,omitempty"`
	City     string    `json:"city,omitempty"`
}

// CaptionOf extracts the caption of a chat.
func CaptionOf(chat types.Chat) Caption {
	caption := Caption{NickName: chat.Base().NickName}
	if user := types.AsUser(chat); user != nil {
		caption.Sex = user.Sex
		caption.Province = user.Province
		caption.City = user.City
	}
	return caption
}

// MatchCaptions checks whether a new caption may belong to the same chat as an old one.
// The new caption must have a nickname, and every field set in both captions must be equal.
func MatchCaptions(old, new Caption) bool {
	if new.NickName == "" {
		return false
	}
	if old.NickName != "" && old.NickName != new.NickName {
		return false
	} else if old.Sex != types.SexUnknown && new.Sex != types.SexUnknown && old.Sex != new.Sex {
		return false
	} else if old.Province != "" && new.Province != "" && old.Province != new.Province {
		return false
	} else if old.City != "" && new.City != "" && old.City != new.City {
		return false
	}
	return true
}

// MergeCaptions combines two captions, preferring the non-empty fields of the new one.
func MergeCaptions(old, new Caption) Caption {
	merged := new
	if merged.NickName == "" {
		merged.NickName = old.NickName
	}
	if merged.Sex == types.SexUnknown {
		merged.Sex = old.Sex
	}
	if merged.Province == "" {
		merged.Province = old.Province
	}
	if merged.City == "" {
		merged.City = old.City
	}
	return merged
}

// Map is the persistent pseudo-identifier map.
type Map struct {
	Path string

	lock        sync.Mutex
	userNames   *twoWay[string]
	stableIDs   *twoWay[string]
	remarkNames *twoWay[string]
	captions    *twoWay[Caption]
}

// New creates an empty map that is saved to the given path. Call Load to read existing data.
func New(path string) *Map {
	return &Map{
		Path:        path,
		userNames:   newTwoWay[string](),
		stableIDs:   newTwoWay[string](),
		remarkNames: newTwoWay[string](),
		captions:    newTwoWay[Caption](),
	}
}

// Len returns the number of known pseudo-identifiers.
func (m *Map) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.userNames.len()
}

// Get returns the pseudo-identifier of the chat, creating one if the chat hasn't been seen before.
// Chats without an identifier or nickname don't get one.
func (m *Map) Get(chat types.Chat) string {
	base := chat.Base()
	if base.Username == "" || base.NickName == "" {
		return ""
	}
	var stableID string
	if user := types.AsUser(chat); user != nil {
		stableID = user.StableID()
	}
	caption := CaptionOf(chat)

	m.lock.Lock()
	defer m.lock.Unlock()

	keys := [3]string{base.Username, stableID, base.RemarkName}
	maps := [3]*twoWay[string]{m.userNames, m.stableIDs, m.remarkNames}
	var puid string
	for i, key := range keys {
		if key == "" {
			continue
		}
		if puid = maps[i].get(key); puid != "" {
			break
		}
	}
	if puid == "" {
		// Oldest caption first, so the same history always resolves to the same puid
		for old, value := range m.captions.forward.AllFromFront() {
			if MatchCaptions(old, caption) {
				puid = value
				break
			}
		}
	}

	if puid != "" {
		if old, ok := m.captions.keyOf(puid); ok {
			caption = MergeCaptions(old, caption)
		}
	} else {
		puid = base.Username
		if len(puid) > 8 {
			puid = puid[len(puid)-8:]
		}
	}
	for i, key := range keys {
		if key != "" {
			maps[i].set(key, puid)
		}
	}
	m.captions.set(caption, puid)
	return puid
}

type captionEntry struct {
	Caption Caption `json:"caption"`
	PUID    string  `json:"puid"`
}

type mapData struct {
	UserNames   map[string]string `json:"user_names"`
	StableIDs   map[string]string `json:"stable_ids"`
	RemarkNames map[string]string `json:"remark_names"`
	Captions    []captionEntry    `json:"captions"`
}

// Load reads the map from its path. A missing file is not an error.
func (m *Map) Load() error {
	data, err := os.ReadFile(m.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read puid map: %w", err)
	}
	var parsed mapData
	if err = json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse puid map: %w", err)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.userNames = twoWayFrom(parsed.UserNames)
	m.stableIDs = twoWayFrom(parsed.StableIDs)
	m.remarkNames = twoWayFrom(parsed.RemarkNames)
	m.captions = newTwoWay[Caption]()
	for _, entry := range parsed.Captions {
		m.captions.set(entry.Caption, entry.PUID)
	}
	return nil
}

// Save writes the map to its path.
func (m *Map) Save() error {
	m.lock.Lock()
	parsed := mapData{
		UserNames:   m.userNames.export(),
		StableIDs:   m.stableIDs.export(),
		RemarkNames: m.remarkNames.export(),
		Captions:    make([]captionEntry, 0, m.captions.len()),
	}
	for caption, puid := range m.captions.forward.AllFromFront() {
		parsed.Captions = append(parsed.Captions, captionEntry{Caption: caption, PUID: puid})
	}
	m.lock.Unlock()

	data, err := json.Marshal(&parsed)
	if err != nil {
		return fmt.Errorf("failed to marshal puid map: %w", err)
	}
	if dir := filepath.Dir(m.Path); dir != "" {
		if err = os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create puid map directory: %w", err)
		}
	}
	tmp := m.Path + ".tmp"
	if err = os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write puid map: %w", err)
	}
	return os.Rename(tmp, m.Path)
}

// twoWay is an insertion-ordered map in which both keys and values are unique.
type twoWay[K comparable] struct {
	forward  *orderedmap.OrderedMap[K, string]
	backward map[string]K
}

func newTwoWay[K comparable]() *twoWay[K] {
	return &twoWay[K]{forward: orderedmap.NewOrderedMap[K, string](), backward: make(map[string]K)}
}

func twoWayFrom(data map[string]string) *twoWay[string] {
	tw := newTwoWay[string]()
	for key, value := range data {
		tw.set(key, value)
	}
	return tw
}

func (tw *twoWay[K]) len() int {
	return tw.forward.Len()
}

func (tw *twoWay[K]) get(key K) string {
	value, _ := tw.forward.Get(key)
	return value
}

func (tw *twoWay[K]) keyOf(value string) (K, bool) {
	key, ok := tw.backward[value]
	return key, ok
}

func (tw *twoWay[K]) set(key K, value string) {
	if existing, ok := tw.forward.Get(key); ok {
		if existing == value {
			return
		}
		delete(tw.backward, existing)
	}
	if oldKey, ok := tw.backward[value]; ok {
		tw.forward.Delete(oldKey)
	}
	tw.forward.Set(key, value)
	tw.backward[value] = key
}

func (tw *twoWay[K]) export() map[string]string {
	out := make(map[string]string, tw.forward.Len())
	for key, value := range tw.forward.AllFromFront() {
		out[fmt.Sprint(key)] = value
	}
	return out
}
