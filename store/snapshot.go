// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"go.mau.fi/webwx/types"
)

// SnapshotVersion is the current version of the persisted session format.
// Snapshots with any other version are discarded.
const SnapshotVersion = 1

// ErrSnapshotVersionMismatch is returned by DecodeSnapshot if the snapshot was written by a different version.
var ErrSnapshotVersionMismatch = errors.New("snapshot version mismatch")

// ErrInvalidSnapshot is returned by DecodeSnapshot if the data can't be parsed at all.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Cookie is a persisted session cookie.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitzero"`
	// URL is the URL the cookie was received for, used to put it back into a cookie jar.
	URL string `json:"url"`
}

// HTTPCookie converts the cookie back into a net/http cookie.
func (c *Cookie) HTTPCookie() *http.Cookie {
	return &http.Cookie{
		Name:    c.Name,
		Value:   c.Value,
		Domain:  c.Domain,
		Path:    c.Path,
		Expires: c.Expires,
	}
}

// Snapshot is the persisted form of a session: tokens, cookies and the contact cache.
type Snapshot struct {
	Version     int                 `json:"version"`
	SavedAt     time.Time           `json:"saved_at"`
	Session     Session             `json:"session"`
	Cookies     []Cookie            `json:"cookies"`
	Self        types.RawContact    `json:"self"`
	Chats       []types.RawContact  `json:"chats"`
	Members     []types.RawContact  `json:"members"`
	Fingerprint *BrowserFingerprint `json:"fingerprint,omitempty"`
}

// EncodeSnapshot serializes the snapshot with the current version tag.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	snap.Version = SnapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot. If the version tag doesn't match SnapshotVersion,
// ErrSnapshotVersionMismatch is returned and the data should be treated as absent.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidSnapshot)
	}
	if version := gjson.GetBytes(data, "version").Int(); version != SnapshotVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrSnapshotVersionMismatch, version, SnapshotVersion)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return &snap, nil
}

// Snapshot exports the contents of the state into a new snapshot. The session, cookies and fingerprint are left empty.
func (s *State) Snapshot() *Snapshot {
	self, chats, members := s.Export()
	return &Snapshot{
		Version: SnapshotVersion,
		SavedAt: time.Now(),
		Self:    self,
		Chats:   chats,
		Members: members,
	}
}

// Restore replaces the contents of the state with the snapshot's contact cache.
// It returns false if the snapshot is nil or has a different version.
func (s *State) Restore(snap *Snapshot) bool {
	if snap == nil || snap.Version != SnapshotVersion {
		return false
	}
	s.Import(snap.Self, snap.Chats, snap.Members)
	return true
}
