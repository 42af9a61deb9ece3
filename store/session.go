// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"strconv"
	"strings"

	"go.mau.fi/util/random"
)

// Endpoints contains the base URLs derived from the login redirect host.
type Endpoints struct {
	// Base is the cgi-bin base, e.g. https://wx2.qq.com/cgi-bin/mmwebwx-bin
	Base  string `json:"base"`
	Login string `json:"login"`
	File  string `json:"file"`
	Push  string `json:"push"`
}

// IsEmpty returns true if no redirect has been processed yet.
func (e Endpoints) IsEmpty() bool {
	return e.Base == ""
}

// SyncKeyItem is one cursor of a sync key.
type SyncKeyItem struct {
	Key int   `json:"Key"`
	Val int64 `json:"Val"`
}

// SyncKey is an opaque sync cursor returned by the init and sync endpoints.
type SyncKey struct {
	Count int           `json:"Count"`
	List  []SyncKeyItem `json:"List"`
}

// IsEmpty returns true if the key has no cursors.
func (sk SyncKey) IsEmpty() bool {
	return len(sk.List) == 0
}

// String formats the key as expected by the synccheck endpoint: Key_Val pairs joined by |.
func (sk SyncKey) String() string {
	parts := make([]string, len(sk.List))
	for i, item := range sk.List {
		parts[i] = strconv.Itoa(item.Key) + "_" + strconv.FormatInt(item.Val, 10)
	}
	return strings.Join(parts, "|")
}

// BaseRequest is included in the body of every authenticated POST request.
type BaseRequest struct {
	Uin      int64  `json:"Uin"`
	Sid      string `json:"Sid"`
	Skey     string `json:"Skey"`
	DeviceID string `json:"DeviceID"`
}

// Session contains the authentication tokens and sync cursors of a logged-in session.
type Session struct {
	URIs       Endpoints `json:"uris"`
	Uin        int64     `json:"uin"`
	Sid        string    `json:"sid"`
	Skey       string    `json:"skey"`
	PassTicket string    `json:"pass_ticket"`
	GrayScale  int       `json:"grayscale"`

	SyncKey      SyncKey `json:"sync_key"`
	SyncCheckKey SyncKey `json:"sync_check_key"`
	// Lang is the lang parameter sent to the web endpoints, e.g. zh_CN.
	Lang string `json:"lang"`
}

// IsAuthenticated returns true if the session has the tokens needed for authenticated requests.
func (s Session) IsAuthenticated() bool {
	return s.Sid != "" && s.Uin != 0 && !s.URIs.IsEmpty()
}

// CheckKey returns the key that should be sent to synccheck.
func (s Session) CheckKey() SyncKey {
	if !s.SyncCheckKey.IsEmpty() {
		return s.SyncCheckKey
	}
	return s.SyncKey
}

// BaseRequest builds the base request with a fresh device ID.
func (s Session) BaseRequest() BaseRequest {
	return BaseRequest{
		Uin:      s.Uin,
		Sid:      s.Sid,
		Skey:     s.Skey,
		DeviceID: NewDeviceID(),
	}
}

// NewDeviceID generates a random device ID in the format the web client uses: e followed by 15 digits.
func NewDeviceID() string {
	return "e" + random.StringCharset(15, "0123456789")
}
