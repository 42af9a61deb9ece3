// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"encoding/json"
)

// BuffString is a string that the server sometimes wraps as {"Buff": "..."}.
type BuffString string

func (b *BuffString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Buff string `json:"Buff"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*b = BuffString(wrapped.Buff)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*b = BuffString(str)
	return nil
}

// RawMember is an entry in the MemberList of a group record. It only contains the thin
// in-group view of a member; full details come from a batch contact fetch.
type RawMember struct {
	Uin             int64  `json:"Uin"`
	UserName        string `json:"UserName"`
	NickName        string `json:"NickName"`
	AttrStatus      int64  `json:"AttrStatus"`
	PYInitial       string `json:"PYInitial"`
	PYQuanPin       string `json:"PYQuanPin"`
	RemarkPYInitial string `json:"RemarkPYInitial"`
	RemarkPYQuanPin string `json:"RemarkPYQuanPin"`
	MemberStatus    int    `json:"MemberStatus"`
	DisplayName     string `json:"DisplayName"`
	KeyWord         string `json:"KeyWord"`
}

// Contact converts the member entry into a contact record shaped like a member.
func (rm *RawMember) Contact() RawContact {
	status := rm.MemberStatus
	return RawContact{
		Uin:             rm.Uin,
		UserName:        rm.UserName,
		NickName:        rm.NickName,
		AttrStatus:      rm.AttrStatus,
		PYInitial:       rm.PYInitial,
		PYQuanPin:       rm.PYQuanPin,
		RemarkPYInitial: rm.RemarkPYInitial,
		RemarkPYQuanPin: rm.RemarkPYQuanPin,
		MemberStatus:    &status,
		DisplayName:     rm.DisplayName,
		KeyWord:         rm.KeyWord,
	}
}

// RawContact is a chat record as returned by the init, contact list, batch contact and sync endpoints.
type RawContact struct {
	Uin              int64       `json:"Uin"`
	UserName         string      `json:"UserName"`
	NickName         string      `json:"NickName"`
	HeadImgURL       string      `json:"HeadImgUrl"`
	ContactFlag      int         `json:"ContactFlag"`
	MemberCount      int         `json:"MemberCount"`
	MemberList       []RawMember `json:"MemberList"`
	RemarkName       string      `json:"RemarkName"`
	HideInputBarFlag int         `json:"HideInputBarFlag"`
	Sex              int         `json:"Sex"`
	Signature        string      `json:"Signature"`
	VerifyFlag       int         `json:"VerifyFlag"`
	OwnerUin         int64       `json:"OwnerUin"`
	PYInitial        string      `json:"PYInitial"`
	PYQuanPin        string      `json:"PYQuanPin"`
	RemarkPYInitial  string      `json:"RemarkPYInitial"`
	RemarkPYQuanPin  string      `json:"RemarkPYQuanPin"`
	StarFriend       int         `json:"StarFriend"`
	AppAccountFlag   int         `json:"AppAccountFlag"`
	Statues          int         `json:"Statues"`
	AttrStatus       int64       `json:"AttrStatus"`
	Province         string      `json:"Province"`
	City             string      `json:"City"`
	Alias            string      `json:"Alias"`
	SnsFlag          int         `json:"SnsFlag"`
	UniFriend        int         `json:"UniFriend"`
	DisplayName      string      `json:"DisplayName"`
	ChatRoomID       int64       `json:"ChatRoomId"`
	KeyWord          string      `json:"KeyWord"`
	EncryChatRoomID  string      `json:"EncryChatRoomId"`
	IsOwner          int         `json:"IsOwner"`
	ChatRoomOwner    string      `json:"ChatRoomOwner,omitempty"`
	MemberStatus     *int        `json:"MemberStatus,omitempty"`
}

// MergeFrom copies every non-empty scalar field of src into rc. The member list and the
// identifier are left untouched.
func (rc *RawContact) MergeFrom(src *RawContact) {
	if src == nil {
		return
	}
	mergeInt64(&rc.Uin, src.Uin)
	mergeString(&rc.NickName, src.NickName)
	mergeString(&rc.HeadImgURL, src.HeadImgURL)
	mergeInt(&rc.ContactFlag, src.ContactFlag)
	mergeString(&rc.RemarkName, src.RemarkName)
	mergeInt(&rc.Sex, src.Sex)
	mergeString(&rc.Signature, src.Signature)
	mergeInt(&rc.VerifyFlag, src.VerifyFlag)
	mergeString(&rc.PYInitial, src.PYInitial)
	mergeString(&rc.PYQuanPin, src.PYQuanPin)
	mergeString(&rc.RemarkPYInitial, src.RemarkPYInitial)
	mergeString(&rc.RemarkPYQuanPin, src.RemarkPYQuanPin)
	mergeInt(&rc.StarFriend, src.StarFriend)
	mergeInt(&rc.AppAccountFlag, src.AppAccountFlag)
	mergeInt64(&rc.AttrStatus, src.AttrStatus)
	mergeString(&rc.Province, src.Province)
	mergeString(&rc.City, src.City)
	mergeString(&rc.Alias, src.Alias)
	mergeInt(&rc.SnsFlag, src.SnsFlag)
	mergeInt(&rc.UniFriend, src.UniFriend)
	mergeString(&rc.DisplayName, src.DisplayName)
	mergeString(&rc.KeyWord, src.KeyWord)
	mergeString(&rc.EncryChatRoomID, src.EncryChatRoomID)
	mergeInt64(&rc.ChatRoomID, src.ChatRoomID)
	mergeInt(&rc.MemberCount, src.MemberCount)
	mergeInt(&rc.HideInputBarFlag, src.HideInputBarFlag)
	mergeInt(&rc.Statues, src.Statues)
	mergeInt64(&rc.OwnerUin, src.OwnerUin)
	mergeInt(&rc.IsOwner, src.IsOwner)
	mergeString(&rc.ChatRoomOwner, src.ChatRoomOwner)
	if src.MemberStatus != nil {
		status := *src.MemberStatus
		rc.MemberStatus = &status
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

func mergeInt64(dst *int64, src int64) {
	if src != 0 {
		*dst = src
	}
}

// Profile is the self-profile delta included in sync responses.
type Profile struct {
	BitFlag           int        `json:"BitFlag"`
	UserName          BuffString `json:"UserName"`
	NickName          BuffString `json:"NickName"`
	BindUin           int64      `json:"BindUin"`
	BindEmail         BuffString `json:"BindEmail"`
	BindMobile        BuffString `json:"BindMobile"`
	Status            int        `json:"Status"`
	Sex               int        `json:"Sex"`
	PersonalCard      int        `json:"PersonalCard"`
	Alias             string     `json:"Alias"`
	HeadImgUpdateFlag int        `json:"HeadImgUpdateFlag"`
	HeadImgURL        string     `json:"HeadImgUrl"`
	Signature         string     `json:"Signature"`
}

// ApplyTo merges the non-empty profile values into the given self record.
func (p *Profile) ApplyTo(self *RawContact) {
	if p == nil || self == nil {
		return
	}
	mergeString(&self.UserName, string(p.UserName))
	mergeString(&self.NickName, string(p.NickName))
	mergeInt(&self.Sex, p.Sex)
	mergeString(&self.Alias, p.Alias)
	mergeString(&self.HeadImgURL, p.HeadImgURL)
	mergeString(&self.Signature, p.Signature)
}
