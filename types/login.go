// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

// LoginState is a state of the login state machine.
type LoginState int32

const (
	LoginNoSession LoginState = iota
	LoginAwaitingUUID
	LoginAwaitingScan
	LoginAwaitingPhoneConfirm
	LoginAuthenticated
	// Terminal failure states.
	LoginUUIDExpired
	LoginRejected
)

var loginStateNames = map[LoginState]string{
	LoginNoSession:            "no session",
	LoginAwaitingUUID:         "awaiting uuid",
	LoginAwaitingScan:         "awaiting scan",
	LoginAwaitingPhoneConfirm: "awaiting phone confirmation",
	LoginAuthenticated:        "authenticated",
	LoginUUIDExpired:          "uuid expired",
	LoginRejected:             "rejected",
}

func (ls LoginState) String() string {
	if name, ok := loginStateNames[ls]; ok {
		return name
	}
	return "unknown"
}

// LoginStatus codes returned by the login status poll (window.code).
const (
	LoginStatusSuccess = 200
	LoginStatusScanned = 201
	LoginStatusExpired = 400
	LoginStatusWaiting = 408
)
