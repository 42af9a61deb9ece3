// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"errors"
	"fmt"

	"go.mau.fi/webwx/appstate"
)

// Miscellaneous errors
var (
	ErrClientIsNil          = errors.New("client is nil")
	ErrNotLoggedIn          = errors.New("the client is not logged in")
	ErrAlreadyLoggedIn      = errors.New("the client is already logged in")
	ErrLoginInProgress      = errors.New("login is already in progress")
	ErrLoginRejectedLocally = errors.New("login was rejected by PreLoginCallback")
	ErrTooFewGroupMembers   = appstate.ErrTooFewMembers
	ErrUnknownChat          = errors.New("unknown chat")
	ErrNoUUID               = errors.New("server didn't return a login uuid")
	ErrInvalidSyncCheck     = errors.New("unexpected synccheck response")
	ErrInvalidLoginRedirect = errors.New("unexpected login redirect response")
	ErrMediaNotAvailable    = errors.New("message doesn't have downloadable media")
	ErrUnsupportedSendType  = errors.New("unsupported message type for sending")
)

// ErrResponse is the base error for all errors returned by ResponseError.Is.
var ErrResponse = errors.New("error response from server")

// Common values of BaseResponse.Ret
const (
	RetOK          = 0
	RetTicketError = -14
	RetLoggedOut   = 1100
	RetLoggedOut2  = 1101
	RetLoggedOut3  = 1102
	RetTooFrequent = 1205
)

// IsLogoutCode returns true if the given synccheck retcode or BaseResponse code means the session is gone.
func IsLogoutCode(code int) bool {
	return code >= RetLoggedOut && code <= RetLoggedOut3
}

// ResponseError is returned when the server responds with a non-zero BaseResponse.Ret,
// or a login step returns an unexpected status code.
type ResponseError struct {
	Code    int
	Message string
}

func (re *ResponseError) Error() string {
	if re.Message != "" {
		return fmt.Sprintf("server returned error %d: %s", re.Code, re.Message)
	}
	return fmt.Sprintf("server returned error %d", re.Code)
}

func (re *ResponseError) Is(other error) bool {
	if other == ErrResponse {
		return true
	}
	otherRE, ok := other.(*ResponseError)
	return ok && otherRE.Code == re.Code
}

// HTTPError is returned when the server responds with a non-2xx status code.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
}

func (he *HTTPError) Error() string {
	return fmt.Sprintf("%s %s returned HTTP %d", he.Method, he.URL, he.StatusCode)
}

// Retryable returns true for timeouts and server errors.
func (he *HTTPError) Retryable() bool {
	return he.StatusCode == 408 || he.StatusCode >= 500
}
