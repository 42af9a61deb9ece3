// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package tlsutil

import (
	"testing"

	utls "github.com/refraction-networking/utls"
	"github.com/stretchr/testify/assert"
)

func TestGetClientHelloID(t *testing.T) {
	assert.Equal(t, utls.HelloFirefox_120, GetClientHelloID("Firefox"))
	assert.Equal(t, utls.HelloSafari_16_0, GetClientHelloID("safari"))
	assert.Equal(t, utls.HelloChrome_120, GetClientHelloID("Edge"))
	assert.Equal(t, utls.HelloChrome_120, GetClientHelloID(""))
}

func TestNewUTLSTransport(t *testing.T) {
	transport := NewUTLSTransport(utls.HelloChrome_120, nil, nil)
	assert.NotNil(t, transport.DialTLSContext)
	assert.False(t, transport.ForceAttemptHTTP2)
}
