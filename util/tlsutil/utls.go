// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package tlsutil 提供模拟浏览器 TLS 指纹的 http.RoundTripper
package tlsutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// GetClientHelloID 根据浏览器名称获取对应的 uTLS ClientHelloID
func GetClientHelloID(browser string) utls.ClientHelloID {
	switch strings.ToLower(browser) {
	case "firefox":
		return utls.HelloFirefox_120
	case "safari":
		return utls.HelloSafari_16_0
	case "edge", "opera":
		// 基于 Chromium，使用 Chrome 指纹即可
		return utls.HelloChrome_120
	default:
		return utls.HelloChrome_120
	}
}

// DialContextFunc 建立底层 TCP 连接的函数，可用于接入代理
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewUTLSTransport 创建一个使用 uTLS 握手的 http.Transport
// 预设的 ClientHello 会声明 h2，这里强制改为 http/1.1，否则 net/http 无法处理协商结果
func NewUTLSTransport(clientHelloID utls.ClientHelloID, baseTransport *http.Transport, dial DialContextFunc) *http.Transport {
	var transport *http.Transport
	if baseTransport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	} else {
		transport = baseTransport.Clone()
	}
	if dial == nil {
		dialer := &net.Dialer{}
		dial = dialer.DialContext
	}
	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		uConn, err := handshake(ctx, conn, host, clientHelloID)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return uConn, nil
	}
	return transport
}

func handshake(ctx context.Context, conn net.Conn, host string, clientHelloID utls.ClientHelloID) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(clientHelloID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client hello spec: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	uConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloCustom)
	if err = uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("failed to apply client hello preset: %w", err)
	}
	if err = uConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return uConn, nil
}
