// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"net/http"
	"net/url"

	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/util/fingerprint"
)

// requestKind 区分请求的用途，用于设置不同的 Accept/Sec-Fetch 头
type requestKind int

const (
	requestKindAPI requestKind = iota
	requestKindPage
	requestKindMedia
)

// lang 返回请求参数中使用的语言，如 zh_CN
func (cli *Client) lang() string {
	if lang := cli.Session().Lang; lang != "" {
		return lang
	} else if cli.fingerprint == nil {
		return store.DefaultLang
	}
	return cli.fingerprint.Lang()
}

// originOf 返回 URL 的 scheme://host 部分
func originOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// setBrowserHeaders 为 HTTP 请求设置完整的浏览器头
func (cli *Client) setBrowserHeaders(req *http.Request, kind requestKind) {
	fingerprint.ApplyFingerprint(req.Header, cli.fingerprint)

	// Referer 固定为网页版首页，跨域请求（login/file/webpush 子域名）也使用它
	referer := cli.Session().URIs.Base
	if referer == "" {
		referer = cli.StartPage
	}
	origin := originOf(referer)
	if origin != "" {
		req.Header.Set("Referer", origin+"/")
		if req.Method == http.MethodPost {
			req.Header.Set("Origin", origin)
		}
	}
	// 真实浏览器会发送，响应解码在 readBody 中处理
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	switch kind {
	case requestKindPage:
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Site", "none")
	case requestKindMedia:
		req.Header.Set("Accept", "*/*")
		req.Header.Set("Sec-Fetch-Dest", "empty")
		req.Header.Set("Sec-Fetch-Mode", "cors")
		req.Header.Set("Sec-Fetch-Site", "same-site")
	default:
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("Sec-Fetch-Dest", "empty")
		req.Header.Set("Sec-Fetch-Mode", "cors")
		if origin != "" && originOf(req.URL.String()) == origin {
			req.Header.Set("Sec-Fetch-Site", "same-origin")
		} else {
			req.Header.Set("Sec-Fetch-Site", "same-site")
		}
	}
}
