// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fingerprint

import (
	"net/http"
	"strings"

	"go.mau.fi/webwx/store"
)

// ApplyFingerprint 把浏览器指纹应用到请求头
func ApplyFingerprint(header http.Header, fp *store.BrowserFingerprint) {
	if header == nil {
		return
	}
	if fp == nil || fp.UserAgent == "" {
		header.Set("User-Agent", store.DefaultUserAgent)
	} else {
		header.Set("User-Agent", fp.UserAgent)
	}
	header.Set("Accept-Language", AcceptLanguage(fp))

	// Chromium 系浏览器会附带 Client Hints
	if fp != nil && isChromium(fp.Browser) {
		header.Set("Sec-Ch-Ua-Platform", `"`+platformHint(fp.OSName)+`"`)
		header.Set("Sec-Ch-Ua-Mobile", "?0")
	} else {
		header.Del("Sec-Ch-Ua-Platform")
		header.Del("Sec-Ch-Ua-Mobile")
	}
}

// AcceptLanguage 生成 Accept-Language 头，如 zh-CN,zh;q=0.9,en;q=0.8
func AcceptLanguage(fp *store.BrowserFingerprint) string {
	if fp == nil || fp.LocaleLanguage == "" {
		return "zh-CN,zh;q=0.9,en;q=0.8"
	}
	lang := fp.LocaleLanguage
	tag := lang
	if fp.LocaleCountry != "" {
		tag = lang + "-" + fp.LocaleCountry
	}
	if lang == "en" {
		return tag + "," + lang + ";q=0.9"
	}
	return tag + "," + lang + ";q=0.9,en;q=0.8"
}

func isChromium(browser string) bool {
	switch strings.ToLower(browser) {
	case "chrome", "edge", "opera":
		return true
	default:
		return false
	}
}

func platformHint(osName string) string {
	switch osName {
	case "macOS":
		return "macOS"
	case "Linux":
		return "Linux"
	default:
		return "Windows"
	}
}
