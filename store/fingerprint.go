// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
)

// BrowserFingerprint 浏览器指纹信息
type BrowserFingerprint struct {
	// 浏览器
	Browser        string `json:"browser"` // "Chrome", "Firefox", "Edge", "Safari"
	BrowserVersion string `json:"browser_version"`

	// 操作系统
	OSName    string `json:"os_name"` // "Windows", "macOS", "Linux"
	OSVersion string `json:"os_version"`

	// 地区
	LocaleLanguage string `json:"locale_language"` // "zh", "en"
	LocaleCountry  string `json:"locale_country"`  // "CN", "US"

	// UserAgent 由生成器根据以上字段拼接
	UserAgent string `json:"user_agent"`
}

// Lang 返回 Web 接口使用的 lang 参数，如 zh_CN
func (fp *BrowserFingerprint) Lang() string {
	if fp == nil || fp.LocaleLanguage == "" {
		return DefaultLang
	}
	if fp.LocaleCountry == "" {
		return fp.LocaleLanguage
	}
	return fp.LocaleLanguage + "_" + fp.LocaleCountry
}

// DefaultLang 未配置指纹时使用的 lang 参数
const DefaultLang = "zh_CN"

// DefaultUserAgent 未配置指纹时使用的 User-Agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// FingerprintStore 浏览器指纹存储接口，退出登录后指纹依然保留
type FingerprintStore interface {
	GetFingerprint(ctx context.Context) (*BrowserFingerprint, error)
	PutFingerprint(ctx context.Context, fp *BrowserFingerprint) error
	// FingerprintRegion 返回生成新指纹时使用的地区代码，空字符串表示默认配置
	FingerprintRegion() string
}
