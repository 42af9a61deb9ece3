// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fingerprint

import "fmt"

// 浏览器指纹相关默认值
const (
	// DefaultBrowserName 默认浏览器名称
	DefaultBrowserName = "Chrome"
	// DefaultBrowserVersion 默认浏览器主版本
	DefaultBrowserVersion = "131"
	// DefaultOSName 默认操作系统名称
	DefaultOSName = "Windows"
	// DefaultOSVersion 默认操作系统版本
	DefaultOSVersion = "10.0"
)

// FormatUserAgent 根据浏览器和操作系统拼接 User-Agent
// 示例：FormatUserAgent("Chrome", "120", "Windows", "10.0")
// -> "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
func FormatUserAgent(browser, browserVersion, osName, osVersion string) string {
	platform := formatPlatform(osName, osVersion, browser)
	switch browser {
	case "Firefox":
		return fmt.Sprintf("Mozilla/5.0 (%s; rv:%s.0) Gecko/20100101 Firefox/%s.0", platform, browserVersion, browserVersion)
	case "Safari":
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15", platform, browserVersion)
	case "Edge":
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36 Edg/%s.0.0.0", platform, browserVersion, browserVersion)
	default:
		return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", platform, browserVersion)
	}
}

// formatPlatform 生成 User-Agent 括号中的平台部分
func formatPlatform(osName, osVersion, browser string) string {
	switch osName {
	case "macOS":
		// Chromium 系浏览器固定上报 10_15_7
		version := "10_15_7"
		if browser == "Firefox" {
			version = "10.15"
		}
		return "Macintosh; Intel Mac OS X " + version
	case "Linux":
		return "X11; Linux x86_64"
	default:
		if osVersion == "" {
			osVersion = DefaultOSVersion
		}
		return "Windows NT " + osVersion + "; Win64; x64"
	}
}
