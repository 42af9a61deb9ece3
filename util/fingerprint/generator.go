// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fingerprint

import (
	mathRand "math/rand"
	"slices"

	"go.mau.fi/webwx/store"
)

// GenerateFingerprint 根据地区生成浏览器指纹
// regionCode: 地区代码，如 "CN", "US"，空字符串使用默认配置
func GenerateFingerprint(regionCode string) *store.BrowserFingerprint {
	config := GetRegionConfig(regionCode)
	if config == nil {
		// 没有任何配置时使用内置默认值
		return &store.BrowserFingerprint{
			Browser:        DefaultBrowserName,
			BrowserVersion: DefaultBrowserVersion,
			OSName:         DefaultOSName,
			OSVersion:      DefaultOSVersion,
			LocaleLanguage: "zh",
			LocaleCountry:  "CN",
			UserAgent:      FormatUserAgent(DefaultBrowserName, DefaultBrowserVersion, DefaultOSName, DefaultOSVersion),
		}
	}
	return generateFromConfig(config)
}

// GenerateRandomFingerprint 使用默认配置生成随机指纹
func GenerateRandomFingerprint() *store.BrowserFingerprint {
	return GenerateFingerprint("")
}

// generateFromConfig 根据配置生成指纹
func generateFromConfig(config *RegionConfig) *store.BrowserFingerprint {
	// 1. 选择语言和国家
	lang, country := selectLanguageAndCountry(config)

	// 2. 选择操作系统
	osName, osVersion := selectOS(config.OperatingSystems)

	// 3. 选择该系统可用的浏览器
	browser, browserVersion := selectBrowser(config.Browsers, osName)

	return &store.BrowserFingerprint{
		Browser:        browser,
		BrowserVersion: browserVersion,
		OSName:         osName,
		OSVersion:      osVersion,
		LocaleLanguage: lang,
		LocaleCountry:  country,
		UserAgent:      FormatUserAgent(browser, browserVersion, osName, osVersion),
	}
}

// pickWeighted 根据权重随机选择，权重总和不足 1 时返回第一个
func pickWeighted[T weighted](items []T) T {
	r := mathRand.Float64()
	var cumWeight float64
	for _, item := range items {
		cumWeight += item.weight()
		if r <= cumWeight {
			return item
		}
	}
	return items[0]
}

func pickString(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[mathRand.Intn(len(values))]
}

// selectLanguageAndCountry 选择语言和国家
func selectLanguageAndCountry(config *RegionConfig) (lang, country string) {
	if len(config.Languages) == 0 {
		return "zh", "CN"
	}
	langConfig := pickWeighted(config.Languages)
	return langConfig.Code, pickString(langConfig.Countries, "CN")
}

// selectOS 选择操作系统及版本
func selectOS(distributions []OSDistribution) (name, version string) {
	if len(distributions) == 0 {
		return DefaultOSName, DefaultOSVersion
	}
	dist := pickWeighted(distributions)
	return dist.OSName, pickString(dist.Versions, DefaultOSVersion)
}

// selectBrowser 选择与操作系统兼容的浏览器
func selectBrowser(distributions []BrowserDistribution, osName string) (name, version string) {
	compatible := make([]BrowserDistribution, 0, len(distributions))
	for _, dist := range distributions {
		if len(dist.OperatingSystems) == 0 || slices.Contains(dist.OperatingSystems, osName) {
			compatible = append(compatible, dist)
		}
	}
	if len(compatible) == 0 {
		return DefaultBrowserName, DefaultBrowserVersion
	}
	dist := pickWeighted(compatible)
	return dist.Browser, pickString(dist.Versions, DefaultBrowserVersion)
}
