// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package regions 注册内置的地区指纹配置
package regions

import (
	"go.mau.fi/webwx/util/fingerprint"
)

func init() {
	// 默认配置（用于未指定地区的情况）
	config := &fingerprint.RegionConfig{
		Code: "",
		Name: "Default",

		Languages: []fingerprint.LanguageConfig{
			{Code: "zh", Weight: 1.0, Countries: []string{"CN"}},
		},

		OperatingSystems: []fingerprint.OSDistribution{
			{OSName: "Windows", Versions: []string{"10.0"}, Weight: 0.8},
			{OSName: "macOS", Versions: []string{"10.15.7", "13.5.2", "14.2.1"}, Weight: 0.2},
		},

		Browsers: []fingerprint.BrowserDistribution{
			{Browser: "Chrome", Versions: []string{"120", "124", "128", "131"}, Weight: 1.0},
		},
	}

	// 设置为默认配置
	_ = fingerprint.SetDefaultRegion(config)
}
