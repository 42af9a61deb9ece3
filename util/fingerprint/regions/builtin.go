// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package regions

import (
	"go.mau.fi/webwx/util/fingerprint"
)

func init() {
	_ = fingerprint.RegisterRegion(&fingerprint.RegionConfig{
		Code: "CN",
		Name: "China",

		Languages: []fingerprint.LanguageConfig{
			{Code: "zh", Weight: 1.0, Countries: []string{"CN"}},
		},

		// 国内桌面以 Windows 为主
		OperatingSystems: []fingerprint.OSDistribution{
			{OSName: "Windows", Versions: []string{"10.0"}, Weight: 0.85},
			{OSName: "macOS", Versions: []string{"13.5.2", "14.2.1"}, Weight: 0.15},
		},

		Browsers: []fingerprint.BrowserDistribution{
			{Browser: "Chrome", Versions: []string{"120", "124", "128", "131"}, Weight: 0.7},
			{Browser: "Edge", Versions: []string{"120", "124", "131"}, Weight: 0.2, OperatingSystems: []string{"Windows"}},
			{Browser: "Safari", Versions: []string{"16.6", "17.2"}, Weight: 0.1, OperatingSystems: []string{"macOS"}},
		},
	})

	_ = fingerprint.RegisterRegion(&fingerprint.RegionConfig{
		Code: "US",
		Name: "United States",

		Languages: []fingerprint.LanguageConfig{
			{Code: "en", Weight: 0.7, Countries: []string{"US"}},
			{Code: "zh", Weight: 0.3, Countries: []string{"CN", "TW"}},
		},

		OperatingSystems: []fingerprint.OSDistribution{
			{OSName: "Windows", Versions: []string{"10.0"}, Weight: 0.6},
			{OSName: "macOS", Versions: []string{"13.5.2", "14.2.1"}, Weight: 0.3},
			{OSName: "Linux", Weight: 0.1},
		},

		Browsers: []fingerprint.BrowserDistribution{
			{Browser: "Chrome", Versions: []string{"124", "128", "131"}, Weight: 0.65},
			{Browser: "Firefox", Versions: []string{"120", "128"}, Weight: 0.15},
			{Browser: "Edge", Versions: []string{"124", "131"}, Weight: 0.1, OperatingSystems: []string{"Windows"}},
			{Browser: "Safari", Versions: []string{"17.2"}, Weight: 0.1, OperatingSystems: []string{"macOS"}},
		},
	})
}
