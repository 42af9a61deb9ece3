// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fingerprint_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/util/fingerprint"
	_ "go.mau.fi/webwx/util/fingerprint/regions"
)

func TestGenerateFingerprint_China(t *testing.T) {
	for range 50 {
		fp := fingerprint.GenerateFingerprint("CN")
		require.NotNil(t, fp)
		assert.Equal(t, "zh", fp.LocaleLanguage)
		assert.Equal(t, "CN", fp.LocaleCountry)
		assert.Equal(t, "zh_CN", fp.Lang())
		assert.True(t, strings.HasPrefix(fp.UserAgent, "Mozilla/5.0 ("))
		if fp.Browser == "Safari" {
			assert.Equal(t, "macOS", fp.OSName)
		}
		if fp.Browser == "Edge" {
			assert.Equal(t, "Windows", fp.OSName)
			assert.Contains(t, fp.UserAgent, "Edg/")
		}
	}
}

func TestGenerateFingerprint_UnknownRegionUsesDefault(t *testing.T) {
	fp := fingerprint.GenerateFingerprint("XX")
	require.NotNil(t, fp)
	assert.Equal(t, "Chrome", fp.Browser)
	assert.Equal(t, "zh", fp.LocaleLanguage)
}

func TestListRegions(t *testing.T) {
	assert.Equal(t, []string{"CN", "US"}, fingerprint.ListRegions())
}

func TestRegisterRegion_Validation(t *testing.T) {
	assert.Error(t, fingerprint.RegisterRegion(nil))
	assert.Error(t, fingerprint.RegisterRegion(&fingerprint.RegionConfig{}))
	assert.Error(t, fingerprint.RegisterRegion(&fingerprint.RegionConfig{
		Code:     "ZZ",
		Browsers: []fingerprint.BrowserDistribution{{Browser: "Chrome", Versions: []string{"1"}, Weight: 0.8}, {Browser: "Firefox", Versions: []string{"1"}, Weight: 0.8}},
	}))
	assert.Error(t, fingerprint.RegisterRegion(&fingerprint.RegionConfig{
		Code:     "ZZ",
		Browsers: []fingerprint.BrowserDistribution{{Browser: "Chrome", Weight: 1}},
	}))
}

func TestFormatUserAgent(t *testing.T) {
	assert.Equal(t,
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		fingerprint.FormatUserAgent("Chrome", "120", "Windows", "10.0"))
	assert.Equal(t,
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:128.0) Gecko/20100101 Firefox/128.0",
		fingerprint.FormatUserAgent("Firefox", "128", "macOS", "14.2.1"))
	assert.Equal(t,
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		fingerprint.FormatUserAgent("Chrome", "131", "Linux", ""))
}

func TestApplyFingerprint(t *testing.T) {
	header := http.Header{}
	fingerprint.ApplyFingerprint(header, nil)
	assert.Equal(t, store.DefaultUserAgent, header.Get("User-Agent"))
	assert.Equal(t, "zh-CN,zh;q=0.9,en;q=0.8", header.Get("Accept-Language"))
	assert.Empty(t, header.Get("Sec-Ch-Ua-Platform"))

	fp := &store.BrowserFingerprint{
		Browser:        "Edge",
		OSName:         "Windows",
		LocaleLanguage: "en",
		LocaleCountry:  "US",
		UserAgent:      "test-agent",
	}
	fingerprint.ApplyFingerprint(header, fp)
	assert.Equal(t, "test-agent", header.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.9", header.Get("Accept-Language"))
	assert.Equal(t, `"Windows"`, header.Get("Sec-Ch-Ua-Platform"))
}
