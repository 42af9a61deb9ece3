// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fingerprint

// RegionConfig 地区配置
type RegionConfig struct {
	// 地区标识
	Code string // "CN", "US"
	Name string // "China", "United States"

	// 语言配置
	Languages []LanguageConfig // 支持的语言列表及权重

	// 浏览器分布
	Browsers []BrowserDistribution

	// 操作系统分布
	OperatingSystems []OSDistribution
}

// LanguageConfig 语言配置
type LanguageConfig struct {
	Code      string   // "zh", "en"
	Weight    float64  // 权重（用于随机选择，总和应为 1.0）
	Countries []string // 对应的国家代码
}

// BrowserDistribution 浏览器分布
type BrowserDistribution struct {
	Browser  string   // "Chrome", "Edge", "Firefox", "Safari"
	Versions []string // 主版本号列表
	Weight   float64
	// OperatingSystems 限定该浏览器可用的操作系统，为空表示不限
	OperatingSystems []string
}

// OSDistribution 操作系统分布
type OSDistribution struct {
	OSName   string   // "Windows", "macOS", "Linux"
	Versions []string // 该系统的版本列表
	Weight   float64
}

func (w LanguageConfig) weight() float64      { return w.Weight }
func (w BrowserDistribution) weight() float64 { return w.Weight }
func (w OSDistribution) weight() float64      { return w.Weight }
