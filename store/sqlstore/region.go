// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sqlstore

import "strings"

// Region 表示浏览器指纹生成的地区
type Region int

const (
	// Region_None 表示未配置地区，使用默认配置
	Region_None Region = iota
	// Region_CN 中国大陆
	Region_CN
	// Region_US 美国
	Region_US
)

// String 返回地区的 ISO 3166-1 alpha-2 代码
func (r Region) String() string {
	switch r {
	case Region_CN:
		return "CN"
	case Region_US:
		return "US"
	default:
		return ""
	}
}

// IsValid 检查地区是否有效（非 None）
func (r Region) IsValid() bool {
	return r != Region_None
}

// ParseRegion 解析地区代码，无法识别时返回 Region_None
func ParseRegion(code string) Region {
	switch strings.ToUpper(code) {
	case "CN":
		return Region_CN
	case "US":
		return Region_US
	default:
		return Region_None
	}
}
