// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package fingerprint

import (
	"fmt"
	"slices"
	"sync"
)

var (
	registry      = make(map[string]*RegionConfig)
	registryLock  sync.RWMutex
	defaultRegion *RegionConfig
)

// RegisterRegion 注册地区配置
func RegisterRegion(config *RegionConfig) error {
	if config == nil {
		return fmt.Errorf("region config cannot be nil")
	}
	if config.Code == "" {
		return fmt.Errorf("region code cannot be empty")
	}
	if err := validateRegionConfig(config); err != nil {
		return fmt.Errorf("invalid region config for %s: %w", config.Code, err)
	}

	registryLock.Lock()
	defer registryLock.Unlock()
	registry[config.Code] = config
	return nil
}

// GetRegionConfig 获取地区配置，未注册的地区返回默认配置
func GetRegionConfig(regionCode string) *RegionConfig {
	registryLock.RLock()
	defer registryLock.RUnlock()

	if config, ok := registry[regionCode]; ok {
		return config
	}
	return defaultRegion
}

// ListRegions 列出所有已注册的地区
func ListRegions() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	regions := make([]string, 0, len(registry))
	for code := range registry {
		regions = append(regions, code)
	}
	slices.Sort(regions)
	return regions
}

// SetDefaultRegion 设置默认地区配置
func SetDefaultRegion(config *RegionConfig) error {
	if config == nil {
		return fmt.Errorf("region config cannot be nil")
	}
	if err := validateRegionConfig(config); err != nil {
		return fmt.Errorf("invalid default region config: %w", err)
	}
	registryLock.Lock()
	defaultRegion = config
	registryLock.Unlock()
	return nil
}

type weighted interface {
	weight() float64
}

func checkWeights[T weighted](kind string, items []T) error {
	var sum float64
	for _, item := range items {
		w := item.weight()
		if w < 0 || w > 1 {
			return fmt.Errorf("%s weight must be between 0 and 1", kind)
		}
		sum += w
	}
	// 允许小的浮点误差
	if len(items) > 0 && sum > 1.01 {
		return fmt.Errorf("%s weights sum should be <= 1.0, got %.2f", kind, sum)
	}
	return nil
}

// validateRegionConfig 验证地区配置
func validateRegionConfig(config *RegionConfig) error {
	if err := checkWeights("language", config.Languages); err != nil {
		return err
	}
	if err := checkWeights("browser", config.Browsers); err != nil {
		return err
	}
	if err := checkWeights("os", config.OperatingSystems); err != nil {
		return err
	}
	for _, browser := range config.Browsers {
		if len(browser.Versions) == 0 {
			return fmt.Errorf("browser %s has no versions", browser.Browser)
		}
	}
	return nil
}
