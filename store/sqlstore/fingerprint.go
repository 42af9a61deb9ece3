// Copyright (c) 2024
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/webwx/store"
)

const (
	getFingerprintQuery = `
        SELECT browser, browser_version, os_name, os_version, locale_language, locale_country, user_agent
        FROM webwx_browser_fingerprint WHERE account=$1
    `

	putFingerprintQuery = `
        INSERT INTO webwx_browser_fingerprint (
            account, browser, browser_version, os_name, os_version, locale_language, locale_country, user_agent, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (account) DO UPDATE SET
            browser=excluded.browser, browser_version=excluded.browser_version,
            os_name=excluded.os_name, os_version=excluded.os_version,
            locale_language=excluded.locale_language, locale_country=excluded.locale_country,
            user_agent=excluded.user_agent, updated_at=excluded.updated_at
    `
)

// GetFingerprint 获取浏览器指纹，未保存时返回 nil
func (c *Container) GetFingerprint(ctx context.Context) (*store.BrowserFingerprint, error) {
	var fp store.BrowserFingerprint
	err := c.db.QueryRow(ctx, getFingerprintQuery, c.account).Scan(
		&fp.Browser, &fp.BrowserVersion, &fp.OSName, &fp.OSVersion,
		&fp.LocaleLanguage, &fp.LocaleCountry, &fp.UserAgent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return &fp, nil
}

// PutFingerprint 保存浏览器指纹（退出登录时不会删除）
func (c *Container) PutFingerprint(ctx context.Context, fp *store.BrowserFingerprint) error {
	_, err := c.db.Exec(ctx, putFingerprintQuery,
		c.account, fp.Browser, fp.BrowserVersion, fp.OSName, fp.OSVersion,
		fp.LocaleLanguage, fp.LocaleCountry, fp.UserAgent, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to put fingerprint: %w", err)
	}
	return nil
}

// FingerprintRegion 返回生成指纹时使用的地区代码
func (c *Container) FingerprintRegion() string {
	return c.Region.String()
}
