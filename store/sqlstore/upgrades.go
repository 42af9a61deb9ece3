// Copyright (c) 2022 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sqlstore

import (
	"context"

	"go.mau.fi/util/dbutil"
)

// Table is the schema upgrade table of the webwx store.
var Table dbutil.UpgradeTable

func init() {
	Table.Register(0, 1, 0, "Initial schema", dbutil.TxnModeOn, func(ctx context.Context, db *dbutil.Database) error {
		_, err := db.Exec(ctx, `
			CREATE TABLE webwx_session (
				account    TEXT PRIMARY KEY,
				data       bytea NOT NULL,
				updated_at BIGINT NOT NULL
			)`)
		if err != nil {
			return err
		}
		_, err = db.Exec(ctx, `
			CREATE TABLE webwx_browser_fingerprint (
				account         TEXT PRIMARY KEY,
				browser         TEXT NOT NULL,
				browser_version TEXT NOT NULL,
				os_name         TEXT NOT NULL,
				os_version      TEXT NOT NULL,
				locale_language TEXT NOT NULL,
				locale_country  TEXT NOT NULL,
				user_agent      TEXT NOT NULL,
				updated_at      BIGINT NOT NULL
			)`)
		return err
	})
}
