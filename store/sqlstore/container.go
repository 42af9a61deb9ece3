// Copyright (c) 2022 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package sqlstore contains an SQL-backed implementation of the interfaces in the store package.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/util/dbutil"

	"go.mau.fi/webwx/store"
	waLog "go.mau.fi/webwx/util/log"
)

// Container is a wrapper for an SQL database that stores the session of one account.
type Container struct {
	db      *dbutil.Database
	account string
	log     waLog.Logger

	// Region is used to generate the browser fingerprint when none has been stored.
	Region Region
}

var (
	_ store.Container        = (*Container)(nil)
	_ store.FingerprintStore = (*Container)(nil)
)

// New connects to the given SQL database and upgrades the schema.
//
// The account name is used as the key of all stored rows, so several accounts can share a database.
//
//	container, err := sqlstore.New(ctx, "sqlite3", "file:webwx.db?_foreign_keys=on", "default", nil)
func New(ctx context.Context, dialect, address, account string, log waLog.Logger) (*Container, error) {
	db, err := sql.Open(dialect, address)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	container, err := NewWithDB(db, dialect, account, log)
	if err != nil {
		return nil, err
	}
	err = container.Upgrade(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return container, nil
}

// NewWithDB wraps an existing database connection. Upgrade must be called before use.
func NewWithDB(db *sql.DB, dialect, account string, log waLog.Logger) (*Container, error) {
	wrapped, err := dbutil.NewWithDB(db, dialect)
	if err != nil {
		return nil, err
	}
	wrapped.UpgradeTable = Table
	wrapped.VersionTable = "webwx_version"
	return NewWithWrappedDB(wrapped, account, log), nil
}

// NewWithWrappedDB wraps an existing dbutil database.
func NewWithWrappedDB(wrapped *dbutil.Database, account string, log waLog.Logger) *Container {
	if log == nil {
		log = waLog.Noop
	}
	if account == "" {
		account = "default"
	}
	return &Container{
		db:      wrapped,
		account: account,
		log:     log,
	}
}

// Upgrade upgrades the database schema to the latest version.
func (c *Container) Upgrade(ctx context.Context) error {
	return c.db.Upgrade(ctx)
}

// Close closes the underlying database.
func (c *Container) Close() error {
	return c.db.Close()
}

const (
	loadSessionQuery   = `SELECT data FROM webwx_session WHERE account=$1`
	deleteSessionQuery = `DELETE FROM webwx_session WHERE account=$1`
	saveSessionQuery   = `
		INSERT INTO webwx_session (account, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at
	`
)

func (c *Container) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := c.db.QueryRow(ctx, loadSessionQuery, c.account).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return data, nil
}

func (c *Container) Save(ctx context.Context, data []byte) error {
	_, err := c.db.Exec(ctx, saveSessionQuery, c.account, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (c *Container) Delete(ctx context.Context) error {
	_, err := c.db.Exec(ctx, deleteSessionQuery, c.account)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	c.log.Debugf("Deleted stored session of %s", c.account)
	return nil
}
