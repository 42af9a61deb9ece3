// Copyright (c) 2022 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/webwx/store"
)

func testDBAddress(t *testing.T) string {
	return "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=on"
}

func newTestContainer(t *testing.T, address, account string) *Container {
	container, err := New(context.Background(), "sqlite3", address, account, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Close()
	})
	return container
}

func TestContainerSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t, testDBAddress(t), "alice")

	data, err := container.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, container.Save(ctx, []byte(`{"version":1}`)))
	require.NoError(t, container.Save(ctx, []byte(`{"version":2}`)))
	data, err = container.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":2}`, string(data))

	require.NoError(t, container.Delete(ctx))
	data, err = container.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
	require.NoError(t, container.Delete(ctx))
}

func TestContainerAccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	address := testDBAddress(t)
	alice := newTestContainer(t, address, "alice")
	bob := newTestContainer(t, address, "bob")

	require.NoError(t, alice.Save(ctx, []byte("alice")))
	require.NoError(t, bob.Save(ctx, []byte("bob")))
	require.NoError(t, bob.Delete(ctx))

	data, err := alice.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(data))
	data, err = bob.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestContainerReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	address := "file:" + filepath.Join(t.TempDir(), "webwx.db") + "?_foreign_keys=on"
	first, err := New(ctx, "sqlite3", address, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", first.account)
	require.NoError(t, first.Save(ctx, []byte("kept")))
	require.NoError(t, first.Close())

	second := newTestContainer(t, address, "default")
	data, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestFingerprintSurvivesSessionDelete(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t, testDBAddress(t), "alice")
	container.Region = ParseRegion("cn")
	assert.Equal(t, "CN", container.FingerprintRegion())

	fp, err := container.GetFingerprint(ctx)
	require.NoError(t, err)
	assert.Nil(t, fp)

	want := &store.BrowserFingerprint{
		Browser:        "Chrome",
		BrowserVersion: "120.0.0.0",
		OSName:         "Windows",
		OSVersion:      "10",
		LocaleLanguage: "zh",
		LocaleCountry:  "CN",
		UserAgent:      "Mozilla/5.0",
	}
	require.NoError(t, container.PutFingerprint(ctx, want))
	want.BrowserVersion = "121.0.0.0"
	require.NoError(t, container.PutFingerprint(ctx, want))
	require.NoError(t, container.Save(ctx, []byte("session")))
	require.NoError(t, container.Delete(ctx))

	fp, err = container.GetFingerprint(ctx)
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, *want, *fp)
}
