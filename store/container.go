// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Container persists the opaque session snapshot.
type Container interface {
	// Load returns the stored snapshot, or nil if nothing has been stored.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// NoopContainer doesn't persist anything.
type NoopContainer struct{}

var _ Container = NoopContainer{}

func (NoopContainer) Load(context.Context) ([]byte, error) { return nil, nil }
func (NoopContainer) Save(context.Context, []byte) error   { return nil }
func (NoopContainer) Delete(context.Context) error         { return nil }

// FileContainer stores the snapshot in a JSON file. The browser fingerprint is kept in a separate
// file next to it, so that it survives logouts.
type FileContainer struct {
	Path string
	// Region is the fingerprint region code used when no fingerprint has been stored yet.
	Region string
}

var (
	_ Container        = (*FileContainer)(nil)
	_ FingerprintStore = (*FileContainer)(nil)
)

// NewFileContainer creates a container that stores the snapshot at the given path.
func NewFileContainer(path string) *FileContainer {
	return &FileContainer{Path: path}
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (fc *FileContainer) Load(_ context.Context) ([]byte, error) {
	data, err := readOptional(fc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return data, nil
}

func (fc *FileContainer) Save(_ context.Context, data []byte) error {
	if err := writeAtomic(fc.Path, data); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (fc *FileContainer) Delete(_ context.Context) error {
	err := os.Remove(fc.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

func (fc *FileContainer) fingerprintPath() string {
	return fc.Path + ".fingerprint"
}

// GetFingerprint 读取指纹文件，不存在时返回 nil
func (fc *FileContainer) GetFingerprint(_ context.Context) (*BrowserFingerprint, error) {
	data, err := readOptional(fc.fingerprintPath())
	if err != nil || data == nil {
		return nil, err
	}
	var fp BrowserFingerprint
	if err = json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("failed to parse fingerprint: %w", err)
	}
	return &fp, nil
}

// FingerprintRegion 返回生成指纹使用的地区
func (fc *FileContainer) FingerprintRegion() string {
	return fc.Region
}

// PutFingerprint 保存指纹文件
func (fc *FileContainer) PutFingerprint(_ context.Context, fp *BrowserFingerprint) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	return writeAtomic(fc.fingerprintPath(), data)
}
