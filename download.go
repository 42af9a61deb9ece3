// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"go.mau.fi/webwx/types"
)

// AttachmentURL returns the URL the media of the given message can be downloaded from.
func (cli *Client) AttachmentURL(msg *types.Message) (string, error) {
	if msg == nil || msg.ServerID == "" {
		return "", ErrMediaNotAvailable
	}
	sess := cli.Session()
	switch msg.Type {
	case types.MsgImage, types.MsgEmoticon:
		return joinQuery(sess.URIs.Base+"/webwxgetmsgimg", url.Values{
			"MsgID": {msg.ServerID},
			"skey":  {sess.Skey},
		}), nil
	case types.MsgVoice:
		return joinQuery(sess.URIs.Base+"/webwxgetvoice", url.Values{
			"msgid": {msg.ServerID},
			"skey":  {sess.Skey},
		}), nil
	case types.MsgVideo:
		return joinQuery(sess.URIs.Base+"/webwxgetvideo", url.Values{
			"msgid": {msg.ServerID},
			"skey":  {sess.Skey},
		}), nil
	case types.MsgFile:
		if msg.MediaID == "" || msg.Sender == nil {
			return "", ErrMediaNotAvailable
		}
		return joinQuery(sess.URIs.File+"/webwxgetmedia", url.Values{
			"sender":            {msg.Sender.ID()},
			"mediaid":           {msg.MediaID},
			"filename":          {msg.FileName},
			"fromuser":          {strconv.FormatInt(sess.Uin, 10)},
			"pass_ticket":       {sess.PassTicket},
			"webwx_data_ticket": {cli.cookieValue(sess.URIs.File, "webwx_data_ticket")},
		}), nil
	default:
		return "", fmt.Errorf("%w (type %s)", ErrMediaNotAvailable, msg.Type)
	}
}

// Download downloads the media attached to the given message.
func (cli *Client) Download(ctx context.Context, msg *types.Message) ([]byte, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	target, err := cli.AttachmentURL(msg)
	if err != nil {
		return nil, err
	}
	req := &request{URL: target, Kind: requestKindMedia}
	if msg.Type == types.MsgVideo {
		// The video endpoint only responds to range requests
		req.Header = http.Header{"Range": {"bytes=0-"}}
	}
	resp, err := cli.doRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s media of %d: %w", msg.Type, msg.ID, err)
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMediaNotAvailable)
	}
	return resp.Body, nil
}

// DownloadToFile downloads the media attached to the given message and writes it to path.
// If path is a directory, the file name of the message is used, or the message ID if it has none.
func (cli *Client) DownloadToFile(ctx context.Context, msg *types.Message, path string) (string, error) {
	data, err := cli.Download(ctx, msg)
	if err != nil {
		return "", err
	}
	if stat, err := os.Stat(path); err == nil && stat.IsDir() {
		name := filepath.Base(msg.FileName)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = strconv.FormatInt(msg.ID, 10)
		}
		path = filepath.Join(path, name)
	}
	if err = os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func joinQuery(base string, query url.Values) string {
	return (&request{URL: base, Query: query}).fullURL()
}
