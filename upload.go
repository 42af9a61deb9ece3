// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
)

// MediaType is the category an uploaded file is filed under.
type MediaType string

const (
	MediaPicture  MediaType = "pic"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "doc"
)

// UploadChunkSize is the size of the chunks files are uploaded in.
const UploadChunkSize = 512 * 1024

type uploadMediaRequest struct {
	UploadType    int               `json:"UploadType"`
	BaseRequest   store.BaseRequest `json:"BaseRequest"`
	ClientMediaID int64             `json:"ClientMediaId"`
	TotalLen      int64             `json:"TotalLen"`
	StartPos      int64             `json:"StartPos"`
	DataLen       int64             `json:"DataLen"`
	MediaType     int               `json:"MediaType"`
	FromUserName  string            `json:"FromUserName"`
	ToUserName    string            `json:"ToUserName"`
	FileMd5       string            `json:"FileMd5"`
}

type uploadMediaResponse struct {
	MediaID string `json:"MediaId"`
}

type uploadResult struct {
	mediaID string
	size    int64
	hash    string
}

// UploadMedia uploads a file and returns the media ID it can be sent with. Uploads are cached by the
// file hash, so sending the same file again doesn't upload it again.
func (cli *Client) UploadMedia(ctx context.Context, path string, to types.Chat, mediaType MediaType) (string, error) {
	res, err := cli.uploadMedia(ctx, path, to, mediaType)
	if err != nil {
		return "", err
	}
	return res.mediaID, nil
}

func (cli *Client) uploadMedia(ctx context.Context, path string, to types.Chat, mediaType MediaType) (*uploadResult, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	} else if to == nil {
		return nil, ErrUnknownChat
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	hash := md5.Sum(data)
	res := &uploadResult{size: int64(len(data)), hash: hex.EncodeToString(hash[:])}
	cacheKey := res.hash + "/" + string(mediaType)
	if cached, ok := cli.mediaCache.Get(cacheKey); ok {
		cli.sendLog.Debugf("Reusing media %s for %s", cached, path)
		res.mediaID = cached
		return res, nil
	}

	sess := cli.Session()
	fileID := "WU_FILE_" + strconv.FormatUint(uint64(cli.uploadCounter.Add(1)-1), 10)
	fileName := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(fileName))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	dataTicket := cli.cookieValue(sess.URIs.File, "webwx_data_ticket")
	clientMediaID := time.Now().UnixMilli()
	lastModified := time.Now().Format("Mon Jan 02 2006 15:04:05 GMT-0700 (MST)")
	if stat, err := os.Stat(path); err == nil {
		lastModified = stat.ModTime().Format("Mon Jan 02 2006 15:04:05 GMT-0700 (MST)")
	}

	chunks := max((len(data)+UploadChunkSize-1)/UploadChunkSize, 1)
	for chunk := 0; chunk < chunks; chunk++ {
		start := chunk * UploadChunkSize
		end := min(start+UploadChunkSize, len(data))
		uploadReq, err := json.Marshal(&uploadMediaRequest{
			UploadType:    2,
			BaseRequest:   sess.BaseRequest(),
			ClientMediaID: clientMediaID,
			TotalLen:      res.size,
			StartPos:      int64(start),
			DataLen:       res.size,
			MediaType:     4,
			FromUserName:  cli.State.SelfUsername(),
			ToUserName:    to.ID(),
			FileMd5:       res.hash,
		})
		if err != nil {
			return nil, err
		}
		fields := [][2]string{
			{"id", fileID},
			{"name", fileName},
			{"type", mimeType},
			{"lastModifiedDate", lastModified},
			{"size", strconv.FormatInt(res.size, 10)},
		}
		if chunks > 1 {
			fields = append(fields, [2]string{"chunks", strconv.Itoa(chunks)}, [2]string{"chunk", strconv.Itoa(chunk)})
		}
		fields = append(fields,
			[2]string{"mediatype", string(mediaType)},
			[2]string{"uploadmediarequest", string(uploadReq)},
			[2]string{"webwx_data_ticket", dataTicket},
			[2]string{"pass_ticket", sess.PassTicket},
		)
		body, contentType, err := buildUploadForm(fields, fileName, data[start:end])
		if err != nil {
			return nil, err
		}
		resp, err := cli.doRequest(ctx, &request{
			Method:      http.MethodPost,
			URL:         sess.URIs.File + "/webwxuploadmedia",
			Query:       url.Values{"f": {"json"}},
			Body:        body,
			ContentType: contentType,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload chunk %d/%d of %s: %w", chunk+1, chunks, fileName, err)
		}
		var parsed uploadMediaResponse
		if err = cli.parseJSONResponse("webwxuploadmedia", resp.Body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to upload chunk %d/%d of %s: %w", chunk+1, chunks, fileName, err)
		}
		if parsed.MediaID != "" {
			res.mediaID = parsed.MediaID
		}
	}
	if res.mediaID == "" {
		return nil, fmt.Errorf("server didn't return a media ID for %s", fileName)
	}
	cli.mediaCache.Add(cacheKey, res.mediaID)
	cli.sendLog.Debugf("Uploaded %s (%d bytes) as %s", fileName, res.size, res.mediaID)
	return res, nil
}

func buildUploadForm(fields [][2]string, fileName string, chunk []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	fw, err := w.CreateFormFile("filename", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = fw.Write(chunk); err != nil {
		return nil, "", err
	}
	if err = w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// cookieValue returns the value of a cookie the jar holds for the given URL.
func (cli *Client) cookieValue(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, cookie := range cli.jar.Cookies(u) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}
