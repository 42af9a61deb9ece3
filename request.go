// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/tidwall/gjson"
	"go.mau.fi/util/exhttp"

	"go.mau.fi/webwx/store"
)

type request struct {
	Method      string
	URL         string
	Query       url.Values
	Body        []byte
	ContentType string
	Kind        requestKind
	Header      http.Header
	// Timeout applies to each attempt separately. Zero means no timeout apart from the context.
	Timeout time.Duration
	// NoRedirect returns 3xx responses instead of following them.
	NoRedirect bool
	NoRetry    bool
}

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// negativeTimestamp returns the bitwise complement of the current millisecond timestamp truncated
// to 32 bits, which some endpoints expect in the r parameter.
func negativeTimestamp() string {
	return strconv.FormatInt(int64(^int32(time.Now().UnixMilli())), 10)
}

func timestampMS() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func (r *request) fullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + r.Query.Encode()
}

func endpointName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return path.Base(parsed.Path)
}

func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return exhttp.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded)
}

func (cli *Client) doRequest(ctx context.Context, r *request) (*response, error) {
	retries := cli.RequestRetries
	if r.NoRetry {
		retries = 0
	}
	name := endpointName(r.URL)
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			cli.Log.Debugf("Retrying %s request in %s after error: %v (attempt %d/%d)", name, cli.RetryDelay, lastErr, attempt, retries)
			cli.Metrics.incRequestRetry(name)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cli.RetryDelay):
			}
		}
		start := time.Now()
		resp, err := cli.doRequestOnce(ctx, r)
		if err == nil {
			cli.Metrics.observeRequest(name, strconv.Itoa(resp.StatusCode), time.Since(start))
			return resp, nil
		}
		cli.Metrics.observeRequest(name, "error", time.Since(start))
		lastErr = err
		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}
	return nil, lastErr
}

func (cli *Client) doRequestOnce(ctx context.Context, r *request) (*response, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.fullURL(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request: %w", err)
	}
	cli.setBrowserHeaders(req, r.Kind)
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	for key, values := range r.Header {
		req.Header[key] = values
	}
	httpClient := cli.http
	if r.NoRedirect {
		noRedirect := *cli.http
		noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
		httpClient = &noRedirect
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	isRedirect := resp.StatusCode >= 300 && resp.StatusCode < 400
	if resp.StatusCode < 200 || (resp.StatusCode >= 300 && !(r.NoRedirect && isRedirect)) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{Method: method, URL: r.URL, StatusCode: resp.StatusCode}
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// readBody reads the response body, decoding it according to Content-Encoding.
// The transport doesn't decompress automatically when Accept-Encoding is set manually.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

func (cli *Client) getText(ctx context.Context, endpoint string, query url.Values) (string, error) {
	resp, err := cli.doRequest(ctx, &request{URL: endpoint, Query: query})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func (cli *Client) getJSON(ctx context.Context, endpoint string, query url.Values, into any) error {
	resp, err := cli.doRequest(ctx, &request{URL: endpoint, Query: query})
	if err != nil {
		return err
	}
	return cli.parseJSONResponse(endpoint, resp.Body, into)
}

func (cli *Client) postJSON(ctx context.Context, endpoint string, query url.Values, payload, into any) error {
	return cli.sendJSON(ctx, &request{URL: endpoint, Query: query}, payload, into)
}

func (cli *Client) sendJSON(ctx context.Context, r *request, payload, into any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	r.Method = http.MethodPost
	r.Body = body
	r.ContentType = "application/json;charset=UTF-8"
	resp, err := cli.doRequest(ctx, r)
	if err != nil {
		return err
	}
	return cli.parseJSONResponse(r.URL, resp.Body, into)
}

func (cli *Client) postForm(ctx context.Context, endpoint string, query, form url.Values) ([]byte, error) {
	resp, err := cli.doRequest(ctx, &request{
		Method:      http.MethodPost,
		URL:         endpoint,
		Query:       query,
		Body:        []byte(form.Encode()),
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// parseJSONResponse refreshes the session tokens included in the response, checks BaseResponse.Ret
// and decodes the body into the given value.
func (cli *Client) parseJSONResponse(endpoint string, data []byte, into any) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON in %s response", endpointName(endpoint))
	}
	res := gjson.ParseBytes(data)
	cli.refreshTokens(res)
	if ret := res.Get("BaseResponse.Ret"); ret.Exists() && ret.Int() != RetOK {
		errMsg := res.Get("BaseResponse.ErrMsg")
		if errMsg.IsObject() {
			errMsg = errMsg.Get("Buff")
		}
		return &ResponseError{Code: int(ret.Int()), Message: errMsg.String()}
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpointName(endpoint), err)
	}
	return nil
}

func parseSyncKey(res gjson.Result) *store.SyncKey {
	if !res.IsObject() || len(res.Get("List").Array()) == 0 {
		return nil
	}
	var key store.SyncKey
	if err := json.Unmarshal([]byte(res.Raw), &key); err != nil {
		return nil
	}
	return &key
}

// refreshTokens stores the skey and sync keys found in any JSON response.
func (cli *Client) refreshTokens(res gjson.Result) {
	var skey string
	if val := res.Get("SKey"); val.Type == gjson.String {
		skey = val.Str
	}
	syncKey := parseSyncKey(res.Get("SyncKey"))
	checkKey := parseSyncKey(res.Get("SyncCheckKey"))
	if skey == "" && syncKey == nil && checkKey == nil {
		return
	}
	cli.updateSession(func(sess *store.Session) {
		if skey != "" {
			sess.Skey = skey
		}
		if syncKey != nil {
			sess.SyncKey = *syncKey
		}
		if checkKey != nil {
			sess.SyncCheckKey = *checkKey
		}
	})
}

// authQuery returns the query parameters most authenticated endpoints expect.
func (cli *Client) authQuery(extra ...string) url.Values {
	sess := cli.Session()
	query := url.Values{
		"lang":        {cli.lang()},
		"pass_ticket": {sess.PassTicket},
	}
	for i := 0; i+1 < len(extra); i += 2 {
		query.Set(extra[i], extra[i+1])
	}
	return query
}
