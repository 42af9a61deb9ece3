// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
	"go.mau.fi/webwx/types/events"
)

const (
	webAppID   = "wx782c26e4c19acffb"
	pathPrefix = "/cgi-bin/mmwebwx-bin"

	loginPollTimeout = 35 * time.Second
)

type hostCase struct {
	match, login, file, push string
}

// hostCases maps the web host to the login, file and push hosts. The first case contained in the page URL wins.
var hostCases = []hostCase{
	{"wx2.qq.com", "login.wx2.qq.com", "file.wx2.qq.com", "webpush.wx2.qq.com"},
	{"wx8.qq.com", "login.wx8.qq.com", "file.wx8.qq.com", "webpush.wx8.qq.com"},
	{"qq.com", "login.wx.qq.com", "file.wx.qq.com", "webpush.wx.qq.com"},
	{"web2.wechat.com", "login.web2.wechat.com", "file.web2.wechat.com", "webpush.web2.wechat.com"},
	{"wechat.com", "login.web.wechat.com", "file.web.wechat.com", "webpush.web.wechat.com"},
}

// EndpointsFor derives the endpoint base URLs from the URL of a web page. Hosts that aren't in
// the host table use the page's own host for every endpoint.
func EndpointsFor(pageURL string) (store.Endpoints, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return store.Endpoints{}, err
	} else if parsed.Host == "" {
		return store.Endpoints{}, fmt.Errorf("%w: missing host in %q", ErrInvalidLoginRedirect, pageURL)
	}
	origin := parsed.Scheme + "://" + parsed.Host
	eps := store.Endpoints{
		Base:  origin + pathPrefix,
		Login: origin,
		File:  origin + pathPrefix,
		Push:  origin + pathPrefix,
	}
	for _, hc := range hostCases {
		if strings.Contains(parsed.Host, hc.match) {
			eps.Login = "https://" + hc.login
			eps.File = "https://" + hc.file + pathPrefix
			eps.Push = "https://" + hc.push + pathPrefix
			break
		}
	}
	return eps, nil
}

var jsVarRegex = regexp.MustCompile(`\b(window\.[\w.]+)\s*=\s*(.+?)\s*;`)

// parseJSVars extracts the window.* assignments in a login endpoint response.
func parseJSVars(js string) map[string]string {
	vars := make(map[string]string)
	for _, match := range jsVarRegex.FindAllStringSubmatch(js, -1) {
		vars[match[1]] = strings.Trim(match[2], `"'`)
	}
	return vars
}

var errUUIDExpired = errors.New("login uuid expired")

// Login logs in to the web chat service. It blocks until the session is authenticated and the
// contact list has been pulled, then starts the sync and dispatch loops in the background.
//
// A persisted session is resumed without a scan if the server still accepts it. Otherwise a QR code
// is requested and emitted as an *events.QR event, and Login waits until it's scanned and confirmed:
//
//	client.AddEventHandler(func(evt any) {
//		if qr, ok := evt.(*events.QR); ok {
//			qrterminal.GenerateHalfBlock(qr.Codes[0], qrterminal.L, os.Stdout)
//		}
//	})
//	err := client.Login(context.Background())
//
// Cancel the context to stop waiting for a scan.
func (cli *Client) Login(ctx context.Context) error {
	if cli == nil {
		return ErrClientIsNil
	} else if cli.IsLoggedIn() {
		return ErrAlreadyLoggedIn
	} else if !cli.loggingIn.CompareAndSwap(false, true) {
		return ErrLoginInProgress
	}
	defer cli.loggingIn.Store(false)
	if !cli.WaitForLoops(10 * time.Second) {
		cli.loginLog.Warnf("Previous session's loops didn't stop in time")
	}
	if err := cli.loadFingerprint(ctx); err != nil {
		return err
	}
	sess := cli.Session()
	if !sess.IsAuthenticated() {
		if _, err := cli.Load(ctx); err != nil {
			return err
		}
		sess = cli.Session()
	}

	var pushUUID string
	if sess.IsAuthenticated() {
		err := cli.resume(ctx)
		if err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		cli.loginLog.Infof("Failed to resume previous session: %v", err)
		cli.dispatchEvent(&events.LoggedOut{Reason: events.LogoutReasonResumeFailed, Error: err})
		if sess.Uin != 0 {
			pushUUID, err = cli.fetchPushLoginUUID(ctx, sess)
			if err != nil {
				cli.loginLog.Warnf("Failed to request push login: %v", err)
			}
		}
		cli.resetSession(ctx)
		if pushUUID != "" {
			// The push login must be polled on the hosts of the previous session.
			cli.updateSession(func(newSess *store.Session) {
				newSess.URIs = sess.URIs
			})
		}
	}
	return cli.qrLogin(ctx, pushUUID)
}

// resume checks the restored session with a single sync request.
func (cli *Client) resume(ctx context.Context) error {
	cli.loginLog.Debugf("Checking restored session of %d", cli.Session().Uin)
	if err := cli.syncOnce(ctx, false); err != nil {
		return err
	}
	cli.loginLog.Infof("Resumed previous session")
	cli.finishLogin(ctx, true)
	return nil
}

// resetSession forgets all session data, cookies and cached contacts.
func (cli *Client) resetSession(ctx context.Context) {
	cli.updateSession(func(sess *store.Session) {
		*sess = store.Session{}
	})
	cli.State.Clear()
	cli.queue.Clear()
	cli.jar, _ = cookiejar.New(nil)
	cli.http.Jar = cli.jar
	if err := cli.Container.Delete(ctx); err != nil {
		cli.Log.Warnf("Failed to delete persisted session: %v", err)
	}
}

func (cli *Client) qrLogin(ctx context.Context, pushUUID string) error {
	var err error
	if cli.Session().URIs.IsEmpty() {
		var eps store.Endpoints
		eps, err = EndpointsFor(cli.StartPage)
		if err != nil {
			return err
		}
		cli.updateSession(func(sess *store.Session) {
			sess.URIs = eps
		})
	}
	for {
		uuid, isPush := pushUUID, pushUUID != ""
		pushUUID = ""
		if uuid == "" {
			cli.setLoginState(types.LoginAwaitingUUID)
			uuid, err = cli.fetchQRUUID(ctx)
			if err != nil {
				cli.setLoginState(types.LoginNoSession)
				return err
			}
		}
		cli.setLoginState(types.LoginAwaitingScan)
		cli.dispatchEvent(&events.QR{Codes: []string{cli.QRLoginPrefix + uuid}, UUID: uuid, PushLogin: isPush})

		var redirect string
		redirect, err = cli.waitForScan(ctx, uuid)
		if errors.Is(err, errUUIDExpired) {
			cli.loginLog.Infof("Login uuid %s expired, requesting a new one", uuid)
			cli.setLoginState(types.LoginUUIDExpired)
			cli.dispatchEvent(&events.UUIDExpired{})
			continue
		} else if err != nil {
			if cli.LoginState() != types.LoginRejected {
				cli.setLoginState(types.LoginNoSession)
			}
			return err
		}
		return cli.completeLogin(ctx, redirect)
	}
}

func (cli *Client) fetchQRUUID(ctx context.Context) (string, error) {
	sess := cli.Session()
	body, err := cli.getText(ctx, sess.URIs.Login+"/jslogin", url.Values{
		"appid":        {webAppID},
		"redirect_uri": {sess.URIs.Base + "/webwxnewloginpage"},
		"fun":          {"new"},
		"lang":         {cli.lang()},
		"_":            {cli.nextCounter()},
	})
	if err != nil {
		return "", fmt.Errorf("failed to request login uuid: %w", err)
	}
	vars := parseJSVars(body)
	code, _ := strconv.Atoi(vars["window.QRLogin.code"])
	uuid := vars["window.QRLogin.uuid"]
	if code != 200 {
		return "", &ResponseError{Code: code, Message: "failed to get login uuid"}
	} else if uuid == "" {
		return "", ErrNoUUID
	}
	return uuid, nil
}

func (cli *Client) fetchPushLoginUUID(ctx context.Context, sess store.Session) (string, error) {
	resp, err := cli.doRequest(ctx, &request{
		URL:   sess.URIs.Base + "/webwxpushloginurl",
		Query: url.Values{"uin": {strconv.FormatInt(sess.Uin, 10)}},
	})
	if err != nil {
		return "", err
	}
	res := gjson.ParseBytes(resp.Body)
	uuid := res.Get("uuid").String()
	if uuid == "" {
		return "", fmt.Errorf("%w: %s", ErrNoUUID, res.Get("msg").String())
	}
	return uuid, nil
}

// waitForScan polls the login status until the uuid is confirmed on the phone and returns the redirect URL.
func (cli *Client) waitForScan(ctx context.Context, uuid string) (string, error) {
	tip := "1"
	for {
		body, err := cli.doRequest(ctx, &request{
			URL: cli.Session().URIs.Login + pathPrefix + "/login",
			Query: url.Values{
				"loginicon": {"true"},
				"uuid":      {uuid},
				"tip":       {tip},
				"r":         {negativeTimestamp()},
				"_":         {cli.nextCounter()},
			},
			Timeout: loginPollTimeout,
		})
		if err != nil {
			return "", fmt.Errorf("failed to poll login status: %w", err)
		}
		tip = "0"
		vars := parseJSVars(string(body.Body))
		code, _ := strconv.Atoi(vars["window.code"])
		cli.loginLog.Debugf("Login status for %s: %d", uuid, code)
		switch code {
		case types.LoginStatusSuccess:
			redirect := vars["window.redirect_uri"]
			if redirect == "" {
				return "", fmt.Errorf("%w: missing redirect_uri", ErrInvalidLoginRedirect)
			}
			return redirect, nil
		case types.LoginStatusScanned:
			if cli.LoginState() != types.LoginAwaitingPhoneConfirm {
				cli.setLoginState(types.LoginAwaitingPhoneConfirm)
				cli.dispatchEvent(&events.ConfirmLogin{})
			}
		case types.LoginStatusExpired:
			return "", errUUIDExpired
		case types.LoginStatusWaiting:
		default:
			cli.setLoginState(types.LoginRejected)
			return "", &ResponseError{Code: code, Message: "unexpected login status"}
		}
	}
}

type loginRedirectResponse struct {
	XMLName     xml.Name `xml:"error"`
	Ret         int      `xml:"ret"`
	Message     string   `xml:"message"`
	Skey        string   `xml:"skey"`
	Wxsid       string   `xml:"wxsid"`
	Wxuin       int64    `xml:"wxuin"`
	PassTicket  string   `xml:"pass_ticket"`
	IsGrayscale int      `xml:"isgrayscale"`
}

// completeLogin reads the tokens from the login redirect and brings the session up.
func (cli *Client) completeLogin(ctx context.Context, redirect string) error {
	redirectURL := redirect
	if !strings.Contains(redirectURL, "fun=") {
		redirectURL += "&fun=new&version=v2"
	}
	resp, err := cli.doRequest(ctx, &request{URL: redirectURL, Kind: requestKindPage, NoRedirect: true})
	if err != nil {
		cli.setLoginState(types.LoginNoSession)
		return fmt.Errorf("failed to fetch login redirect: %w", err)
	}
	var parsed loginRedirectResponse
	if err = xml.Unmarshal(resp.Body, &parsed); err != nil {
		cli.setLoginState(types.LoginNoSession)
		return fmt.Errorf("%w: %w", ErrInvalidLoginRedirect, err)
	} else if parsed.Ret != 0 {
		cli.setLoginState(types.LoginRejected)
		return &ResponseError{Code: parsed.Ret, Message: parsed.Message}
	}
	eps, err := EndpointsFor(redirect)
	if err != nil {
		cli.setLoginState(types.LoginNoSession)
		return err
	}
	passTicket, err := url.QueryUnescape(parsed.PassTicket)
	if err != nil {
		passTicket = parsed.PassTicket
	}
	lang := cli.lang()
	cli.updateSession(func(sess *store.Session) {
		sess.URIs = eps
		sess.Uin = parsed.Wxuin
		sess.Sid = parsed.Wxsid
		sess.Skey = parsed.Skey
		sess.PassTicket = passTicket
		sess.GrayScale = parsed.IsGrayscale
		sess.Lang = lang
	})
	if cli.PreLoginCallback != nil {
		sess := cli.Session()
		if !cli.PreLoginCallback(&sess) {
			cli.loginLog.Infof("Login of %d rejected by PreLoginCallback", parsed.Wxuin)
			cli.setLoginState(types.LoginRejected)
			cli.resetSession(ctx)
			return ErrLoginRejectedLocally
		}
	}
	cli.loginLog.Infof("Authenticated as %d, fetching data", parsed.Wxuin)
	if err = cli.bringUp(ctx); err != nil {
		cli.setLoginState(types.LoginNoSession)
		return err
	}
	cli.finishLogin(ctx, false)
	return nil
}

// nextCounter returns the value of the incrementing _ parameter, which starts from the current millisecond timestamp.
func (cli *Client) nextCounter() string {
	cli.requestSeq.CompareAndSwap(0, time.Now().UnixMilli())
	return strconv.FormatInt(cli.requestSeq.Add(1), 10)
}
