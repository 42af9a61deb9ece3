// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package webwx implements a client for the web chat protocol: QR login, contact synchronization,
// message dispatch to registered handlers, and the send surface.
package webwx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.mau.fi/util/exsync"
	"go.mau.fi/util/ptr"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"go.mau.fi/webwx/history"
	"go.mau.fi/webwx/puid"
	"go.mau.fi/webwx/registry"
	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
	"go.mau.fi/webwx/types/events"
	"go.mau.fi/webwx/util/fingerprint"
	_ "go.mau.fi/webwx/util/fingerprint/regions"
	waLog "go.mau.fi/webwx/util/log"
	"go.mau.fi/webwx/util/msgqueue"
	"go.mau.fi/webwx/util/tlsutil"
)

// EventHandler is a function that can handle events from the client.
type EventHandler func(evt any)

var nextHandlerID uint32

type wrappedEventHandler struct {
	fn EventHandler
	id uint32
}

// Client contains everything necessary to log in to and interact with the web chat API.
type Client struct {
	// State is the contact cache. Its hooks emit the contact events of this client.
	State     *store.State
	Container store.Container
	Log       waLog.Logger
	loginLog  waLog.Logger
	syncLog   waLog.Logger
	recvLog   waLog.Logger
	sendLog   waLog.Logger

	// Registry contains the message handlers. Matching and enabling can be changed at any time.
	Registry *registry.Registry
	// History contains recently received and sent messages. Set to nil to disable history.
	History *history.Buffer
	// PUIDMap assigns chats pseudo-identifiers that survive logins. Disabled when nil.
	PUIDMap *puid.Map
	// Metrics are updated if set. See NewMetrics.
	Metrics *Metrics

	session     store.Session
	sessionLock sync.RWMutex
	fingerprint *store.BrowserFingerprint

	http   *http.Client
	jar    *cookiejar.Jar
	dialer *net.Dialer

	isLoggedIn  atomic.Bool
	loggingIn   atomic.Bool
	loginState  atomic.Int32
	cancelLoops context.CancelFunc
	loopsLock   sync.Mutex
	loopsDone   *exsync.Event
	requestSeq  atomic.Int64

	queue         *msgqueue.Queue[*types.RawMessage]
	storeWrites   *msgqueue.Queue[*storeWrite]
	syncRunning   atomic.Bool
	storeApplying atomic.Bool
	pendingFetch  *exsync.Set[string]
	mediaCache    *lru.Cache[string, string]
	sendLimiter   *rate.Limiter
	uploadCounter atomic.Uint32

	eventHandlers     []wrappedEventHandler
	eventHandlersLock sync.RWMutex

	// StartPage is the first page loaded when starting a new session. The endpoints used before the
	// login redirect are derived from its final URL.
	StartPage string
	// QRLoginPrefix is prepended to the login uuid to form the content of the QR code.
	QRLoginPrefix string

	// RequestRetries is the number of times a request is retried after a network error,
	// a timeout or a 5xx response.
	RequestRetries int
	RetryDelay     time.Duration
	// SyncCheckTimeout is the read timeout of the long-polling synccheck request.
	SyncCheckTimeout time.Duration
	// SyncCheckRetries is the number of consecutive failed sync checks after which the session is considered lost.
	SyncCheckRetries int
	// SyncRetries is the number of failed sync requests after which the session is considered lost.
	SyncRetries int
	// DispatchPollInterval is how long the dispatcher waits for a message before checking if it should stop.
	DispatchPollInterval time.Duration
	// AutoMarkAsRead marks every dispatched message as read.
	AutoMarkAsRead bool

	// PreLoginCallback is called after the login redirect is processed, but before any data is fetched.
	// If it returns false, the login is aborted with ErrLoginRejectedLocally.
	PreLoginCallback func(sess *store.Session) bool
}

const (
	DefaultStartPage     = "https://wx.qq.com/"
	DefaultQRLoginPrefix = "https://login.weixin.qq.com/l/"
	mediaCacheSize       = 256

	// DialTimeout bounds establishing a connection to the server, including through a SOCKS proxy.
	DialTimeout = 10 * time.Second
)

// NewClient initializes a new client with the given persistence container and logger.
// The container may be nil, in which case sessions aren't persisted.
//
//	container, err := sqlstore.New(ctx, "sqlite3", "file:webwx.db?_foreign_keys=on", "default", nil)
//	if err != nil {
//		panic(err)
//	}
//	client := webwx.NewClient(container, nil)
func NewClient(container store.Container, log waLog.Logger) *Client {
	if log == nil {
		log = waLog.Noop
	}
	if container == nil {
		container = store.NoopContainer{}
	}
	jar, _ := cookiejar.New(nil)
	mediaCache, _ := lru.New[string, string](mediaCacheSize)
	cli := &Client{
		Container: container,
		Log:       log,
		loginLog:  log.Sub("Login"),
		syncLog:   log.Sub("Sync"),
		recvLog:   log.Sub("Dispatch"),
		sendLog:   log.Sub("Send"),

		Registry: registry.New(),
		History:  history.New(history.DefaultSize),

		jar:    jar,
		dialer: &net.Dialer{Timeout: DialTimeout, KeepAlive: 30 * time.Second},
		loopsDone:    exsync.NewEvent(),
		queue:        msgqueue.New[*types.RawMessage](),
		storeWrites:  msgqueue.New[*storeWrite](),
		pendingFetch: exsync.NewSet[string](),
		mediaCache:   mediaCache,
		sendLimiter:  rate.NewLimiter(rate.Every(time.Second), 3),

		StartPage:            DefaultStartPage,
		QRLoginPrefix:        DefaultQRLoginPrefix,
		RequestRetries:       2,
		RetryDelay:           2 * time.Second,
		SyncCheckTimeout:     35 * time.Second,
		SyncCheckRetries:     3,
		SyncRetries:          3,
		DispatchPollInterval: 500 * time.Millisecond,
	}
	cli.http = &http.Client{Jar: jar, Transport: cli.newTransport()}
	cli.loopsDone.Set()
	cli.State = store.NewState(store.Hooks{
		NewFriend: func(friend *types.Friend) {
			cli.dispatchEvent(&events.NewFriend{Friend: friend})
		},
		NewGroup: func(group *types.Group) {
			cli.dispatchEvent(&events.NewGroup{Group: group})
		},
		NewMember: func(group *types.Group, member *types.Member) {
			cli.dispatchEvent(&events.NewMember{Group: group, Member: member})
		},
		DeletingFriend: func(friend *types.Friend) {
			cli.dispatchEvent(&events.DeletingFriend{Friend: friend})
		},
		DeletingGroup: func(group *types.Group) {
			cli.dispatchEvent(&events.DeletingGroup{Group: group})
		},
		DeletingMember: func(group *types.Group, member *types.Member) {
			cli.dispatchEvent(&events.DeletingMember{Group: group, Member: member})
		},
	}, log.Sub("State"))
	return cli
}

// SetProxyAddress is a helper method that parses a URL string and calls SetProxy or SetSOCKSProxy based on the URL scheme.
//
// Returns an error if url.Parse fails to parse the given address.
func (cli *Client) SetProxyAddress(addr string) error {
	if addr == "" {
		cli.SetProxy(nil)
		return nil
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return err
	}
	if parsed.Scheme == "http" || parsed.Scheme == "https" {
		cli.SetProxy(http.ProxyURL(parsed))
	} else if parsed.Scheme == "socks5" {
		px, err := proxy.FromURL(parsed, cli.dialer)
		if err != nil {
			return err
		}
		cli.SetSOCKSProxy(px)
	} else {
		return fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
	return nil
}

type Proxy = func(*http.Request) (*url.URL, error)

// newTransport clones the default transport with the client's bounded dialer.
func (cli *Client) newTransport() *http.Transport {
	transport := (http.DefaultTransport.(*http.Transport)).Clone()
	transport.DialContext = cli.dialer.DialContext
	return transport
}

// SetProxy sets a HTTP proxy to use for all requests.
//
// By default, the client will find the proxy from the https_proxy environment variable like Go's net/http does.
//
// To disable reading proxy info from environment variables, explicitly set the proxy to nil:
//
//	cli.SetProxy(nil)
func (cli *Client) SetProxy(proxy Proxy) {
	transport := cli.newTransport()
	transport.Proxy = proxy
	cli.http.Transport = transport
}

// SetSOCKSProxy sets a SOCKS5 proxy to use for all requests.
func (cli *Client) SetSOCKSProxy(px proxy.Dialer) {
	transport := cli.newTransport()
	transport.Proxy = nil
	if pxc, ok := px.(proxy.ContextDialer); ok {
		transport.DialContext = pxc.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return px.Dial(network, addr)
		}
	}
	cli.http.Transport = transport
}

// EnableBrowserTLS makes the client mimic the TLS handshake of the browser in its fingerprint.
// Any proxy must be set before calling this. Must be called after the fingerprint is loaded,
// which happens in Load and Login.
func (cli *Client) EnableBrowserTLS() {
	base, _ := cli.http.Transport.(*http.Transport)
	var dial tlsutil.DialContextFunc
	if base != nil && base.DialContext != nil {
		dial = base.DialContext
	}
	browser := fingerprint.DefaultBrowserName
	if cli.fingerprint != nil {
		browser = cli.fingerprint.Browser
	}
	cli.http.Transport = tlsutil.NewUTLSTransport(tlsutil.GetClientHelloID(browser), base, dial)
}

// SetHTTPClient replaces the HTTP client used for all requests. The client's cookie jar is replaced
// with the jar of this client, so cookies set during login are kept.
//
// This will overwrite any set proxy calls.
func (cli *Client) SetHTTPClient(h *http.Client) {
	h = ptr.Clone(h)
	h.Jar = cli.jar
	cli.http = h
}

// IsLoggedIn returns true if the client has an active session and its loops are running.
func (cli *Client) IsLoggedIn() bool {
	return cli != nil && cli.isLoggedIn.Load()
}

// LoginState returns the current state of the login state machine.
func (cli *Client) LoginState() types.LoginState {
	return types.LoginState(cli.loginState.Load())
}

func (cli *Client) setLoginState(state types.LoginState) {
	old := types.LoginState(cli.loginState.Swap(int32(state)))
	if old != state {
		cli.loginLog.Debugf("Login state changed: %s -> %s", old, state)
	}
}

// Session returns a copy of the current session tokens.
func (cli *Client) Session() store.Session {
	cli.sessionLock.RLock()
	defer cli.sessionLock.RUnlock()
	return cli.session
}

func (cli *Client) updateSession(fn func(sess *store.Session)) {
	cli.sessionLock.Lock()
	fn(&cli.session)
	cli.sessionLock.Unlock()
}

// Self returns the bot account's own user.
func (cli *Client) Self() *types.User {
	return cli.State.Self()
}

// WaitForLoops waits until the sync and dispatch loops of the previous session have stopped.
func (cli *Client) WaitForLoops(timeout time.Duration) bool {
	return cli.loopsDone.WaitTimeout(timeout)
}

// startLoops starts the sync and dispatch loops. The loops outlive the given context.
func (cli *Client) startLoops(ctx context.Context) {
	cli.loopsLock.Lock()
	defer cli.loopsLock.Unlock()
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cli.cancelLoops = cancel
	cli.loopsDone.Clear()
	cli.storeWrites.Clear()
	cli.syncRunning.Store(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cli.syncLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		cli.dispatchLoop(loopCtx)
	}()
	go func() {
		wg.Wait()
		cli.loopsDone.Set()
	}()
}

func (cli *Client) stopLoops() {
	cli.loopsLock.Lock()
	defer cli.loopsLock.Unlock()
	if cli.cancelLoops != nil {
		cli.cancelLoops()
		cli.cancelLoops = nil
	}
}

// Disconnect stops the sync and dispatch loops without logging out. The session stays persisted
// and can be resumed with Login.
func (cli *Client) Disconnect() {
	if cli == nil {
		return
	}
	if cli.isLoggedIn.CompareAndSwap(true, false) {
		cli.State.SetLive(false)
		cli.saveSession(context.TODO())
	}
	cli.stopLoops()
}

// Logout logs out from the server, stops the loops and deletes the persisted session.
// The browser fingerprint stays in the container.
func (cli *Client) Logout(ctx context.Context) error {
	if cli == nil {
		return ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	sess := cli.Session()
	query := url.Values{
		"redirect": {"1"},
		"type":     {"0"},
		"skey":     {sess.Skey},
	}
	form := url.Values{
		"sid": {sess.Sid},
		"uin": {fmt.Sprint(sess.Uin)},
	}
	_, err := cli.postForm(ctx, sess.URIs.Base+"/webwxlogout", query, form)
	if err != nil {
		cli.Log.Warnf("Logout request failed: %v", err)
	}
	cli.handleLoggedOut(ctx, &events.LoggedOut{Reason: events.LogoutReasonManual})
	return nil
}

// AddEventHandler registers a new function to receive all events emitted by this client.
//
// The returned integer is the event handler ID, which can be passed to RemoveEventHandler to remove it.
//
// All registered event handlers will receive all events. You should use a type switch statement to
// filter the events you want:
//
//	func myEventHandler(evt interface{}) {
//		switch v := evt.(type) {
//		case *events.Message:
//			fmt.Println("Received a message!")
//		case *events.LoggedOut:
//			fmt.Println("Session ended:", v)
//		}
//	}
//
// Message handlers that reply should be registered in Client.Registry instead.
func (cli *Client) AddEventHandler(handler EventHandler) uint32 {
	nextID := atomic.AddUint32(&nextHandlerID, 1)
	cli.eventHandlersLock.Lock()
	cli.eventHandlers = append(cli.eventHandlers, wrappedEventHandler{handler, nextID})
	cli.eventHandlersLock.Unlock()
	return nextID
}

// RemoveEventHandler removes a previously registered event handler function.
// If the function with the given ID is found, this returns true.
//
// N.B. Do not run this directly from an event handler. That would cause a deadlock because the
// event dispatcher holds a read lock on the event handler list, and this method wants a write lock
// on the same list. Instead run it in a goroutine:
//
//	func (mycli *MyClient) myEventHandler(evt interface{}) {
//		if noLongerWantEvents {
//			go mycli.WXClient.RemoveEventHandler(mycli.eventHandlerID)
//		}
//	}
func (cli *Client) RemoveEventHandler(id uint32) bool {
	cli.eventHandlersLock.Lock()
	defer cli.eventHandlersLock.Unlock()
	for index := range cli.eventHandlers {
		if cli.eventHandlers[index].id == id {
			if index == 0 {
				cli.eventHandlers[0].fn = nil
				cli.eventHandlers = cli.eventHandlers[1:]
				return true
			} else if index < len(cli.eventHandlers)-1 {
				copy(cli.eventHandlers[index:], cli.eventHandlers[index+1:])
			}
			cli.eventHandlers[len(cli.eventHandlers)-1].fn = nil
			cli.eventHandlers = cli.eventHandlers[:len(cli.eventHandlers)-1]
			return true
		}
	}
	return false
}

// RemoveEventHandlers removes all event handlers that have been registered with AddEventHandler
func (cli *Client) RemoveEventHandlers() {
	cli.eventHandlersLock.Lock()
	cli.eventHandlers = make([]wrappedEventHandler, 0, 1)
	cli.eventHandlersLock.Unlock()
}

func (cli *Client) dispatchEvent(evt any) {
	cli.eventHandlersLock.RLock()
	defer func() {
		cli.eventHandlersLock.RUnlock()
		err := recover()
		if err != nil {
			cli.Log.Errorf("Event handler panicked while handling a %T: %v\n%s", evt, err, debug.Stack())
		}
	}()
	for _, handler := range cli.eventHandlers {
		handler.fn(evt)
	}
}

// Load restores a persisted session from the container. It returns false if there was nothing
// to restore. Snapshots written by a different version are ignored, and unreadable ones are deleted.
//
// Login calls this automatically when the client has no session.
func (cli *Client) Load(ctx context.Context) (bool, error) {
	if cli == nil {
		return false, ErrClientIsNil
	}
	if err := cli.loadFingerprint(ctx); err != nil {
		return false, err
	}
	data, err := cli.Container.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	} else if len(data) == 0 {
		return false, nil
	}
	snap, err := store.DecodeSnapshot(data)
	if errors.Is(err, store.ErrSnapshotVersionMismatch) {
		cli.Log.Infof("Ignoring persisted session: %v", err)
		return false, nil
	} else if err != nil {
		cli.Log.Warnf("Discarding unreadable persisted session: %v", err)
		if err = cli.Container.Delete(ctx); err != nil {
			cli.Log.Warnf("Failed to delete unreadable session: %v", err)
		}
		return false, nil
	}
	if !cli.State.Restore(snap) {
		return false, nil
	}
	cli.updateSession(func(sess *store.Session) {
		*sess = snap.Session
	})
	for _, cookie := range snap.Cookies {
		parsed, err := url.Parse(cookie.URL)
		if err != nil {
			continue
		}
		cli.jar.SetCookies(parsed, []*http.Cookie{cookie.HTTPCookie()})
	}
	if cli.fingerprint == nil && snap.Fingerprint != nil {
		cli.fingerprint = snap.Fingerprint
	}
	chats, members := cli.State.Counts()
	cli.Log.Debugf("Restored session of %s with %d chats and %d member details", cli.State.SelfUsername(), chats, members)
	return true, nil
}

func (cli *Client) exportCookies(uris store.Endpoints) []store.Cookie {
	var cookies []store.Cookie
	seen := make(map[string]struct{})
	for _, rawURL := range []string{uris.Base, uris.Login, uris.File, uris.Push} {
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" {
			continue
		}
		for _, cookie := range cli.jar.Cookies(parsed) {
			key := parsed.Host + "\x00" + cookie.Name
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			cookies = append(cookies, store.Cookie{
				Name:  cookie.Name,
				Value: cookie.Value,
				Path:  "/",
				URL:   parsed.Scheme + "://" + parsed.Host + "/",
			})
		}
	}
	return cookies
}

// saveSession persists the current session and contact cache. Errors are only logged.
func (cli *Client) saveSession(ctx context.Context) {
	snap := cli.State.Snapshot()
	snap.Session = cli.Session()
	snap.Cookies = cli.exportCookies(snap.Session.URIs)
	snap.Fingerprint = cli.fingerprint
	data, err := store.EncodeSnapshot(snap)
	if err != nil {
		cli.Log.Errorf("Failed to encode session snapshot: %v", err)
		return
	}
	if err = cli.Container.Save(ctx, data); err != nil {
		cli.Log.Errorf("Failed to save session: %v", err)
	}
}

// loadFingerprint reads the browser fingerprint from the container, generating and storing a new one if needed.
func (cli *Client) loadFingerprint(ctx context.Context) error {
	if cli.fingerprint != nil {
		return nil
	}
	fs, ok := cli.Container.(store.FingerprintStore)
	if !ok {
		cli.fingerprint = fingerprint.GenerateFingerprint("")
		return nil
	}
	fp, err := fs.GetFingerprint(ctx)
	if err != nil {
		return fmt.Errorf("failed to get fingerprint: %w", err)
	} else if fp == nil {
		fp = fingerprint.GenerateFingerprint(fs.FingerprintRegion())
		if err = fs.PutFingerprint(ctx, fp); err != nil {
			return fmt.Errorf("failed to save fingerprint: %w", err)
		}
		cli.Log.Infof("Generated new browser fingerprint: %s %s on %s", fp.Browser, fp.BrowserVersion, fp.OSName)
	}
	cli.fingerprint = fp
	return nil
}

// PUID returns the pseudo-identifier of the chat, or an empty string if PUIDMap isn't set.
func (cli *Client) PUID(chat types.Chat) string {
	if cli.PUIDMap == nil || chat == nil {
		return ""
	}
	return cli.PUIDMap.Get(chat)
}
