// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package webwx

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.mau.fi/util/random"

	"go.mau.fi/webwx/registry"
	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
)

// fileAppID is the app id of file attachments sent from the web client.
const fileAppID = "wxeb7ec651dd0aefa9"

type sendMsgBody struct {
	ClientMsgID  string `json:"ClientMsgId"`
	FromUserName string `json:"FromUserName"`
	LocalID      string `json:"LocalID"`
	ToUserName   string `json:"ToUserName"`
	Type         int    `json:"Type"`
	Content      string `json:"Content,omitempty"`
	MediaID      string `json:"MediaId,omitempty"`
	EmojiFlag    int    `json:"EmojiFlag,omitempty"`
}

type sendMsgRequest struct {
	BaseRequest store.BaseRequest `json:"BaseRequest"`
	Msg         sendMsgBody       `json:"Msg"`
	Scene       int               `json:"Scene"`
}

type sendMsgResponse struct {
	MsgID   string `json:"MsgID"`
	LocalID string `json:"LocalID"`
}

type revokeRequest struct {
	BaseRequest store.BaseRequest `json:"BaseRequest"`
	ClientMsgID string            `json:"ClientMsgId"`
	SvrMsgID    string            `json:"SvrMsgId"`
	ToUserName  string            `json:"ToUserName"`
}

// sendEndpoint describes where and how a message of some raw type is sent.
type sendEndpoint struct {
	path    string
	query   url.Values
	rawType int
	msgType types.MessageType
}

var (
	sendTextEndpoint     = sendEndpoint{"webwxsendmsg", nil, types.RawMsgText, types.MsgText}
	sendImageEndpoint    = sendEndpoint{"webwxsendmsgimg", url.Values{"fun": {"async"}, "f": {"json"}}, types.RawMsgImage, types.MsgImage}
	sendVideoEndpoint    = sendEndpoint{"webwxsendvideomsg", url.Values{"fun": {"async"}, "f": {"json"}}, types.RawMsgVideo, types.MsgVideo}
	sendEmoticonEndpoint = sendEndpoint{"webwxsendemoticon", url.Values{"fun": {"sys"}}, types.RawMsgEmoticon, types.MsgEmoticon}
	sendFileEndpoint     = sendEndpoint{"webwxsendappmsg", url.Values{"fun": {"async"}, "f": {"json"}}, types.AppMsgFile, types.MsgFile}
)

// GenerateLocalID generates a client-side message ID: the millisecond timestamp followed by four random digits.
func GenerateLocalID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + random.StringCharset(4, "0123456789")
}

func (cli *Client) send(ctx context.Context, to types.Chat, ep sendEndpoint, msg sendMsgBody, path string) (*types.SentMessage, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	} else if to == nil || to.ID() == "" {
		return nil, ErrUnknownChat
	}
	if err := cli.sendLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	localID := GenerateLocalID()
	msg.ClientMsgID = localID
	msg.LocalID = localID
	msg.FromUserName = cli.State.SelfUsername()
	msg.ToUserName = to.ID()
	msg.Type = ep.rawType

	sess := cli.Session()
	query := url.Values{"pass_ticket": {sess.PassTicket}}
	for key, values := range ep.query {
		query[key] = values
	}
	sent := &types.SentMessage{
		LocalID:  localID,
		Type:     ep.msgType,
		RawType:  ep.rawType,
		Receiver: to,
		Text:     msg.Content,
		MediaID:  msg.MediaID,
		Path:     path,
		SendTime: time.Now(),
	}
	var resp sendMsgResponse
	err := cli.postJSON(ctx, sess.URIs.Base+"/"+ep.path, query, &sendMsgRequest{
		BaseRequest: sess.BaseRequest(),
		Msg:         msg,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s to %s: %w", ep.msgType, to.ID(), err)
	}
	sent.ResponseTime = time.Now()
	sent.ID, _ = strconv.ParseInt(resp.MsgID, 10, 64)
	if resp.LocalID != "" {
		sent.LocalID = resp.LocalID
	}
	cli.History.Add(sent)
	cli.Metrics.incSent(string(ep.msgType))
	cli.sendLog.Debugf("Sent %s %d to %s in %s", ep.msgType, sent.ID, to.ID(), sent.Latency())
	return sent, nil
}

// SendText sends a text message.
func (cli *Client) SendText(ctx context.Context, to types.Chat, text string) (*types.SentMessage, error) {
	return cli.send(ctx, to, sendTextEndpoint, sendMsgBody{Content: text}, "")
}

// SendImage uploads and sends an image. GIFs are sent as emoticons, like the web client does.
func (cli *Client) SendImage(ctx context.Context, to types.Chat, path string) (*types.SentMessage, error) {
	if strings.EqualFold(filepath.Ext(path), ".gif") {
		return cli.SendEmoticon(ctx, to, path)
	}
	mediaID, err := cli.UploadMedia(ctx, path, to, MediaPicture)
	if err != nil {
		return nil, err
	}
	return cli.send(ctx, to, sendImageEndpoint, sendMsgBody{MediaID: mediaID}, path)
}

// SendVideo uploads and sends a video.
func (cli *Client) SendVideo(ctx context.Context, to types.Chat, path string) (*types.SentMessage, error) {
	mediaID, err := cli.UploadMedia(ctx, path, to, MediaVideo)
	if err != nil {
		return nil, err
	}
	return cli.send(ctx, to, sendVideoEndpoint, sendMsgBody{MediaID: mediaID}, path)
}

// SendEmoticon uploads and sends a sticker.
func (cli *Client) SendEmoticon(ctx context.Context, to types.Chat, path string) (*types.SentMessage, error) {
	mediaID, err := cli.UploadMedia(ctx, path, to, MediaDocument)
	if err != nil {
		return nil, err
	}
	return cli.send(ctx, to, sendEmoticonEndpoint, sendMsgBody{MediaID: mediaID, EmojiFlag: 2}, path)
}

// SendFile uploads and sends any file as an attachment.
func (cli *Client) SendFile(ctx context.Context, to types.Chat, path string) (*types.SentMessage, error) {
	upload, err := cli.uploadMedia(ctx, path, to, MediaDocument)
	if err != nil {
		return nil, err
	}
	content := buildFileContent(filepath.Base(path), upload.size, upload.mediaID)
	return cli.send(ctx, to, sendFileEndpoint, sendMsgBody{Content: content}, path)
}

func buildFileContent(name string, size int64, mediaID string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return fmt.Sprintf(
		`<appmsg appid="%s" sdkver=""><title>%s</title><des/><action/><type>%d</type><content/><url/><lowurl/>`+
			`<appattach><totallen>%d</totallen><attachid>%s</attachid><fileext>%s</fileext></appattach><extinfo/></appmsg>`,
		fileAppID, html.EscapeString(name), types.AppMsgFile, size, mediaID, html.EscapeString(ext),
	)
}

// SendRaw sends a message with an arbitrary raw type and content through the text message endpoint.
func (cli *Client) SendRaw(ctx context.Context, to types.Chat, rawType int, content string) (*types.SentMessage, error) {
	ep := sendTextEndpoint
	ep.rawType = rawType
	ep.msgType = types.ParseMessageType(rawType, 0, 0)
	return cli.send(ctx, to, ep, sendMsgBody{Content: content}, "")
}

// Reply sends the reply of a handler to the given chat.
func (cli *Client) Reply(ctx context.Context, to types.Chat, reply *registry.Reply) (*types.SentMessage, error) {
	switch reply.Type {
	case types.MsgText, "":
		return cli.SendText(ctx, to, reply.Text)
	case types.MsgImage:
		return cli.SendImage(ctx, to, reply.Path)
	case types.MsgVideo:
		return cli.SendVideo(ctx, to, reply.Path)
	case types.MsgEmoticon:
		return cli.SendEmoticon(ctx, to, reply.Path)
	case types.MsgFile:
		return cli.SendFile(ctx, to, reply.Path)
	default:
		return nil, fmt.Errorf("%w %s", ErrUnsupportedSendType, reply.Type)
	}
}

// Forward sends a copy of a received message to another chat. Media is forwarded by reference,
// so nothing is downloaded.
func (cli *Client) Forward(ctx context.Context, msg *types.Message, to types.Chat) (*types.SentMessage, error) {
	if msg == nil || msg.Raw == nil {
		return nil, fmt.Errorf("%w: message has no raw data", ErrUnsupportedSendType)
	}
	content := types.NormalizeContent(msg.Raw.Content)
	if msg.Member != nil {
		// Drop the sender prefix of group messages
		if idx := strings.Index(content, ":\n"); idx > 0 && strings.HasPrefix(content, "@") {
			content = content[idx+2:]
		}
	}
	switch msg.Type {
	case types.MsgText:
		return cli.SendText(ctx, to, msg.Text)
	case types.MsgImage:
		return cli.send(ctx, to, sendImageEndpoint, sendMsgBody{Content: content, MediaID: msg.MediaID}, "")
	case types.MsgVideo:
		return cli.send(ctx, to, sendVideoEndpoint, sendMsgBody{Content: content, MediaID: msg.MediaID}, "")
	case types.MsgEmoticon:
		return cli.send(ctx, to, sendEmoticonEndpoint, sendMsgBody{Content: content, EmojiFlag: 2}, "")
	case types.MsgURL, types.MsgFile:
		ep := sendFileEndpoint
		ep.rawType = types.RawMsgApp
		ep.msgType = msg.Type
		return cli.send(ctx, to, ep, sendMsgBody{Content: content}, "")
	case types.MsgCard:
		return cli.SendRaw(ctx, to, types.RawMsgShareCard, content)
	case types.MsgLocation:
		return cli.SendRaw(ctx, to, types.RawMsgText, msg.Text)
	default:
		return nil, fmt.Errorf("%w %s", ErrUnsupportedSendType, msg.Type)
	}
}

// Revoke recalls a message sent by this client. The server only allows it within two minutes of sending.
func (cli *Client) Revoke(ctx context.Context, sent *types.SentMessage) error {
	if cli == nil {
		return ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return ErrNotLoggedIn
	} else if sent == nil || sent.Receiver == nil {
		return ErrUnknownChat
	}
	sess := cli.Session()
	return cli.postJSON(ctx, sess.URIs.Base+"/webwxrevokemsg", cli.authQuery(), &revokeRequest{
		BaseRequest: sess.BaseRequest(),
		ClientMsgID: sent.LocalID,
		SvrMsgID:    strconv.FormatInt(sent.ID, 10),
		ToUserName:  sent.Receiver.ID(),
	}, nil)
}
