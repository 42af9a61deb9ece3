// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"encoding/xml"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ChatResolver resolves identifiers to chats while a message is being parsed.
// Implementations must never return nil: unknown identifiers become placeholders.
type ChatResolver interface {
	ResolveChat(username string) Chat
	ResolveMember(group *Group, username string) *Member
}

var (
	memberPrefixRegex = regexp.MustCompile(`^(@[\da-f]+):\n`)
	videoPrefixRegex  = regexp.MustCompile(`^[\da-zA-Z\-_]+:\n`)
	locationRegex     = regexp.MustCompile(`^([^\n]+):\n`)
	amountRegex       = regexp.MustCompile(`\d+\.\d+`)
)

// NormalizeContent converts the HTML-ish message content of the web protocol into plain text.
func NormalizeContent(content string) string {
	return html.UnescapeString(strings.ReplaceAll(content, "<br/>", "\n"))
}

// ParseMessage wraps a raw message into a Message. receivedAt is clamped so that it's never before
// the server-assigned creation time.
func ParseMessage(raw *RawMessage, selfUsername string, resolver ChatResolver, receivedAt time.Time) *Message {
	msg := &Message{
		ID:          raw.NewMsgID,
		ServerID:    raw.MsgID,
		Type:        ParseMessageType(raw.MsgType, raw.AppMsgType, raw.SubMsgType),
		Raw:         raw,
		FromSelf:    selfUsername != "" && raw.FromUserName == selfUsername,
		CreateTime:  raw.CreateTime.Time,
		ReceiveTime: receivedAt,
		MediaID:     raw.MediaID,
		URL:         raw.URL,
		ImgWidth:    raw.ImgWidth,
		ImgHeight:   raw.ImgHeight,
		PlayLength:  raw.PlayLength,
		VoiceLength: raw.VoiceLength,
	}
	if msg.CreateTime.IsZero() || msg.ReceiveTime.Before(msg.CreateTime) {
		if msg.CreateTime.IsZero() {
			msg.CreateTime = msg.ReceiveTime
		} else {
			msg.ReceiveTime = msg.CreateTime
		}
	}
	msg.Sender = resolver.ResolveChat(raw.FromUserName)
	msg.Receiver = resolver.ResolveChat(raw.ToUserName)
	if msg.FromSelf {
		msg.Chat = msg.Receiver
	} else {
		msg.Chat = msg.Sender
	}

	content := NormalizeContent(raw.Content)
	var memberUsername string
	if IsGroupID(raw.FromUserName) {
		if match := memberPrefixRegex.FindStringSubmatch(content); match != nil {
			memberUsername = match[1]
			content = content[len(match[0]):]
		}
		if msg.Type == MsgVideo {
			content = videoPrefixRegex.ReplaceAllString(content, "")
		}
	}
	if group, ok := msg.Chat.(*Group); ok {
		if memberUsername != "" {
			msg.Member = resolver.ResolveMember(group, memberUsername)
		} else if msg.Type != MsgNotice {
			msg.Member = group.Self()
		}
	}

	msg.fillContent(content)

	if group, ok := msg.Chat.(*Group); ok && msg.Type == MsgText {
		if self := group.Self(); self != nil {
			msg.IsAt = IsMentioned(msg.Text, self.Name())
		}
	}
	return msg
}

// IsMentioned returns true if the text @-mentions the given name.
func IsMentioned(text, name string) bool {
	if name == "" {
		return false
	}
	pattern, err := regexp.Compile(`@` + regexp.QuoteMeta(name) + `(?:\x{2005}|\s|$)`)
	if err != nil {
		return false
	}
	return pattern.MatchString(text)
}

func (msg *Message) fillContent(content string) {
	raw := msg.Raw
	var tree *xmlNode
	switch msg.Type {
	case MsgText, MsgNotice, MsgLocation:
	default:
		tree = parseXML(content)
	}
	switch msg.Type {
	case MsgText, MsgNotice:
		msg.Text = content
	case MsgLocation:
		if match := locationRegex.FindStringSubmatch(content); match != nil {
			msg.Text = match[1]
		}
		msg.Location = parseLocation(NormalizeContent(raw.OriContent))
	case MsgURL:
		msg.Text = tree.findText("title")
		if sender, ok := msg.Sender.(*OfficialAccount); ok && sender != nil {
			msg.Articles = tree.articles()
		}
	case MsgCash:
		msg.Text = tree.findText("title")
		msg.Cash = tree.cash()
	case MsgNewFriend:
		msg.Text = tree.attr("content")
		card := raw.RecommendInfo.Contact()
		msg.Card = NewUser(&card)
	case MsgCard:
		card := raw.RecommendInfo.Contact()
		msg.Card = NewUser(&card)
		msg.Text = msg.Card.Name()
	case MsgRecalled:
		msg.Text = tree.findText("replacemsg")
		msg.RecalledID, _ = strconv.ParseInt(tree.findText("msgid"), 10, 64)
	case MsgFile:
		msg.FileName = tree.findText("title")
		if msg.FileName == "" {
			msg.FileName = raw.FileName
		}
		msg.Text = msg.FileName
		msg.FileSize, _ = strconv.ParseInt(tree.findText("totallen"), 10, 64)
		if msg.FileSize == 0 {
			msg.FileSize, _ = strconv.ParseInt(raw.FileSize, 10, 64)
		}
	case MsgImage:
		msg.FileSize = tree.findAttrInt("img", "hdlength")
	case MsgVoice:
		msg.FileSize = tree.findAttrInt("voicemsg", "length")
	case MsgVideo:
		msg.FileSize = tree.findAttrInt("videomsg", "length")
	case MsgEmoticon:
		msg.FileSize = tree.findAttrInt("emoji", "len")
	case MsgSystem, MsgUnknown:
		msg.Text = content
	}
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []*xmlNode `xml:",any"`
}

func parseXML(content string) *xmlNode {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "<") {
		return nil
	}
	decoder := xml.NewDecoder(strings.NewReader(content))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity
	var root xmlNode
	if err := decoder.Decode(&root); err != nil {
		return nil
	}
	return &root
}

// find returns the first descendant (or the node itself) with the given name, depth-first.
func (node *xmlNode) find(name string) *xmlNode {
	if node == nil {
		return nil
	}
	if node.XMLName.Local == name {
		return node
	}
	for _, child := range node.Children {
		if found := child.find(name); found != nil {
			return found
		}
	}
	return nil
}

func (node *xmlNode) child(name string) *xmlNode {
	if node == nil {
		return nil
	}
	for _, child := range node.Children {
		if child.XMLName.Local == name {
			return child
		}
	}
	return nil
}

func (node *xmlNode) text() string {
	if node == nil {
		return ""
	}
	return strings.TrimSpace(node.Content)
}

func (node *xmlNode) findText(name string) string {
	return node.find(name).text()
}

func (node *xmlNode) attr(name string) string {
	if node == nil {
		return ""
	}
	for _, attr := range node.Attrs {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

func (node *xmlNode) findAttrInt(element, attr string) int64 {
	val, _ := strconv.ParseInt(node.find(element).attr(attr), 10, 64)
	return val
}

func (node *xmlNode) articles() []Article {
	category := node.find("mmreader").child("category")
	if category == nil {
		return nil
	}
	var articles []Article
	for _, item := range category.Children {
		if item.XMLName.Local != "item" {
			continue
		}
		articles = append(articles, Article{
			Title:   item.child("title").text(),
			Summary: item.child("digest").text(),
			URL:     item.child("url").text(),
			Cover:   item.child("cover").text(),
		})
	}
	return articles
}

func (node *xmlNode) cash() *Cash {
	info := node.find("wcpayinfo")
	if info == nil {
		return nil
	}
	cash := &Cash{
		Description: info.child("pay_memo").text(),
		ID:          info.child("transcationid").text(),
	}
	if amount := amountRegex.FindString(info.child("feedesc").text()); amount != "" {
		cash.Amount, _ = strconv.ParseFloat(amount, 64)
	}
	return cash
}

func parseLocation(content string) *Location {
	location := parseXML(content).find("location")
	if location == nil {
		return nil
	}
	loc := &Location{
		Label:   location.attr("label"),
		PoiName: location.attr("poiname"),
	}
	loc.X, _ = strconv.ParseFloat(location.attr("x"), 64)
	loc.Y, _ = strconv.ParseFloat(location.attr("y"), 64)
	loc.Scale, _ = strconv.Atoi(location.attr("scale"))
	return loc
}
