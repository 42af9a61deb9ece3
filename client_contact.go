package webwx

import (
	"context"
	"fmt"

	"go.mau.fi/webwx/appstate"
	"go.mau.fi/webwx/store"
	"go.mau.fi/webwx/types"
)

func (cli *Client) checkChatOp(chat types.Chat) error {
	if cli == nil {
		return ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return ErrNotLoggedIn
	} else if chat == nil || chat.ID() == "" {
		return ErrUnknownChat
	}
	return nil
}

func (cli *Client) checkGroupOp(group *types.Group) error {
	if group == nil {
		return cli.checkChatOp(nil)
	}
	return cli.checkChatOp(group)
}

func (cli *Client) opLog(ctx context.Context, op appstate.OpLog) error {
	sess := cli.Session()
	return cli.postJSON(ctx, sess.URIs.Base+"/webwxoplog", cli.authQuery(), &struct {
		BaseRequest store.BaseRequest `json:"BaseRequest"`
		appstate.OpLog
	}{sess.BaseRequest(), op}, nil)
}

// SetRemarkName sets the local alias of a friend. The store is updated by the next sync.
func (cli *Client) SetRemarkName(ctx context.Context, user types.Chat, remarkName string) error {
	if err := cli.checkChatOp(user); err != nil {
		return err
	}
	if err := cli.opLog(ctx, appstate.BuildRemarkName(user.ID(), remarkName)); err != nil {
		return fmt.Errorf("failed to set remark name of %s: %w", user.ID(), err)
	}
	return nil
}

// Pin pins or unpins a chat.
func (cli *Client) Pin(ctx context.Context, chat types.Chat, pinned bool) error {
	if err := cli.checkChatOp(chat); err != nil {
		return err
	}
	if err := cli.opLog(ctx, appstate.BuildPin(chat.ID(), pinned)); err != nil {
		return fmt.Errorf("failed to change pin of %s: %w", chat.ID(), err)
	}
	return nil
}

func (cli *Client) verifyUser(ctx context.Context, opcode appstate.VerifyOpcode, username, ticket, content string) error {
	sess := cli.Session()
	return cli.postJSON(ctx, sess.URIs.Base+"/webwxverifyuser", cli.authQuery("r", timestampMS()), &struct {
		BaseRequest store.BaseRequest `json:"BaseRequest"`
		appstate.VerifyRequest
	}{sess.BaseRequest(), appstate.BuildVerify(opcode, username, ticket, content, sess.Skey)}, nil)
}

// AddFriend sends a friend request to a user, usually a group member.
func (cli *Client) AddFriend(ctx context.Context, user types.Chat, verifyContent string) error {
	if err := cli.checkChatOp(user); err != nil {
		return err
	}
	return cli.verifyUser(ctx, appstate.VerifyAddFriend, user.ID(), "", verifyContent)
}

// FollowMP follows an official account.
func (cli *Client) FollowMP(ctx context.Context, account types.Chat) error {
	if err := cli.checkChatOp(account); err != nil {
		return err
	}
	return cli.verifyUser(ctx, appstate.VerifyFollowMP, account.ID(), "", "")
}

// AcceptFriend accepts the friend request in the given NEW_FRIEND message and returns the new friend.
func (cli *Client) AcceptFriend(ctx context.Context, msg *types.Message) (*types.Friend, error) {
	if msg == nil || msg.Type != types.MsgNewFriend || msg.Raw == nil {
		return nil, fmt.Errorf("message is not a friend request")
	} else if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	info := msg.Raw.RecommendInfo
	if err := cli.verifyUser(ctx, appstate.VerifyAcceptUser, info.UserName, info.Ticket, ""); err != nil {
		return nil, fmt.Errorf("failed to accept friend request from %s: %w", info.UserName, err)
	}
	records, err := cli.batchGetContact(ctx, []batchContactItem{{UserName: info.UserName}})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch new friend %s: %w", info.UserName, err)
	}
	if err = cli.writeStore(ctx, records, nil); err != nil {
		return nil, err
	}
	if friend := cli.State.Friend(info.UserName); friend != nil {
		return friend, nil
	}
	contact := info.Contact()
	return &types.Friend{User: *types.NewUser(&contact)}, nil
}

// CreateGroup creates a group with the given users. At least two users other than the bot are needed.
func (cli *Client) CreateGroup(ctx context.Context, users []types.Chat, topic string) (*types.Group, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	usernames := make([]string, 0, len(users))
	for _, user := range users {
		if user != nil {
			usernames = append(usernames, user.ID())
		}
	}
	create, err := appstate.BuildCreateChatroom(cli.State.SelfUsername(), usernames, topic)
	if err != nil {
		return nil, err
	}
	sess := cli.Session()
	var resp struct {
		ChatRoomName string `json:"ChatRoomName"`
	}
	err = cli.postJSON(ctx, sess.URIs.Base+"/webwxcreatechatroom", cli.authQuery("r", timestampMS()), &struct {
		BaseRequest store.BaseRequest `json:"BaseRequest"`
		appstate.CreateChatroom
	}{sess.BaseRequest(), create}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	} else if resp.ChatRoomName == "" {
		return nil, fmt.Errorf("server didn't return the identifier of the new group")
	}
	cli.Log.Infof("Created group %s with %d members", resp.ChatRoomName, create.MemberCount)
	return cli.UpdateGroup(ctx, resp.ChatRoomName)
}

func (cli *Client) updateChatroom(ctx context.Context, update appstate.ChatroomUpdate) error {
	sess := cli.Session()
	err := cli.postJSON(ctx, sess.URIs.Base+"/webwxupdatechatroom", cli.authQuery("fun", string(update.Func)), &struct {
		BaseRequest store.BaseRequest `json:"BaseRequest"`
		appstate.ChatroomUpdate
	}{sess.BaseRequest(), update}, nil)
	if err != nil {
		return fmt.Errorf("failed to %s in %s: %w", update.Func, update.ChatRoomName, err)
	}
	return nil
}

func chatIDs(chats []types.Chat) []string {
	ids := make([]string, 0, len(chats))
	for _, chat := range chats {
		if chat != nil && chat.ID() != "" {
			ids = append(ids, chat.ID())
		}
	}
	return ids
}

// AddGroupMembers adds users to a group. If invite is true, the users get an invitation instead.
// Large groups only accept invitations.
func (cli *Client) AddGroupMembers(ctx context.Context, group *types.Group, users []types.Chat, invite bool) error {
	if err := cli.checkGroupOp(group); err != nil {
		return err
	}
	return cli.updateChatroom(ctx, appstate.BuildAddMembers(group.ID(), chatIDs(users), invite))
}

// RemoveGroupMembers removes members from a group. Only the group owner can do this.
func (cli *Client) RemoveGroupMembers(ctx context.Context, group *types.Group, members []types.Chat) error {
	if err := cli.checkGroupOp(group); err != nil {
		return err
	}
	return cli.updateChatroom(ctx, appstate.BuildRemoveMembers(group.ID(), chatIDs(members)))
}

// RenameGroup changes the topic of a group. Topics longer than the server allows are truncated.
func (cli *Client) RenameGroup(ctx context.Context, group *types.Group, topic string) error {
	if err := cli.checkGroupOp(group); err != nil {
		return err
	}
	return cli.updateChatroom(ctx, appstate.BuildRename(group.ID(), topic))
}

// MarkAsRead clears the unread indicator of a chat on other devices.
func (cli *Client) MarkAsRead(ctx context.Context, chat types.Chat) error {
	if err := cli.checkChatOp(chat); err != nil {
		return err
	}
	return cli.statusNotify(ctx, statusNotifyMarkRead, cli.State.SelfUsername(), chat.ID())
}

// GetContacts fetches the full records of the given identifiers from the server and stores them.
// When called from an event handler, the store is updated after the handler returns, and the
// returned chats are built from the fetched records.
func (cli *Client) GetContacts(ctx context.Context, usernames ...string) ([]types.Chat, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	items := make([]batchContactItem, len(usernames))
	for i, username := range usernames {
		items[i] = batchContactItem{UserName: username}
	}
	records, err := cli.batchGetContact(ctx, items)
	if err != nil {
		return nil, err
	}
	if err = cli.writeStore(ctx, records, nil); err != nil {
		return nil, err
	}
	self := cli.State.SelfUsername()
	chats := make([]types.Chat, 0, len(records))
	for i := range records {
		chat := cli.State.Chat(records[i].UserName)
		if chat == nil && types.Classify(&records[i]) != types.KindMember {
			chat = types.NewChat(&records[i], self)
			if group, ok := chat.(*types.Group); ok && group.IsShadow() {
				continue
			}
		}
		if chat != nil {
			chats = append(chats, chat)
		}
	}
	return chats, nil
}

// UpdateGroup refreshes a group and the details of its members.
func (cli *Client) UpdateGroup(ctx context.Context, username string) (*types.Group, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	} else if !cli.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	} else if !types.IsGroupID(username) {
		return nil, fmt.Errorf("%w: %s is not a group", ErrUnknownChat, username)
	}
	if err := cli.refreshGroups(ctx, []string{username}); err != nil {
		return nil, fmt.Errorf("failed to fetch group %s: %w", username, err)
	}
	group := cli.State.Group(username)
	if group == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChat, username)
	}
	var missing []string
	for _, member := range group.Members {
		missing = append(missing, member.ID())
	}
	if len(missing) > 0 {
		if err := cli.fetchMemberDetails(ctx, map[string][]string{username: missing}); err != nil {
			cli.Log.Warnf("Failed to fetch member details of %s: %v", username, err)
		}
		group = cli.State.Group(username)
	}
	return group, nil
}

// GroupOf returns the group a member belongs to.
func (cli *Client) GroupOf(member *types.Member) *types.Group {
	if member == nil {
		return nil
	}
	return cli.State.Group(member.GroupUsername)
}

// FileHelper returns the file transfer assistant chat. Messages sent to it only show up on the
// bot account's own devices.
func (cli *Client) FileHelper() types.Chat {
	if chat := cli.State.Chat(types.FileHelper); chat != nil {
		return chat
	}
	return types.NewUser(&types.RawContact{UserName: types.FileHelper, NickName: types.FileHelperName})
}

// FriendStats counts the sex, province and city of the bot's friends.
func (cli *Client) FriendStats() *types.Stats {
	return types.CollectStats(cli.State.Friends())
}

// FriendStatsText renders FriendStats with the default sections, titled with the bot's own name.
func (cli *Client) FriendStatsText() string {
	var source string
	if self := cli.Self(); self != nil {
		source = self.Name()
	}
	return cli.FriendStats().Text(types.DefaultStatsTextOptions(source, "微信好友"))
}
