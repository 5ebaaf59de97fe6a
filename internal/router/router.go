// Package router holds the session core: the registry of local sessions and the handlers that resolve every outbound
// message into a local delivery, a cross-instance publish, or an offline spool.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/friend"
	"github.com/relaychat/relay-server/internal/group"
	"github.com/relaychat/relay-server/internal/offline"
	"github.com/relaychat/relay-server/internal/protocol"
	"github.com/relaychat/relay-server/internal/redisbus"
	"github.com/relaychat/relay-server/internal/user"
)

const (
	errmsgBadCredentials = "id or password is invalid!"
	errmsgDuplicateLogin = "this account is using, input another!"
)

// disconnectTimeout bounds the repository and bus calls made on behalf of a connection that no longer exists.
const disconnectTimeout = 5 * time.Second

// Router owns the per-instance session state and implements every chat command. It is constructed once at startup and
// shared by all connections; construction installs the bus inbound handler.
type Router struct {
	registry *Registry
	users    user.Repository
	friends  friend.Repository
	groups   group.Repository
	offline  offline.Repository
	bus      *redisbus.Bus
	log      zerolog.Logger
}

// New wires the router to its repositories and the delivery bus and installs the inbound handler.
func New(
	users user.Repository,
	friends friend.Repository,
	groups group.Repository,
	offlineRepo offline.Repository,
	bus *redisbus.Bus,
	logger zerolog.Logger,
) *Router {
	rt := &Router{
		registry: NewRegistry(),
		users:    users,
		friends:  friends,
		groups:   groups,
		offline:  offlineRepo,
		bus:      bus,
		log:      logger.With().Str("component", "router").Logger(),
	}
	bus.SetInboundHandler(rt.HandleInbound)
	return rt
}

// Registry exposes the connection registry to the server shell.
func (rt *Router) Registry() *Registry {
	return rt.registry
}

// Dispatch routes one decoded command to its handler. The switch is exhaustive over the protocol command set; unknown
// frames never reach this point because the codec rejects them.
func (rt *Router) Dispatch(ctx context.Context, conn Conn, cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.Login:
		rt.handleLogin(ctx, conn, c)
	case protocol.Logout:
		rt.handleLogout(ctx, c)
	case protocol.Register:
		rt.handleRegister(ctx, conn, c)
	case protocol.OneChat:
		rt.deliver(ctx, c.To, c.Raw)
	case protocol.AddFriend:
		rt.handleAddFriend(ctx, c)
	case protocol.CreateGroup:
		rt.handleCreateGroup(ctx, c)
	case protocol.JoinGroup:
		rt.handleJoinGroup(ctx, c)
	case protocol.GroupChat:
		rt.handleGroupChat(ctx, c)
	}
}

// handleLogin authenticates the user, claims the session locally, takes over the user's bus channel, and assembles
// the login reply with spooled messages, friends, and groups.
func (rt *Router) handleLogin(ctx context.Context, conn Conn, cmd protocol.Login) {
	u, err := rt.users.GetByID(ctx, cmd.ID)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			rt.log.Error().Err(err).Int64("user_id", cmd.ID).Msg("Login lookup failed")
		}
		rt.send(conn, protocol.NewLoginAckError(protocol.ErrnoInvalid, errmsgBadCredentials))
		return
	}
	if u.Password != cmd.Password {
		rt.send(conn, protocol.NewLoginAckError(protocol.ErrnoInvalid, errmsgBadCredentials))
		return
	}

	// The persisted state is cluster-wide truth: "online" means some instance already owns this user's session.
	if u.State == user.StateOnline {
		rt.send(conn, protocol.NewLoginAckError(protocol.ErrnoDuplicateLogin, errmsgDuplicateLogin))
		return
	}

	if err := rt.registry.Bind(cmd.ID, conn); err != nil {
		// Two connections raced the same credentials past the state check; the loser is a duplicate login.
		rt.send(conn, protocol.NewLoginAckError(protocol.ErrnoDuplicateLogin, errmsgDuplicateLogin))
		return
	}

	if err := rt.bus.Subscribe(ctx, cmd.ID); err != nil {
		rt.log.Error().Err(err).Int64("user_id", cmd.ID).Msg("Channel subscribe failed; cross-instance frames will not reach this session")
	}
	if err := rt.users.UpdateState(ctx, cmd.ID, user.StateOnline); err != nil {
		rt.log.Error().Err(err).Int64("user_id", cmd.ID).Msg("Failed to persist online state")
	}

	ack := protocol.LoginAck{
		MsgID: protocol.MsgLoginAck,
		Errno: protocol.ErrnoOK,
		ID:    u.ID,
		Name:  u.Name,
	}

	// Read-then-delete is not atomic; a frame published between the two calls is lost. Accepted: a durable design
	// would delete on acknowledge.
	spooled, err := rt.offline.List(ctx, cmd.ID)
	if err != nil {
		rt.log.Error().Err(err).Int64("user_id", cmd.ID).Msg("Failed to load offline messages")
	} else if len(spooled) > 0 {
		ack.OfflineMsg = spooled
		if err := rt.offline.Remove(ctx, cmd.ID); err != nil {
			rt.log.Error().Err(err).Int64("user_id", cmd.ID).Msg("Failed to drain offline messages")
		}
	}

	ack.Friends = rt.friendEntries(ctx, cmd.ID)
	ack.Groups = rt.groupEntries(ctx, cmd.ID)

	rt.send(conn, ack)
	rt.log.Info().Int64("user_id", cmd.ID).Str("name", u.Name).Msg("User logged in")
}

func (rt *Router) friendEntries(ctx context.Context, userID int64) []string {
	friends, err := rt.friends.ListByUser(ctx, userID)
	if err != nil {
		rt.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load friends")
		return nil
	}

	entries := make([]string, 0, len(friends))
	for _, f := range friends {
		entry, err := protocol.FriendEntry(f)
		if err != nil {
			rt.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to encode friend entry")
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

func (rt *Router) groupEntries(ctx context.Context, userID int64) []string {
	groups, err := rt.groups.ListByUser(ctx, userID)
	if err != nil {
		rt.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load groups")
		return nil
	}

	entries := make([]string, 0, len(groups))
	for _, g := range groups {
		entry, err := protocol.GroupEntry(g)
		if err != nil {
			rt.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to encode group entry")
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

// handleLogout releases the session. No reply.
func (rt *Router) handleLogout(ctx context.Context, cmd protocol.Logout) {
	rt.registry.Unbind(cmd.ID)
	rt.releaseUser(ctx, cmd.ID)
	rt.log.Info().Int64("user_id", cmd.ID).Msg("User logged out")
}

// HandleDisconnect is called by the server shell when a connection drops without a logout. The reverse lookup
// identifies the user; clients cannot be relied on to send the logout frame before vanishing.
func (rt *Router) HandleDisconnect(conn Conn) {
	userID, ok := rt.registry.UnbindConn(conn.ID())
	if !ok {
		return
	}

	// The connection's context is gone; give the cleanup its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	rt.releaseUser(ctx, userID)
	rt.log.Info().Int64("user_id", userID).Msg("Session closed on disconnect")
}

// releaseUser tears down the cluster-side session state after the registry entry is gone.
func (rt *Router) releaseUser(ctx context.Context, userID int64) {
	if err := rt.bus.Unsubscribe(ctx, userID); err != nil {
		rt.log.Error().Err(err).Int64("user_id", userID).Msg("Channel unsubscribe failed")
	}
	if err := rt.users.UpdateState(ctx, userID, user.StateOffline); err != nil {
		rt.log.Error().Err(err).Int64("user_id", userID).Msg("Failed to persist offline state")
	}
}

// handleRegister creates the account and replies with the assigned id, or errno 1 on any failure including a taken
// name.
func (rt *Router) handleRegister(ctx context.Context, conn Conn, cmd protocol.Register) {
	id, err := rt.users.Create(ctx, cmd.Name, cmd.Password)
	if err != nil {
		if !errors.Is(err, user.ErrNameTaken) {
			rt.log.Error().Err(err).Str("name", cmd.Name).Msg("Registration failed")
		}
		rt.send(conn, protocol.RegisterAck{MsgID: protocol.MsgRegisterAck, Errno: protocol.ErrnoInvalid})
		return
	}

	rt.send(conn, protocol.RegisterAck{MsgID: protocol.MsgRegisterAck, Errno: protocol.ErrnoOK, ID: id})
	rt.log.Info().Int64("user_id", id).Str("name", cmd.Name).Msg("User registered")
}

// deliver resolves one frame for one recipient: local session first, then the recipient's bus channel if some other
// instance holds them, otherwise the offline spool. A failed publish is logged and the frame is dropped rather than
// spooled; spooling would duplicate it if the remote instance received the publish after all.
func (rt *Router) deliver(ctx context.Context, toID int64, frame []byte) {
	if rt.registry.Send(toID, frame) {
		return
	}

	u, err := rt.users.GetByID(ctx, toID)
	if err == nil && u.State == user.StateOnline {
		if err := rt.bus.Publish(ctx, toID, frame); err != nil {
			rt.log.Error().Err(err).Int64("to", toID).Msg("Cross-instance publish failed; frame dropped")
		}
		return
	}
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		rt.log.Error().Err(err).Int64("to", toID).Msg("Recipient lookup failed; spooling offline")
	}

	if err := rt.offline.Insert(ctx, toID, frame); err != nil {
		rt.log.Error().Err(err).Int64("to", toID).Msg("Failed to spool offline message")
	}
}

// HandleInbound receives frames published to locally subscribed channels. The recipient normally has a live session
// here; if they disconnected after the publisher's state check, the frame falls through to the spool.
func (rt *Router) HandleInbound(userID int64, payload []byte) {
	if rt.registry.Send(userID, payload) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := rt.offline.Insert(ctx, userID, payload); err != nil {
		rt.log.Error().Err(err).Int64("to", userID).Msg("Failed to spool inbound frame")
	}
}

// handleAddFriend stores the directed relation. No reply; the friend appears in the next login ack.
func (rt *Router) handleAddFriend(ctx context.Context, cmd protocol.AddFriend) {
	if err := rt.friends.Add(ctx, cmd.ID, cmd.FriendID); err != nil {
		switch {
		case errors.Is(err, friend.ErrAlreadyFriends):
		case errors.Is(err, friend.ErrUnknownUser):
			rt.log.Warn().Int64("user_id", cmd.ID).Int64("friend_id", cmd.FriendID).Msg("Friend target does not exist")
		default:
			rt.log.Error().Err(err).Int64("user_id", cmd.ID).Int64("friend_id", cmd.FriendID).Msg("Failed to add friend")
		}
	}
}

// handleCreateGroup creates the group with the sender enrolled as its creator. No reply.
func (rt *Router) handleCreateGroup(ctx context.Context, cmd protocol.CreateGroup) {
	groupID, err := rt.groups.Create(ctx, cmd.Name, cmd.Desc, cmd.ID)
	if err != nil {
		if !errors.Is(err, group.ErrNameTaken) {
			rt.log.Error().Err(err).Str("group", cmd.Name).Msg("Failed to create group")
		}
		return
	}
	rt.log.Info().Int64("group_id", groupID).Int64("user_id", cmd.ID).Str("group", cmd.Name).Msg("Group created")
}

// handleJoinGroup enrolls the sender as a normal member. No reply.
func (rt *Router) handleJoinGroup(ctx context.Context, cmd protocol.JoinGroup) {
	if err := rt.groups.AddMember(ctx, cmd.GroupID, cmd.ID, group.RoleNormal); err != nil {
		switch {
		case errors.Is(err, group.ErrAlreadyMember):
		case errors.Is(err, group.ErrNotFound):
			rt.log.Warn().Int64("group_id", cmd.GroupID).Int64("user_id", cmd.ID).Msg("Join target does not exist")
		default:
			rt.log.Error().Err(err).Int64("group_id", cmd.GroupID).Int64("user_id", cmd.ID).Msg("Failed to join group")
		}
	}
}

// handleGroupChat fans the frame out to every member except the sender, each through the same per-recipient delivery
// decision as a one-to-one message.
func (rt *Router) handleGroupChat(ctx context.Context, cmd protocol.GroupChat) {
	members, err := rt.groups.MemberIDs(ctx, cmd.GroupID, cmd.From)
	if err != nil {
		rt.log.Error().Err(err).Int64("group_id", cmd.GroupID).Msg("Failed to load group members for fan-out")
		return
	}
	for _, memberID := range members {
		rt.deliver(ctx, memberID, cmd.Raw)
	}
}

func (rt *Router) send(conn Conn, v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		rt.log.Error().Err(err).Msg("Failed to encode reply frame")
		return
	}
	if err := conn.Send(data); err != nil {
		rt.log.Warn().Err(err).Str("conn_id", conn.ID().String()).Msg("Failed to queue reply frame")
	}
}
