// Package protocol implements the chat wire codec: newline-delimited JSON frames tagged with an integer msgid.
// Inbound frames decode into a closed set of command variants; outbound acks are plain structs marshalled per frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaychat/relay-server/internal/group"
	"github.com/relaychat/relay-server/internal/user"
)

// MsgID tags every frame on the wire. The values are fixed by deployed clients.
type MsgID int

const (
	MsgLogin       MsgID = 1
	MsgLoginAck    MsgID = 2
	MsgRegister    MsgID = 3
	MsgRegisterAck MsgID = 4
	MsgOneChat     MsgID = 5
	MsgAddFriend   MsgID = 6
	MsgCreateGroup MsgID = 7
	MsgJoinGroup   MsgID = 8
	MsgGroupChat   MsgID = 9
	MsgLogout      MsgID = 10
)

// Errno values carried in ack frames.
const (
	ErrnoOK             = 0
	ErrnoInvalid        = 1
	ErrnoDuplicateLogin = 2
)

// ErrMissingMsgID is returned when a frame has no msgid field.
var ErrMissingMsgID = errors.New("frame has no msgid")

// UnknownMsgIDError is returned when a frame carries a msgid with no corresponding command.
type UnknownMsgIDError struct {
	MsgID MsgID
}

func (e *UnknownMsgIDError) Error() string {
	return fmt.Sprintf("no handler for msgid %d", e.MsgID)
}

// Command is the closed set of inbound commands. Exactly the types in this package implement it.
type Command interface {
	isCommand()
}

// Login authenticates an existing user on this connection.
type Login struct {
	ID       int64  `json:"id"`
	Password string `json:"password"`
}

// Logout releases the sender's session.
type Logout struct {
	ID int64 `json:"id"`
}

// Register creates a new account.
type Register struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// OneChat is a one-to-one message. Raw holds the original frame bytes; delivery to the recipient is byte-for-byte.
type OneChat struct {
	From int64  `json:"id"`
	To   int64  `json:"toid"`
	Msg  string `json:"msg"`
	Time string `json:"time"`

	Raw []byte `json:"-"`
}

// AddFriend stores a friend relation for the sender.
type AddFriend struct {
	ID       int64 `json:"id"`
	FriendID int64 `json:"friendid"`
}

// CreateGroup creates a group with the sender as its creator.
type CreateGroup struct {
	ID   int64  `json:"id"`
	Name string `json:"groupname"`
	Desc string `json:"groupdesc"`
}

// JoinGroup adds the sender to an existing group.
type JoinGroup struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"groupid"`
}

// GroupChat is a message fanned out to every group member except the sender. Raw holds the original frame bytes.
type GroupChat struct {
	From    int64  `json:"id"`
	GroupID int64  `json:"groupid"`
	Msg     string `json:"msg"`
	Time    string `json:"time"`

	Raw []byte `json:"-"`
}

func (Login) isCommand()       {}
func (Logout) isCommand()      {}
func (Register) isCommand()    {}
func (OneChat) isCommand()     {}
func (AddFriend) isCommand()   {}
func (CreateGroup) isCommand() {}
func (JoinGroup) isCommand()   {}
func (GroupChat) isCommand()   {}

// Decode parses one frame into its command variant. Unknown or missing msgids are rejected here so that dispatch can
// be an exhaustive switch over the Command set. The chat variants retain a copy of the frame bytes for forwarding.
func Decode(data []byte) (Command, error) {
	var env struct {
		MsgID *MsgID `json:"msgid"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if env.MsgID == nil {
		return nil, ErrMissingMsgID
	}

	switch *env.MsgID {
	case MsgLogin:
		return decodeInto[Login](data)
	case MsgLogout:
		return decodeInto[Logout](data)
	case MsgRegister:
		return decodeInto[Register](data)
	case MsgOneChat:
		cmd, err := decodeInto[OneChat](data)
		if err != nil {
			return nil, err
		}
		cmd.Raw = cloneBytes(data)
		return cmd, nil
	case MsgAddFriend:
		return decodeInto[AddFriend](data)
	case MsgCreateGroup:
		return decodeInto[CreateGroup](data)
	case MsgJoinGroup:
		return decodeInto[JoinGroup](data)
	case MsgGroupChat:
		cmd, err := decodeInto[GroupChat](data)
		if err != nil {
			return nil, err
		}
		cmd.Raw = cloneBytes(data)
		return cmd, nil
	default:
		return nil, &UnknownMsgIDError{MsgID: *env.MsgID}
	}
}

func decodeInto[T Command](data []byte) (T, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse frame body: %w", err)
	}
	return cmd, nil
}

// cloneBytes copies the frame out of the reader's scratch buffer, which is reused for the next frame.
func cloneBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// LoginAck is the reply to a Login command. The nested arrays carry JSON-encoded strings rather than objects; this
// shape is a wire compatibility constraint.
type LoginAck struct {
	MsgID      MsgID    `json:"msgid"`
	Errno      int      `json:"errno"`
	Errmsg     string   `json:"errmsg,omitempty"`
	ID         int64    `json:"id,omitempty"`
	Name       string   `json:"name,omitempty"`
	OfflineMsg []string `json:"offlinemsg,omitempty"`
	Friends    []string `json:"friends,omitempty"`
	Groups     []string `json:"groups,omitempty"`
}

// NewLoginAckError builds a failed login reply.
func NewLoginAckError(errno int, errmsg string) LoginAck {
	return LoginAck{MsgID: MsgLoginAck, Errno: errno, Errmsg: errmsg}
}

// RegisterAck is the reply to a Register command. ID is set only on success.
type RegisterAck struct {
	MsgID MsgID `json:"msgid"`
	Errno int   `json:"errno"`
	ID    int64 `json:"id,omitempty"`
}

// Encode serialises an ack frame.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return data, nil
}

// FriendEntry serialises one friend as the JSON string carried inside LoginAck.Friends.
func FriendEntry(u user.User) (string, error) {
	data, err := json.Marshal(struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	}{u.ID, u.Name, string(u.State)})
	if err != nil {
		return "", fmt.Errorf("marshal friend entry: %w", err)
	}
	return string(data), nil
}

// GroupEntry serialises one group as the JSON string carried inside LoginAck.Groups. The member list nests one more
// level of JSON-encoded strings.
func GroupEntry(g group.Group) (string, error) {
	users := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		entry, err := json.Marshal(struct {
			ID    int64  `json:"id"`
			Name  string `json:"name"`
			State string `json:"state"`
			Role  string `json:"role"`
		}{m.ID, m.Name, string(m.State), string(m.Role)})
		if err != nil {
			return "", fmt.Errorf("marshal group member entry: %w", err)
		}
		users = append(users, string(entry))
	}

	data, err := json.Marshal(struct {
		ID    int64    `json:"id"`
		Name  string   `json:"groupname"`
		Desc  string   `json:"groupdesc"`
		Users []string `json:"users"`
	}{g.ID, g.Name, g.Desc, users})
	if err != nil {
		return "", fmt.Errorf("marshal group entry: %w", err)
	}
	return string(data), nil
}
