package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/relaychat/relay-server/internal/group"
	"github.com/relaychat/relay-server/internal/user"
)

func TestDecodeCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame string
		want  Command
	}{
		{
			name:  "login",
			frame: `{"msgid":1,"id":1001,"password":"p"}`,
			want:  Login{ID: 1001, Password: "p"},
		},
		{
			name:  "logout",
			frame: `{"msgid":10,"id":1001}`,
			want:  Logout{ID: 1001},
		},
		{
			name:  "register",
			frame: `{"msgid":3,"name":"alice","password":"p"}`,
			want:  Register{Name: "alice", Password: "p"},
		},
		{
			name:  "add friend",
			frame: `{"msgid":6,"id":1001,"friendid":1002}`,
			want:  AddFriend{ID: 1001, FriendID: 1002},
		},
		{
			name:  "create group",
			frame: `{"msgid":7,"id":1001,"groupname":"g","groupdesc":"d"}`,
			want:  CreateGroup{ID: 1001, Name: "g", Desc: "d"},
		},
		{
			name:  "join group",
			frame: `{"msgid":8,"id":1001,"groupid":5}`,
			want:  JoinGroup{ID: 1001, GroupID: 5},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeOneChatRetainsRaw(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"msgid":5,"id":1001,"toid":1002,"msg":"hi","time":"T"}`)
	cmd, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	chat, ok := cmd.(OneChat)
	if !ok {
		t.Fatalf("Decode() = %T, want OneChat", cmd)
	}
	if chat.From != 1001 || chat.To != 1002 || chat.Msg != "hi" || chat.Time != "T" {
		t.Errorf("OneChat = %+v", chat)
	}
	if string(chat.Raw) != string(frame) {
		t.Errorf("Raw = %q, want original frame", chat.Raw)
	}

	// The retained frame must survive the reader reusing its buffer.
	frame[0] = 'X'
	if chat.Raw[0] != '{' {
		t.Error("Raw aliases the reader's buffer")
	}
}

func TestDecodeGroupChatRetainsRaw(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"msgid":9,"id":1001,"groupid":7,"msg":"all","time":"T"}`)
	cmd, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	chat, ok := cmd.(GroupChat)
	if !ok {
		t.Fatalf("Decode() = %T, want GroupChat", cmd)
	}
	if chat.From != 1001 || chat.GroupID != 7 {
		t.Errorf("GroupChat = %+v", chat)
	}
	if string(chat.Raw) != string(frame) {
		t.Errorf("Raw = %q, want original frame", chat.Raw)
	}
}

func TestDecodeUnknownMsgID(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"msgid":99}`))
	var unknown *UnknownMsgIDError
	if !errors.As(err, &unknown) {
		t.Fatalf("Decode() error = %v, want UnknownMsgIDError", err)
	}
	if unknown.MsgID != 99 {
		t.Errorf("MsgID = %d, want 99", unknown.MsgID)
	}
}

func TestDecodeMissingMsgID(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"id":1001}`))
	if !errors.Is(err, ErrMissingMsgID) {
		t.Errorf("Decode() error = %v, want ErrMissingMsgID", err)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`{"msgid":`)); err == nil {
		t.Error("Decode() expected error for malformed JSON, got nil")
	}
}

func TestLoginAckSuccessShape(t *testing.T) {
	t.Parallel()

	ack := LoginAck{
		MsgID:      MsgLoginAck,
		Errno:      ErrnoOK,
		ID:         1001,
		Name:       "alice",
		OfflineMsg: []string{`{"msgid":5,"id":1002,"toid":1001,"msg":"hi"}`},
	}
	data, err := Encode(ack)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if decoded["msgid"].(float64) != 2 {
		t.Errorf("msgid = %v, want 2", decoded["msgid"])
	}
	if decoded["errno"].(float64) != 0 {
		t.Errorf("errno = %v, want 0", decoded["errno"])
	}
	if _, present := decoded["errmsg"]; present {
		t.Error("errmsg present on success")
	}
	if _, present := decoded["friends"]; present {
		t.Error("friends present although empty")
	}
	// Offline messages travel as plain strings, each itself a JSON document.
	msgs := decoded["offlinemsg"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("len(offlinemsg) = %d, want 1", len(msgs))
	}
	if _, ok := msgs[0].(string); !ok {
		t.Errorf("offlinemsg[0] = %T, want string", msgs[0])
	}
}

func TestLoginAckErrorShape(t *testing.T) {
	t.Parallel()

	ack := NewLoginAckError(ErrnoDuplicateLogin, "this account is using, input another!")
	data, err := Encode(ack)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if decoded["errno"].(float64) != 2 {
		t.Errorf("errno = %v, want 2", decoded["errno"])
	}
	if decoded["errmsg"] != "this account is using, input another!" {
		t.Errorf("errmsg = %v", decoded["errmsg"])
	}
	if _, present := decoded["id"]; present {
		t.Error("id present on failed login")
	}
}

func TestRegisterAckOmitsIDOnFailure(t *testing.T) {
	t.Parallel()

	data, err := Encode(RegisterAck{MsgID: MsgRegisterAck, Errno: ErrnoInvalid})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if _, present := decoded["id"]; present {
		t.Error("id present on failed registration")
	}
	if decoded["errno"].(float64) != 1 {
		t.Errorf("errno = %v, want 1", decoded["errno"])
	}
}

func TestFriendEntry(t *testing.T) {
	t.Parallel()

	entry, err := FriendEntry(user.User{ID: 1002, Name: "bob", State: user.StateOnline})
	if err != nil {
		t.Fatalf("FriendEntry() error = %v", err)
	}

	var decoded struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		State string `json:"state"`
	}
	if err := json.Unmarshal([]byte(entry), &decoded); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if decoded.ID != 1002 || decoded.Name != "bob" || decoded.State != "online" {
		t.Errorf("entry = %q", entry)
	}
}

func TestGroupEntryNestsMemberStrings(t *testing.T) {
	t.Parallel()

	entry, err := GroupEntry(group.Group{
		ID:   7,
		Name: "team",
		Desc: "the team",
		Members: []group.Member{
			{ID: 1001, Name: "alice", State: user.StateOnline, Role: group.RoleCreator},
			{ID: 1002, Name: "bob", State: user.StateOffline, Role: group.RoleNormal},
		},
	})
	if err != nil {
		t.Fatalf("GroupEntry() error = %v", err)
	}

	var decoded struct {
		ID    int64    `json:"id"`
		Name  string   `json:"groupname"`
		Desc  string   `json:"groupdesc"`
		Users []string `json:"users"`
	}
	if err := json.Unmarshal([]byte(entry), &decoded); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if decoded.ID != 7 || decoded.Name != "team" {
		t.Errorf("entry = %q", entry)
	}
	if len(decoded.Users) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(decoded.Users))
	}

	// Each member is itself a JSON-encoded string carrying the role.
	var m struct {
		ID   int64  `json:"id"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal([]byte(decoded.Users[0]), &m); err != nil {
		t.Fatalf("users[0] is not valid JSON: %v", err)
	}
	if m.ID != 1001 || m.Role != "creator" {
		t.Errorf("users[0] = %q", decoded.Users[0])
	}
}
