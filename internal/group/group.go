package group

import (
	"context"
	"errors"

	"github.com/relaychat/relay-server/internal/user"
)

// Sentinel errors for the group package.
var (
	ErrNameTaken     = errors.New("group name already taken")
	ErrAlreadyMember = errors.New("user is already a group member")
	ErrNotFound      = errors.New("group or user does not exist")
)

// Role is a member's role within a group.
type Role string

const (
	RoleCreator Role = "creator"
	RoleNormal  Role = "normal"
)

// Group is a chat group together with its members when loaded via ListByUser.
type Group struct {
	ID      int64
	Name    string
	Desc    string
	Members []Member
}

// Member is a group member with the profile fields clients render.
type Member struct {
	ID    int64
	Name  string
	State user.State
	Role  Role
}

// Repository defines the data-access contract for groups and memberships.
type Repository interface {
	// Create inserts a new group and enrolls creatorID with the creator role, atomically. Returns the group id.
	Create(ctx context.Context, name, desc string, creatorID int64) (int64, error)

	// AddMember stores the membership of userID in groupID with the given role.
	AddMember(ctx context.Context, groupID, userID int64, role Role) error

	// ListByUser returns every group userID belongs to, each with its full member list.
	ListByUser(ctx context.Context, userID int64) ([]Group, error)

	// MemberIDs returns the ids of all members of groupID except excludeUserID. Used for fan-out, where the sender
	// must not receive their own message.
	MemberIDs(ctx context.Context, groupID, excludeUserID int64) ([]int64, error)
}
