package friend

import (
	"context"
	"errors"

	"github.com/relaychat/relay-server/internal/user"
)

// Sentinel errors for the friend package.
var (
	// ErrAlreadyFriends is returned when the (userid, friendid) row already exists.
	ErrAlreadyFriends = errors.New("friend relation already exists")

	// ErrUnknownUser is returned when either side of the relation does not exist.
	ErrUnknownUser = errors.New("user in friend relation does not exist")
)

// Repository defines the data-access contract for friend relations. A relation is a single directed row; the reverse
// direction is not written implicitly, matching the storage contract existing clients depend on.
type Repository interface {
	// Add stores the directed relation userID -> friendID.
	Add(ctx context.Context, userID, friendID int64) error

	// ListByUser returns the users reachable from userID with their id, name, and presence state.
	ListByUser(ctx context.Context, userID int64) ([]user.User, error)
}
