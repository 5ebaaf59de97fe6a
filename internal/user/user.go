package user

import (
	"context"
	"errors"
)

// Sentinel errors for the user package.
var (
	ErrNotFound  = errors.New("user not found")
	ErrNameTaken = errors.New("user name already taken")
)

// State is the persisted cluster-wide presence of a user. It reflects whether any instance currently holds the user's
// session, not which one.
type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// User is a registered account. Password is the stored plaintext credential; it is compared verbatim at login, which
// is a wire compatibility constraint with existing clients. Read methods that serve routing decisions leave it empty.
type User struct {
	ID       int64
	Name     string
	Password string
	State    State
}

// Repository defines the data-access contract for user operations.
type Repository interface {
	// Create inserts a new user with state "offline" and returns the assigned id.
	Create(ctx context.Context, name, password string) (int64, error)

	// GetByID returns the user matching the given id, including the stored password.
	GetByID(ctx context.Context, id int64) (*User, error)

	// UpdateState persists the user's cluster-wide presence.
	UpdateState(ctx context.Context, id int64, state State) error

	// ResetAllOffline forces every user to "offline". Run at startup to repair state left behind by an unclean
	// shutdown. Idempotent.
	ResetAllOffline(ctx context.Context) error
}
