package offline

import "context"

// Repository is the append-only bag of messages awaiting a user's next login. Ordering among rows is not guaranteed.
type Repository interface {
	// Insert appends one payload for the user.
	Insert(ctx context.Context, userID int64, payload []byte) error

	// List returns all stored payloads for the user.
	List(ctx context.Context, userID int64) ([]string, error)

	// Remove drops all stored payloads for the user.
	Remove(ctx context.Context, userID int64) error
}
