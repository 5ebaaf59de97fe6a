package friend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaychat/relay-server/internal/postgres"
	"github.com/relaychat/relay-server/internal/user"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db *pgxpool.Pool
}

// NewPGRepository creates a new PostgreSQL-backed friend repository.
func NewPGRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// Add stores the directed relation userID -> friendID.
func (r *PGRepository) Add(ctx context.Context, userID, friendID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO friend (userid, friendid) VALUES ($1, $2)`,
		userID, friendID,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrAlreadyFriends
		}
		if postgres.IsForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("insert friend: %w", err)
	}
	return nil
}

// ListByUser returns the friends of userID joined with the user table. Passwords are never selected here.
func (r *PGRepository) ListByUser(ctx context.Context, userID int64) ([]user.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id, u.name, u.state
		 FROM friend f
		 JOIN "user" u ON u.id = f.friendid
		 WHERE f.userid = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Name, &u.State); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}
