package offline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db *pgxpool.Pool
}

// NewPGRepository creates a new PostgreSQL-backed offline-message repository.
func NewPGRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// Insert appends one payload for the user.
func (r *PGRepository) Insert(ctx context.Context, userID int64, payload []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO offlinemessage (userid, message) VALUES ($1, $2)`,
		userID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert offline message: %w", err)
	}
	return nil
}

// List returns all stored payloads for the user.
func (r *PGRepository) List(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT message FROM offlinemessage WHERE userid = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query offline messages: %w", err)
	}
	defer rows.Close()

	var payloads []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("scan offline message: %w", err)
		}
		payloads = append(payloads, msg)
	}
	return payloads, rows.Err()
}

// Remove drops all stored payloads for the user.
func (r *PGRepository) Remove(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM offlinemessage WHERE userid = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete offline messages: %w", err)
	}
	return nil
}
