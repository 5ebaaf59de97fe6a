package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaychat/relay-server/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db *pgxpool.Pool
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// Create inserts a new user. The state column defaults to "offline" in the schema.
func (r *PGRepository) Create(ctx context.Context, name, password string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO "user" (name, password) VALUES ($1, $2) RETURNING id`,
		name, password,
	).Scan(&id)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return 0, ErrNameTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// GetByID returns the user matching the given id.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, name, password, state FROM "user" WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Password, &u.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return &u, nil
}

// UpdateState persists the user's presence state.
func (r *PGRepository) UpdateState(ctx context.Context, id int64, state State) error {
	_, err := r.db.Exec(ctx,
		`UPDATE "user" SET state = $1 WHERE id = $2`, string(state), id,
	)
	if err != nil {
		return fmt.Errorf("update user state: %w", err)
	}
	return nil
}

// ResetAllOffline forces every online user to offline.
func (r *PGRepository) ResetAllOffline(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`UPDATE "user" SET state = 'offline' WHERE state = 'online'`,
	)
	if err != nil {
		return fmt.Errorf("reset user states: %w", err)
	}
	return nil
}
