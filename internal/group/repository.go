package group

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaychat/relay-server/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db *pgxpool.Pool
}

// NewPGRepository creates a new PostgreSQL-backed group repository.
func NewPGRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// Create inserts a new group and its creator membership in one transaction, so a group can never exist without its
// creator enrolled.
func (r *PGRepository) Create(ctx context.Context, name, desc string, creatorID int64) (int64, error) {
	var id int64
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO allgroup (groupname, groupdesc) VALUES ($1, $2) RETURNING id`,
			name, desc,
		).Scan(&id)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ErrNameTaken
			}
			return fmt.Errorf("insert group: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO groupuser (groupid, userid, grouprole) VALUES ($1, $2, $3)`,
			id, creatorID, string(RoleCreator),
		)
		if err != nil {
			if postgres.IsForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert group creator: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddMember stores a group membership.
func (r *PGRepository) AddMember(ctx context.Context, groupID, userID int64, role Role) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO groupuser (groupid, userid, grouprole) VALUES ($1, $2, $3)`,
		groupID, userID, string(role),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrAlreadyMember
		}
		if postgres.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}

// ListByUser returns the groups userID belongs to, each populated with its members.
func (r *PGRepository) ListByUser(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := r.db.Query(ctx,
		`SELECT g.id, g.groupname, g.groupdesc
		 FROM allgroup g
		 JOIN groupuser gu ON gu.groupid = g.id
		 WHERE gu.userid = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Desc); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		members, err := r.listMembers(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

func (r *PGRepository) listMembers(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := r.db.Query(ctx,
		`SELECT u.id, u.name, u.state, gu.grouprole
		 FROM groupuser gu
		 JOIN "user" u ON u.id = gu.userid
		 WHERE gu.groupid = $1`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.State, &m.Role); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberIDs returns the member ids of groupID excluding excludeUserID.
func (r *PGRepository) MemberIDs(ctx context.Context, groupID, excludeUserID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT userid FROM groupuser WHERE groupid = $1 AND userid <> $2`,
		groupID, excludeUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group member ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
