package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, true},
		{"foreign key violation", &pgconn.PgError{Code: codeForeignKeyViolation}, false},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeUniqueViolation}), true},
		{"non-pg error", errors.New("generic"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"foreign key violation", &pgconn.PgError{Code: codeForeignKeyViolation}, true},
		{"wrapped foreign key violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: codeForeignKeyViolation}), true},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsForeignKeyViolation(tt.err); got != tt.want {
				t.Errorf("IsForeignKeyViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
