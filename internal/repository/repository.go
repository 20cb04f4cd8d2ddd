// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrMemberNotFound = errors.New("member not found")
	ErrBadgeNotFound  = errors.New("badge not found")
	ErrRewardNotFound = errors.New("reward not found")
	ErrClaimNotFound  = errors.New("reward claim not found")
	ErrDuplicate      = errors.New("duplicate record")
)

const uniqueViolation = "23505"

// DBTX is the query surface shared by pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsDatabaseError reports whether err originated in PostgreSQL or the driver
// connection, as opposed to a not-found or validation outcome.
func IsDatabaseError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// validID reports whether id can be a primary key. Rows are keyed by UUID,
// so anything else cannot exist and is reported as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func wrapDuplicate(err error, what string) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}
