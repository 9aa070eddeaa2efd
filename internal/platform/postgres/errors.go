package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/llmbatch/internal/store"
)

// PostgreSQL error codes
const (
	// uniqueViolationCode is the PostgreSQL error code for unique constraint violations
	uniqueViolationCode = "23505"

	// checkViolationCode is the PostgreSQL error code for check constraint violations
	checkViolationCode = "23514"

	// notNullViolationCode is the PostgreSQL error code for not null violations
	notNullViolationCode = "23502"

	// invalidTextRepresentationCode is raised when a body is not valid JSON
	invalidTextRepresentationCode = "22P02"

	// lockNotAvailableCode and deadlockDetectedCode signal a failed advisory lock
	lockNotAvailableCode = "55P03"
	deadlockDetectedCode = "40P01"
)

// MapError maps a database error to the matching store error.
// The original error stays in the chain.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode, checkViolationCode:
			return fmt.Errorf("%w: constraint violation (%s): %w", store.ErrInvalidRecord, pgErr.ConstraintName, err)
		case notNullViolationCode:
			return fmt.Errorf("%w: not null violation (%s): %w", store.ErrInvalidRecord, pgErr.ColumnName, err)
		case invalidTextRepresentationCode:
			return fmt.Errorf("%w: %w", store.ErrMalformedRecord, err)
		case lockNotAvailableCode, deadlockDetectedCode:
			return fmt.Errorf("%w: %w", store.ErrLockFailed, err)
		}
	}

	// Return the original error for errors that don't have specific mappings
	return err
}
