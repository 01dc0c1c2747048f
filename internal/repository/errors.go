package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/yourorg/librarian/internal/domain"
)

// Postgres error codes the engine cares about.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// mapError converts driver errors to domain errors. sql.ErrNoRows is left to
// each repository since the right not-found sentinel depends on the entity.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %s", domain.ErrContention, pqErr.Message)
		case pgCheckViolation:
			// The availability check constraint caught an increment past
			// total_quantity before the service-level guard could.
			return fmt.Errorf("%w: %s", domain.ErrInventoryCorrupt, pqErr.Constraint)
		}
	}
	return err
}

// uniqueViolation reports whether err is a duplicate-key failure.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

// noRows reports whether err is the empty-result sentinel.
func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
