package repository

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"

	"github.com/yourorg/librarian/internal/domain"
)

func TestMapErrorContention(t *testing.T) {
	for _, code := range []string{pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable} {
		err := mapError(&pq.Error{Code: pq.ErrorCode(code), Message: "conflict"})
		if !errors.Is(err, domain.ErrContention) {
			t.Errorf("code %s: expected ErrContention, got %v", code, err)
		}
	}
}

func TestMapErrorCheckViolation(t *testing.T) {
	err := mapError(&pq.Error{Code: pgCheckViolation, Constraint: "books_quantity_bounds"})
	if !errors.Is(err, domain.ErrInventoryCorrupt) {
		t.Fatalf("expected ErrInventoryCorrupt, got %v", err)
	}
}

func TestMapErrorPassthrough(t *testing.T) {
	if err := mapError(nil); err != nil {
		t.Errorf("expected nil to stay nil, got %v", err)
	}

	plain := errors.New("broken pipe")
	if err := mapError(plain); err != plain {
		t.Errorf("expected unrelated error unchanged, got %v", err)
	}

	other := &pq.Error{Code: "42703"}
	if err := mapError(other); !errors.As(err, new(*pq.Error)) {
		t.Errorf("expected unmapped pq error unchanged, got %v", err)
	}
}

func TestUniqueViolation(t *testing.T) {
	if !uniqueViolation(&pq.Error{Code: pgUniqueViolation}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if uniqueViolation(&pq.Error{Code: pgCheckViolation}) {
		t.Error("expected 23514 not to be a unique violation")
	}
	if uniqueViolation(errors.New("nope")) {
		t.Error("expected plain error not to be a unique violation")
	}
}

func TestNoRows(t *testing.T) {
	if !noRows(sql.ErrNoRows) {
		t.Error("expected sql.ErrNoRows to match")
	}
	if noRows(errors.New("other")) {
		t.Error("expected other errors not to match")
	}
}
