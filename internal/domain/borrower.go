package domain

import (
	"context"
	"time"
)

// Borrower represents a library member who can check books out.
type Borrower struct {
	ID        int64
	Name      string
	Email     string // unique
	Phone     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BorrowerRepository defines data access for borrowers.
type BorrowerRepository interface {
	Create(ctx context.Context, borrower *Borrower) error
	GetByID(ctx context.Context, id int64) (*Borrower, error)
	GetByEmail(ctx context.Context, email string) (*Borrower, error)
	Update(ctx context.Context, borrower *Borrower) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int) ([]*Borrower, int, error)
	Search(ctx context.Context, query string) ([]*Borrower, error)
}
