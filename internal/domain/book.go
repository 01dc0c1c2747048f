package domain

import (
	"context"
	"time"
)

// Book represents a title in the catalog with its physical copy counters.
type Book struct {
	ID                int64
	Title             string
	Author            string
	ISBN              string // unique, 10-13 digits/hyphens
	TotalQuantity     int    // physical copies owned, always >= 1
	AvailableQuantity int    // copies currently loanable, 0..TotalQuantity
	ShelfLocation     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAvailable reports whether at least one copy can be checked out.
func (b *Book) IsAvailable() bool {
	return b.AvailableQuantity > 0
}

// BookRepository defines data access for books. GetForUpdate must only be
// called inside a transaction started by TxRunner; it takes a row lock so
// concurrent checkouts of the same book serialize.
type BookRepository interface {
	Create(ctx context.Context, book *Book) error
	GetByID(ctx context.Context, id int64) (*Book, error)
	GetByISBN(ctx context.Context, isbn string) (*Book, error)
	GetForUpdate(ctx context.Context, id int64) (*Book, error)
	Update(ctx context.Context, book *Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, offset, limit int) ([]*Book, int, error)
	Search(ctx context.Context, query string) ([]*Book, error)
}
