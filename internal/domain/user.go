package domain

import (
	"context"
	"time"
)

// User is a staff account (librarian or admin) that operates the API.
// Borrowers are not users; they have no credentials.
type User struct {
	ID           int64
	Username     string // unique
	Email        string // unique
	PasswordHash string // bcrypt
	Role         string // admin | librarian
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines data access for staff accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
}
