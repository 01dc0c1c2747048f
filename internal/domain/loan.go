package domain

import (
	"context"
	"time"
)

// LoanStatus is the persisted lifecycle state of a borrowing record.
type LoanStatus string

const (
	StatusCheckedOut LoanStatus = "checked_out"
	StatusReturned   LoanStatus = "returned"
	StatusOverdue    LoanStatus = "overdue"
)

// ValidLoanStatus reports whether s is one of the three persisted states.
func ValidLoanStatus(s LoanStatus) bool {
	return s == StatusCheckedOut || s == StatusReturned || s == StatusOverdue
}

// CanTransition reports whether the state machine allows from -> to.
// returned is terminal; overdue can only move to returned.
func CanTransition(from, to LoanStatus) bool {
	switch from {
	case StatusCheckedOut:
		return to == StatusOverdue || to == StatusReturned
	case StatusOverdue:
		return to == StatusReturned
	default:
		return false
	}
}

// Loan is a single borrowing record. Records are never deleted; a returned
// loan stays in the ledger as history.
type Loan struct {
	ID           int64
	BookID       int64
	BorrowerID   int64
	UserID       *int64 // acting librarian, audit only
	CheckoutDate time.Time
	DueDate      time.Time
	ReturnDate   *time.Time
	Status       LoanStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the loan still holds a copy of the book.
func (l *Loan) Active() bool {
	return l.Status == StatusCheckedOut || l.Status == StatusOverdue
}

// OverdueAt reports whether the loan is past due at the given instant,
// regardless of the persisted status. The status column is a cache updated by
// the sweep; anything that needs real-time overdue-ness must use this.
func (l *Loan) OverdueAt(now time.Time) bool {
	return l.Status != StatusReturned && l.DueDate.Before(now)
}

// LoanStatistics aggregates ledger counts for reporting.
type LoanStatistics struct {
	Total          int
	CheckedOut     int
	Returned       int
	Overdue        int
	AvgLoanDays    float64 // mean checkout->return duration over returned loans
	ReturnedOnTime int
	ReturnedLate   int
}

// LoanFilter narrows ledger queries. Nil fields are ignored.
type LoanFilter struct {
	Status *LoanStatus
	From   *time.Time // checkout_date >= From
	To     *time.Time // checkout_date <= To
}

// LoanRepository defines data access for the loan ledger. GetForUpdate locks
// the row and must run inside a TxRunner transaction.
type LoanRepository interface {
	Create(ctx context.Context, loan *Loan) error
	GetByID(ctx context.Context, id int64) (*Loan, error)
	GetForUpdate(ctx context.Context, id int64) (*Loan, error)
	Update(ctx context.Context, loan *Loan) error
	List(ctx context.Context, offset, limit int) ([]*Loan, int, error)
	// FindActive returns the single active (checked_out or overdue) loan for
	// the pair, or ErrLoanNotFound.
	FindActive(ctx context.Context, bookID, borrowerID int64) (*Loan, error)
	FindByBorrower(ctx context.Context, borrowerID int64, status *LoanStatus) ([]*Loan, error)
	FindByBook(ctx context.Context, bookID int64) ([]*Loan, error)
	// FindOverdue derives overdue-ness from due_date, not just the status
	// cache: it matches overdue rows plus checked_out rows past due.
	FindOverdue(ctx context.Context, now time.Time) ([]*Loan, error)
	// MarkOverdue flips every checked_out row with due_date < now to overdue
	// and returns the number of rows changed. Idempotent.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	CountActiveByBook(ctx context.Context, bookID int64) (int, error)
	CountActiveByBorrower(ctx context.Context, borrowerID int64) (int, error)
	Statistics(ctx context.Context, filter LoanFilter) (*LoanStatistics, error)
}
