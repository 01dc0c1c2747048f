package domain

import "errors"

// Business-rule errors returned by services. Handlers map each one to a
// stable HTTP status; callers compare with errors.Is.
var (
	ErrBookNotFound     = errors.New("book not found")
	ErrBorrowerNotFound = errors.New("borrower not found")
	ErrLoanNotFound     = errors.New("borrowing record not found")
	ErrUserNotFound     = errors.New("user not found")

	ErrBookUnavailable     = errors.New("book is not available for checkout")
	ErrDuplicateActiveLoan = errors.New("borrower already has this book checked out")
	ErrAlreadyReturned     = errors.New("book is already returned")
	ErrDuplicateISBN       = errors.New("book with this ISBN already exists")
	ErrDuplicateEmail      = errors.New("borrower with this email already exists")
	ErrHasActiveLoans      = errors.New("entity has active borrowings")

	ErrInvalidDueDate    = errors.New("due date must be in the future")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("can only extend due date for checked out books")
	ErrValidation        = errors.New("validation failed")

	// ErrContention means the transaction lost a lock or serialization
	// conflict. Nothing was written; the operation is safe to retry.
	ErrContention = errors.New("operation conflicted with a concurrent update, retry")

	// ErrInventoryCorrupt means a return would push available_quantity above
	// total_quantity. The invariant is already broken elsewhere; never retried.
	ErrInventoryCorrupt = errors.New("book availability exceeds total quantity")
)

// IsNotFound reports whether err is any of the entity-absent errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrBorrowerNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsConflict reports whether err is a state conflict (availability, duplicate
// loan, duplicate key, already returned, blocked delete).
func IsConflict(err error) bool {
	return errors.Is(err, ErrBookUnavailable) ||
		errors.Is(err, ErrDuplicateActiveLoan) ||
		errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrDuplicateISBN) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrHasActiveLoans)
}

// IsInvalidInput reports whether err is a rejected-input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidDueDate) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrValidation)
}
