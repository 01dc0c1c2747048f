package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/events"
	"github.com/yourorg/librarian/internal/observability/metrics"
	"github.com/yourorg/librarian/internal/reliability/retry"
	"github.com/yourorg/librarian/internal/security/audit"
)

// DefaultLoanDays is the checkout period applied when the request carries no
// due date.
const DefaultLoanDays = 14

// BorrowingService drives the loan lifecycle: checkout, return, status
// updates, due-date extension and the overdue sweep. Every mutation of the
// book counter and the ledger runs as one transaction so the two can never
// drift apart.
type BorrowingService struct {
	books     domain.BookRepository
	borrowers domain.BorrowerRepository
	loans     domain.LoanRepository
	tx        domain.TxRunner
	hub       *events.Hub
	audit     *audit.Logger
	retryCfg  *retry.Config
	logger    *slog.Logger
}

// NewBorrowingService creates a new borrowing service
func NewBorrowingService(
	books domain.BookRepository,
	borrowers domain.BorrowerRepository,
	loans domain.LoanRepository,
	tx domain.TxRunner,
	hub *events.Hub,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *BorrowingService {
	retryCfg := retry.DefaultConfig()
	retryCfg.RetryIf = func(err error) bool {
		if errors.Is(err, domain.ErrContention) {
			metrics.ObserveContentionRetry()
			return true
		}
		return false
	}

	return &BorrowingService{
		books:     books,
		borrowers: borrowers,
		loans:     loans,
		tx:        tx,
		hub:       hub,
		audit:     auditLog,
		retryCfg:  retryCfg,
		logger:    logger,
	}
}

// runTx executes fn in a transaction, retrying lock and serialization
// conflicts with backoff. Business-rule errors pass through on the first
// attempt.
func (s *BorrowingService) runTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := retry.Do(ctx, s.retryCfg, s.logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.tx.WithinTx(ctx, fn)
	})
	return err
}

// Checkout lends one copy of a book to a borrower. The book row is locked for
// the whole unit of work so the availability decrement and the ledger insert
// commit together.
func (s *BorrowingService) Checkout(ctx context.Context, bookID, borrowerID int64, dueDate time.Time, userID *int64) (*domain.Loan, error) {
	start := time.Now()
	var loan *domain.Loan

	err := s.runTx(ctx, "checkout", func(ctx context.Context) error {
		now := time.Now()

		book, err := s.books.GetForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if book.AvailableQuantity <= 0 {
			return domain.ErrBookUnavailable
		}

		if _, err := s.borrowers.GetByID(ctx, borrowerID); err != nil {
			return err
		}

		if _, err := s.loans.FindActive(ctx, bookID, borrowerID); err == nil {
			return domain.ErrDuplicateActiveLoan
		} else if !errors.Is(err, domain.ErrLoanNotFound) {
			return err
		}

		due := dueDate
		if due.IsZero() {
			due = now.AddDate(0, 0, DefaultLoanDays)
		}
		if !due.After(now) {
			return domain.ErrInvalidDueDate
		}

		book.AvailableQuantity--
		if err := s.books.Update(ctx, book); err != nil {
			return err
		}

		loan = &domain.Loan{
			BookID:       bookID,
			BorrowerID:   borrowerID,
			UserID:       userID,
			CheckoutDate: now,
			DueDate:      due,
			Status:       domain.StatusCheckedOut,
		}
		return s.loans.Create(ctx, loan)
	})

	if err != nil {
		metrics.ObserveCheckout("error", time.Since(start))
		s.audit.LogAction(ctx, userIDString(userID), "checkout", "book", strconv.FormatInt(bookID, 10), "failed", err.Error())
		return nil, err
	}

	metrics.ObserveCheckout("success", time.Since(start))
	metrics.IncrementActiveLoans()
	s.audit.LogCheckout(ctx, userIDString(userID), loan.ID, "success",
		fmt.Sprintf("book %d to borrower %d, due %s", bookID, borrowerID, loan.DueDate.Format(time.RFC3339)))
	s.publish("checkout", loan)

	s.logger.Info("book checked out",
		slog.Int64("loan_id", loan.ID),
		slog.Int64("book_id", bookID),
		slog.Int64("borrower_id", borrowerID),
		slog.Time("due_date", loan.DueDate),
	)
	return loan, nil
}

// Return closes a loan and restores one copy to the shelf. Returning an
// overdue loan is allowed; returning a returned loan is not.
func (s *BorrowingService) Return(ctx context.Context, loanID int64) (*domain.Loan, error) {
	start := time.Now()
	var loan *domain.Loan

	err := s.runTx(ctx, "return", func(ctx context.Context) error {
		var err error
		loan, err = s.returnInTx(ctx, loanID)
		return err
	})

	if err != nil {
		metrics.ObserveReturn("error", time.Since(start))
		return nil, err
	}

	metrics.ObserveReturn("success", time.Since(start))
	metrics.DecrementActiveLoans()
	s.audit.LogReturn(ctx, "", loan.ID, "success", fmt.Sprintf("book %d returned", loan.BookID))
	s.publish("return", loan)

	s.logger.Info("book returned",
		slog.Int64("loan_id", loan.ID),
		slog.Int64("book_id", loan.BookID),
	)
	return loan, nil
}

// returnInTx is the shared return path; it expects to run inside a
// transaction and locks both the loan and the book row.
func (s *BorrowingService) returnInTx(ctx context.Context, loanID int64) (*domain.Loan, error) {
	loan, err := s.loans.GetForUpdate(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == domain.StatusReturned {
		return nil, domain.ErrAlreadyReturned
	}

	book, err := s.books.GetForUpdate(ctx, loan.BookID)
	if err != nil {
		return nil, err
	}
	if book.AvailableQuantity+1 > book.TotalQuantity {
		s.logger.Error("availability counter would exceed total, refusing return",
			slog.Int64("loan_id", loan.ID),
			slog.Int64("book_id", book.ID),
			slog.Int("available", book.AvailableQuantity),
			slog.Int("total", book.TotalQuantity),
		)
		return nil, domain.ErrInventoryCorrupt
	}

	book.AvailableQuantity++
	if err := s.books.Update(ctx, book); err != nil {
		return nil, err
	}

	now := time.Now()
	loan.ReturnDate = &now
	loan.Status = domain.StatusReturned
	if err := s.loans.Update(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

// UpdateStatus applies an explicit status transition. Moving to returned runs
// the full return path so the book counter stays consistent; checked_out to
// overdue is a plain ledger update.
func (s *BorrowingService) UpdateStatus(ctx context.Context, loanID int64, status domain.LoanStatus) (*domain.Loan, error) {
	if !domain.ValidLoanStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}
	if status == domain.StatusReturned {
		return s.Return(ctx, loanID)
	}

	var loan *domain.Loan
	err := s.runTx(ctx, "update_status", func(ctx context.Context) error {
		var err error
		loan, err = s.loans.GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(loan.Status, status) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, loan.Status, status)
		}
		loan.Status = status
		return s.loans.Update(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.publish("overdue", loan)
	return loan, nil
}

// ExtendDueDate pushes a checked-out loan's due date forward. Overdue and
// returned loans cannot be extended.
func (s *BorrowingService) ExtendDueDate(ctx context.Context, loanID int64, newDue time.Time) (*domain.Loan, error) {
	var loan *domain.Loan

	err := s.runTx(ctx, "extend_due_date", func(ctx context.Context) error {
		var err error
		loan, err = s.loans.GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != domain.StatusCheckedOut {
			return domain.ErrInvalidState
		}
		if !newDue.After(time.Now()) {
			return domain.ErrInvalidDueDate
		}
		loan.DueDate = newDue
		return s.loans.Update(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.publish("extend", loan)
	s.logger.Info("due date extended",
		slog.Int64("loan_id", loan.ID),
		slog.Time("due_date", loan.DueDate),
	)
	return loan, nil
}

// SweepOverdue flips every checked_out loan past its due date to overdue and
// returns how many rows changed. Safe to run repeatedly; a second sweep finds
// nothing left to flip.
func (s *BorrowingService) SweepOverdue(ctx context.Context) (int64, error) {
	marked, err := s.loans.MarkOverdue(ctx, time.Now())
	if err != nil {
		metrics.ObserveSweep("manual", "error")
		return 0, fmt.Errorf("overdue sweep failed: %w", err)
	}

	metrics.ObserveSweep("manual", "success")
	metrics.AddSweepMarked(marked)
	s.audit.LogSweep(ctx, "", marked)

	if marked > 0 {
		s.logger.Info("overdue sweep completed", slog.Int64("marked", marked))
	}
	return marked, nil
}

// GetLoan returns a single borrowing record.
func (s *BorrowingService) GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.loans.GetByID(ctx, loanID)
}

// ListLoans returns a page of the ledger plus the total count.
func (s *BorrowingService) ListLoans(ctx context.Context, offset, limit int) ([]*domain.Loan, int, error) {
	return s.loans.List(ctx, offset, limit)
}

// Overdue lists every loan past due right now, including checked_out rows the
// sweep has not visited yet.
func (s *BorrowingService) Overdue(ctx context.Context) ([]*domain.Loan, error) {
	return s.loans.FindOverdue(ctx, time.Now())
}

// ByBorrower lists a borrower's records, optionally filtered by status.
func (s *BorrowingService) ByBorrower(ctx context.Context, borrowerID int64, status *domain.LoanStatus) ([]*domain.Loan, error) {
	if _, err := s.borrowers.GetByID(ctx, borrowerID); err != nil {
		return nil, err
	}
	return s.loans.FindByBorrower(ctx, borrowerID, status)
}

// ByBook lists a book's full borrowing history.
func (s *BorrowingService) ByBook(ctx context.Context, bookID int64) ([]*domain.Loan, error) {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return nil, err
	}
	return s.loans.FindByBook(ctx, bookID)
}

// Statistics aggregates ledger counts over an optional filter.
func (s *BorrowingService) Statistics(ctx context.Context, filter domain.LoanFilter) (*domain.LoanStatistics, error) {
	return s.loans.Statistics(ctx, filter)
}

func (s *BorrowingService) publish(eventType string, loan *domain.Loan) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.LoanEvent{
		Type:       eventType,
		LoanID:     loan.ID,
		BookID:     loan.BookID,
		BorrowerID: loan.BorrowerID,
		Status:     string(loan.Status),
		Timestamp:  time.Now(),
	})
}

func userIDString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
