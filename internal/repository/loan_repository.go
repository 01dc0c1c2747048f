package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/librarian/internal/domain"
)

// PostgresLoanRepository implements domain.LoanRepository using PostgreSQL.
// Borrowing records are append-mostly: they are inserted at checkout, updated
// by return/extension/sweep, and never deleted.
type PostgresLoanRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLoanRepository creates a new loan repository
func NewPostgresLoanRepository(db *sql.DB, logger *slog.Logger) *PostgresLoanRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLoanRepository{db: db, logger: logger}
}

const loanColumns = `id, book_id, borrower_id, user_id, checkout_date, due_date, return_date, status, created_at, updated_at`

func scanLoan(row interface{ Scan(...any) error }) (*domain.Loan, error) {
	l := &domain.Loan{}
	var userID sql.NullInt64
	var returnDate sql.NullTime
	err := row.Scan(
		&l.ID,
		&l.BookID,
		&l.BorrowerID,
		&userID,
		&l.CheckoutDate,
		&l.DueDate,
		&returnDate,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		l.UserID = &userID.Int64
	}
	if returnDate.Valid {
		t := returnDate.Time
		l.ReturnDate = &t
	}
	return l, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

// Create inserts a new borrowing record
func (r *PostgresLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO borrowing_records (book_id, borrower_id, user_id, checkout_date, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := from(ctx, r.db).QueryRowContext(
		ctx,
		query,
		loan.BookID,
		loan.BorrowerID,
		nullInt64(loan.UserID),
		loan.CheckoutDate,
		loan.DueDate,
		loan.Status,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)

	if err != nil {
		if uniqueViolation(err) {
			// Partial unique index on (book_id, borrower_id) for active rows:
			// a concurrent checkout of the same pair beat us to it.
			return domain.ErrDuplicateActiveLoan
		}
		r.logger.Error("failed to create borrowing record",
			slog.Int64("book_id", loan.BookID),
			slog.Int64("borrower_id", loan.BorrowerID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create borrowing record: %w", mapError(err))
	}

	return nil
}

// GetByID retrieves a borrowing record by ID
func (r *PostgresLoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM borrowing_records WHERE id = $1`

	loan, err := scanLoan(from(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get borrowing record: %w", mapError(err))
	}
	return loan, nil
}

// GetForUpdate locks the borrowing record row for the rest of the transaction
func (r *PostgresLoanRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM borrowing_records WHERE id = $1 FOR UPDATE NOWAIT`

	loan, err := scanLoan(from(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to lock borrowing record: %w", mapError(err))
	}
	return loan, nil
}

// Update persists status, due date and return date changes
func (r *PostgresLoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	query := `
		UPDATE borrowing_records
		SET due_date = $1, return_date = $2, status = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := from(ctx, r.db).QueryRowContext(
		ctx,
		query,
		loan.DueDate,
		nullTime(loan.ReturnDate),
		loan.Status,
		loan.ID,
	).Scan(&loan.UpdatedAt)

	if err != nil {
		if noRows(err) {
			return domain.ErrLoanNotFound
		}
		return fmt.Errorf("failed to update borrowing record: %w", mapError(err))
	}

	return nil
}

// List returns a page of borrowing records plus the total count
func (r *PostgresLoanRepository) List(ctx context.Context, offset, limit int) ([]*domain.Loan, int, error) {
	var total int
	if err := from(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM borrowing_records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count borrowing records: %w", mapError(err))
	}

	query := `SELECT ` + loanColumns + ` FROM borrowing_records ORDER BY checkout_date DESC LIMIT $1 OFFSET $2`

	loans, err := r.queryLoans(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// FindActive returns the active loan for a (book, borrower) pair.
// The partial unique index guarantees at most one such row.
func (r *PostgresLoanRepository) FindActive(ctx context.Context, bookID, borrowerID int64) (*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM borrowing_records
		WHERE book_id = $1 AND borrower_id = $2 AND status IN ('checked_out', 'overdue')
	`

	loan, err := scanLoan(from(ctx, r.db).QueryRowContext(ctx, query, bookID, borrowerID))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to find active loan: %w", mapError(err))
	}
	return loan, nil
}

// FindByBorrower returns a borrower's records, optionally filtered by status
func (r *PostgresLoanRepository) FindByBorrower(ctx context.Context, borrowerID int64, status *domain.LoanStatus) ([]*domain.Loan, error) {
	if status != nil {
		query := `
			SELECT ` + loanColumns + `
			FROM borrowing_records
			WHERE borrower_id = $1 AND status = $2
			ORDER BY checkout_date DESC
		`
		return r.queryLoans(ctx, query, borrowerID, *status)
	}

	query := `
		SELECT ` + loanColumns + `
		FROM borrowing_records
		WHERE borrower_id = $1
		ORDER BY checkout_date DESC
	`
	return r.queryLoans(ctx, query, borrowerID)
}

// FindByBook returns the full borrowing history of a book
func (r *PostgresLoanRepository) FindByBook(ctx context.Context, bookID int64) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM borrowing_records
		WHERE book_id = $1
		ORDER BY checkout_date DESC
	`
	return r.queryLoans(ctx, query, bookID)
}

// FindOverdue returns every loan past due at the given instant. It matches on
// due_date as well as the status column, so records the sweep has not visited
// yet are still reported.
func (r *PostgresLoanRepository) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM borrowing_records
		WHERE status = 'overdue' OR (status = 'checked_out' AND due_date < $1)
		ORDER BY due_date ASC
	`
	return r.queryLoans(ctx, query, now)
}

// MarkOverdue reclassifies stale checked_out rows in one statement
func (r *PostgresLoanRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE borrowing_records
		SET status = 'overdue', updated_at = NOW()
		WHERE status = 'checked_out' AND due_date < $1
	`

	result, err := from(ctx, r.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue records: %w", mapError(err))
	}
	return result.RowsAffected()
}

// CountActiveByBook counts active loans referencing a book
func (r *PostgresLoanRepository) CountActiveByBook(ctx context.Context, bookID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM borrowing_records WHERE book_id = $1 AND status IN ('checked_out', 'overdue')`
	if err := from(ctx, r.db).QueryRowContext(ctx, query, bookID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active loans for book: %w", mapError(err))
	}
	return count, nil
}

// CountActiveByBorrower counts active loans held by a borrower
func (r *PostgresLoanRepository) CountActiveByBorrower(ctx context.Context, borrowerID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM borrowing_records WHERE borrower_id = $1 AND status IN ('checked_out', 'overdue')`
	if err := from(ctx, r.db).QueryRowContext(ctx, query, borrowerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active loans for borrower: %w", mapError(err))
	}
	return count, nil
}

// Statistics aggregates ledger counts and the average loan duration
func (r *PostgresLoanRepository) Statistics(ctx context.Context, filter domain.LoanFilter) (*domain.LoanStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'checked_out'),
			COUNT(*) FILTER (WHERE status = 'returned'),
			COUNT(*) FILTER (WHERE status = 'overdue'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (return_date - checkout_date)) / 86400.0) FILTER (WHERE return_date IS NOT NULL), 0),
			COUNT(*) FILTER (WHERE return_date IS NOT NULL AND return_date <= due_date),
			COUNT(*) FILTER (WHERE return_date IS NOT NULL AND return_date > due_date)
		FROM borrowing_records
		WHERE ($1::timestamptz IS NULL OR checkout_date >= $1)
		  AND ($2::timestamptz IS NULL OR checkout_date <= $2)
		  AND ($3::text IS NULL OR status = $3)
	`

	var statusArg any
	if filter.Status != nil {
		statusArg = string(*filter.Status)
	}

	stats := &domain.LoanStatistics{}
	err := from(ctx, r.db).QueryRowContext(ctx, query, nullTime(filter.From), nullTime(filter.To), statusArg).Scan(
		&stats.Total,
		&stats.CheckedOut,
		&stats.Returned,
		&stats.Overdue,
		&stats.AvgLoanDays,
		&stats.ReturnedOnTime,
		&stats.ReturnedLate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate borrowing statistics: %w", mapError(err))
	}
	return stats, nil
}

func (r *PostgresLoanRepository) queryLoans(ctx context.Context, query string, args ...any) ([]*domain.Loan, error) {
	rows, err := from(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query borrowing records", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query borrowing records: %w", mapError(err))
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan borrowing record: %w", err)
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}
