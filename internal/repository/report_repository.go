package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/librarian/internal/domain"
)

// PostgresReportRepository implements domain.ReportRepository. Reports read
// committed state only and never join the transactional write path.
type PostgresReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresReportRepository creates a new report repository
func NewPostgresReportRepository(db *sql.DB, logger *slog.Logger) *PostgresReportRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReportRepository{db: db, logger: logger}
}

// Overview returns the system-wide counters in one round trip
func (r *PostgresReportRepository) Overview(ctx context.Context) (*domain.OverviewReport, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM books),
			(SELECT COALESCE(SUM(total_quantity), 0) FROM books),
			(SELECT COALESCE(SUM(available_quantity), 0) FROM books),
			(SELECT COUNT(*) FROM borrowers),
			(SELECT COUNT(*) FROM borrowing_records WHERE status IN ('checked_out', 'overdue')),
			(SELECT COUNT(*) FROM borrowing_records WHERE status = 'overdue' OR (status = 'checked_out' AND due_date < NOW())),
			(SELECT COUNT(*) FROM borrowing_records WHERE status = 'returned')
	`

	report := &domain.OverviewReport{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&report.TotalBooks,
		&report.TotalCopies,
		&report.AvailableCopies,
		&report.TotalBorrowers,
		&report.ActiveLoans,
		&report.OverdueLoans,
		&report.ReturnedLoans,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build overview report: %w", mapError(err))
	}
	return report, nil
}

// TopBooks ranks books by checkout count within a date range
func (r *PostgresReportRepository) TopBooks(ctx context.Context, from, to time.Time, limit int) ([]*domain.TopBook, error) {
	query := `
		SELECT b.id, b.title, b.author, COUNT(br.id) AS checkouts
		FROM borrowing_records br
		JOIN books b ON b.id = br.book_id
		WHERE br.checkout_date >= $1 AND br.checkout_date <= $2
		GROUP BY b.id, b.title, b.author
		ORDER BY checkouts DESC, b.title ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank books: %w", mapError(err))
	}
	defer rows.Close()

	var books []*domain.TopBook
	for rows.Next() {
		tb := &domain.TopBook{}
		if err := rows.Scan(&tb.BookID, &tb.Title, &tb.Author, &tb.Checkouts); err != nil {
			return nil, fmt.Errorf("failed to scan book ranking: %w", err)
		}
		books = append(books, tb)
	}
	return books, rows.Err()
}

// TopBorrowers ranks borrowers by checkout count within a date range
func (r *PostgresReportRepository) TopBorrowers(ctx context.Context, from, to time.Time, limit int) ([]*domain.TopBorrower, error) {
	query := `
		SELECT bw.id, bw.name, COUNT(br.id) AS checkouts
		FROM borrowing_records br
		JOIN borrowers bw ON bw.id = br.borrower_id
		WHERE br.checkout_date >= $1 AND br.checkout_date <= $2
		GROUP BY bw.id, bw.name
		ORDER BY checkouts DESC, bw.name ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank borrowers: %w", mapError(err))
	}
	defer rows.Close()

	var borrowers []*domain.TopBorrower
	for rows.Next() {
		tb := &domain.TopBorrower{}
		if err := rows.Scan(&tb.BorrowerID, &tb.Name, &tb.Checkouts); err != nil {
			return nil, fmt.Errorf("failed to scan borrower ranking: %w", err)
		}
		borrowers = append(borrowers, tb)
	}
	return borrowers, rows.Err()
}

// Inventory returns every book's stock position
func (r *PostgresReportRepository) Inventory(ctx context.Context) ([]*domain.InventoryRow, error) {
	query := `
		SELECT id, title, author, isbn, total_quantity, available_quantity,
		       total_quantity - available_quantity, shelf_location
		FROM books
		ORDER BY title ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory report: %w", mapError(err))
	}
	defer rows.Close()

	var inventory []*domain.InventoryRow
	for rows.Next() {
		row := &domain.InventoryRow{}
		err := rows.Scan(
			&row.BookID,
			&row.Title,
			&row.Author,
			&row.ISBN,
			&row.TotalCopies,
			&row.Available,
			&row.CheckedOut,
			&row.ShelfLocation,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		inventory = append(inventory, row)
	}
	return inventory, rows.Err()
}

// OverdueDetails returns overdue loans joined with book and borrower data.
// The days-overdue figure is computed against the instant passed in, so the
// result matches what a sweep at that instant would flip.
func (r *PostgresReportRepository) OverdueDetails(ctx context.Context, now time.Time) ([]*domain.OverdueRecord, error) {
	query := `
		SELECT br.id, b.id, b.title, b.isbn, bw.id, bw.name, bw.email,
		       br.checkout_date, br.due_date,
		       GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($1::timestamptz - br.due_date)) / 86400))::int
		FROM borrowing_records br
		JOIN books b ON b.id = br.book_id
		JOIN borrowers bw ON bw.id = br.borrower_id
		WHERE br.status = 'overdue' OR (br.status = 'checked_out' AND br.due_date < $1)
		ORDER BY br.due_date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue details: %w", mapError(err))
	}
	defer rows.Close()

	var records []*domain.OverdueRecord
	for rows.Next() {
		rec := &domain.OverdueRecord{}
		err := rows.Scan(
			&rec.LoanID,
			&rec.BookID,
			&rec.BookTitle,
			&rec.BookISBN,
			&rec.BorrowerID,
			&rec.BorrowerName,
			&rec.BorrowerEmail,
			&rec.CheckoutDate,
			&rec.DueDate,
			&rec.DaysOverdue,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overdue record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
