package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/yourorg/librarian/internal/domain"
)

// PostgresBorrowerRepository implements domain.BorrowerRepository using PostgreSQL
type PostgresBorrowerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBorrowerRepository creates a new borrower repository
func NewPostgresBorrowerRepository(db *sql.DB, logger *slog.Logger) *PostgresBorrowerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBorrowerRepository{db: db, logger: logger}
}

const borrowerColumns = `id, name, email, phone, address, created_at, updated_at`

func scanBorrower(row interface{ Scan(...any) error }) (*domain.Borrower, error) {
	b := &domain.Borrower{}
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Email,
		&b.Phone,
		&b.Address,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create inserts a new borrower
func (r *PostgresBorrowerRepository) Create(ctx context.Context, borrower *domain.Borrower) error {
	query := `
		INSERT INTO borrowers (name, email, phone, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := from(ctx, r.db).QueryRowContext(
		ctx,
		query,
		borrower.Name,
		borrower.Email,
		borrower.Phone,
		borrower.Address,
	).Scan(&borrower.ID, &borrower.CreatedAt, &borrower.UpdatedAt)

	if err != nil {
		if uniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		r.logger.Error("failed to create borrower",
			slog.String("email", borrower.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create borrower: %w", mapError(err))
	}

	return nil
}

// GetByID retrieves a borrower by ID
func (r *PostgresBorrowerRepository) GetByID(ctx context.Context, id int64) (*domain.Borrower, error) {
	query := `SELECT ` + borrowerColumns + ` FROM borrowers WHERE id = $1`

	borrower, err := scanBorrower(from(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrBorrowerNotFound
		}
		return nil, fmt.Errorf("failed to get borrower: %w", mapError(err))
	}
	return borrower, nil
}

// GetByEmail retrieves a borrower by email
func (r *PostgresBorrowerRepository) GetByEmail(ctx context.Context, email string) (*domain.Borrower, error) {
	query := `SELECT ` + borrowerColumns + ` FROM borrowers WHERE email = $1`

	borrower, err := scanBorrower(from(ctx, r.db).QueryRowContext(ctx, query, email))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrBorrowerNotFound
		}
		return nil, fmt.Errorf("failed to get borrower by email: %w", mapError(err))
	}
	return borrower, nil
}

// Update persists borrower fields
func (r *PostgresBorrowerRepository) Update(ctx context.Context, borrower *domain.Borrower) error {
	query := `
		UPDATE borrowers
		SET name = $1, email = $2, phone = $3, address = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err := from(ctx, r.db).QueryRowContext(
		ctx,
		query,
		borrower.Name,
		borrower.Email,
		borrower.Phone,
		borrower.Address,
		borrower.ID,
	).Scan(&borrower.UpdatedAt)

	if err != nil {
		if noRows(err) {
			return domain.ErrBorrowerNotFound
		}
		if uniqueViolation(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update borrower: %w", mapError(err))
	}

	return nil
}

// Delete removes a borrower. The service layer blocks deletion while active
// loans reference the borrower.
func (r *PostgresBorrowerRepository) Delete(ctx context.Context, id int64) error {
	result, err := from(ctx, r.db).ExecContext(ctx, `DELETE FROM borrowers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete borrower: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrBorrowerNotFound
	}
	return nil
}

// List returns a page of borrowers plus the total count
func (r *PostgresBorrowerRepository) List(ctx context.Context, offset, limit int) ([]*domain.Borrower, int, error) {
	var total int
	if err := from(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM borrowers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count borrowers: %w", mapError(err))
	}

	query := `SELECT ` + borrowerColumns + ` FROM borrowers ORDER BY name ASC LIMIT $1 OFFSET $2`

	rows, err := from(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("failed to list borrowers", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list borrowers: %w", mapError(err))
	}
	defer rows.Close()

	var borrowers []*domain.Borrower
	for rows.Next() {
		borrower, err := scanBorrower(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan borrower: %w", err)
		}
		borrowers = append(borrowers, borrower)
	}
	return borrowers, total, rows.Err()
}

// Search matches name or email case-insensitively
func (r *PostgresBorrowerRepository) Search(ctx context.Context, q string) ([]*domain.Borrower, error) {
	query := `
		SELECT ` + borrowerColumns + `
		FROM borrowers
		WHERE name ILIKE $1 OR email ILIKE $1
		ORDER BY name ASC
		LIMIT 100
	`

	rows, err := from(ctx, r.db).QueryContext(ctx, query, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search borrowers: %w", mapError(err))
	}
	defer rows.Close()

	var borrowers []*domain.Borrower
	for rows.Next() {
		borrower, err := scanBorrower(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan borrower: %w", err)
		}
		borrowers = append(borrowers, borrower)
	}
	return borrowers, rows.Err()
}
