package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/yourorg/librarian/internal/domain"
)

// PostgresBookRepository implements domain.BookRepository using PostgreSQL
type PostgresBookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBookRepository creates a new book repository
func NewPostgresBookRepository(db *sql.DB, logger *slog.Logger) *PostgresBookRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBookRepository{db: db, logger: logger}
}

const bookColumns = `id, title, author, isbn, total_quantity, available_quantity, shelf_location, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (*domain.Book, error) {
	b := &domain.Book{}
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.ISBN,
		&b.TotalQuantity,
		&b.AvailableQuantity,
		&b.ShelfLocation,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create inserts a new book
func (r *PostgresBookRepository) Create(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (title, author, isbn, total_quantity, available_quantity, shelf_location)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := from(ctx, r.db).QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.TotalQuantity,
		book.AvailableQuantity,
		book.ShelfLocation,
	).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)

	if err != nil {
		if uniqueViolation(err) {
			return domain.ErrDuplicateISBN
		}
		r.logger.Error("failed to create book",
			slog.String("isbn", book.ISBN),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create book: %w", mapError(err))
	}

	return nil
}

// GetByID retrieves a book by ID
func (r *PostgresBookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(from(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", mapError(err))
	}
	return book, nil
}

// GetByISBN retrieves a book by ISBN
func (r *PostgresBookRepository) GetByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1`

	book, err := scanBook(from(ctx, r.db).QueryRowContext(ctx, query, isbn))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book by isbn: %w", mapError(err))
	}
	return book, nil
}

// GetForUpdate locks the book row for the rest of the transaction. NOWAIT
// turns lock waits into an immediate contention error instead of blocking
// the request indefinitely.
func (r *PostgresBookRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 FOR UPDATE NOWAIT`

	book, err := scanBook(from(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to lock book: %w", mapError(err))
	}
	return book, nil
}

// Update persists book fields, including the availability counter
func (r *PostgresBookRepository) Update(ctx context.Context, book *domain.Book) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, total_quantity = $4,
		    available_quantity = $5, shelf_location = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`

	err := from(ctx, r.db).QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.TotalQuantity,
		book.AvailableQuantity,
		book.ShelfLocation,
		book.ID,
	).Scan(&book.UpdatedAt)

	if err != nil {
		if noRows(err) {
			return domain.ErrBookNotFound
		}
		if uniqueViolation(err) {
			return domain.ErrDuplicateISBN
		}
		return fmt.Errorf("failed to update book: %w", mapError(err))
	}

	return nil
}

// Delete removes a book. The service layer guards against deleting books
// with active loans before calling this.
func (r *PostgresBookRepository) Delete(ctx context.Context, id int64) error {
	result, err := from(ctx, r.db).ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", mapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// List returns a page of books plus the total count
func (r *PostgresBookRepository) List(ctx context.Context, offset, limit int) ([]*domain.Book, int, error) {
	var total int
	if err := from(ctx, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", mapError(err))
	}

	query := `SELECT ` + bookColumns + ` FROM books ORDER BY title ASC LIMIT $1 OFFSET $2`

	rows, err := from(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("failed to list books", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("failed to list books: %w", mapError(err))
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, total, rows.Err()
}

// Search matches title, author or ISBN case-insensitively
func (r *PostgresBookRepository) Search(ctx context.Context, q string) ([]*domain.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE title ILIKE $1 OR author ILIKE $1 OR isbn ILIKE $1
		ORDER BY title ASC
		LIMIT 100
	`

	rows, err := from(ctx, r.db).QueryContext(ctx, query, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search books: %w", mapError(err))
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}
