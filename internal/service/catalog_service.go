package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/security/audit"
)

var isbnPattern = regexp.MustCompile(`^[0-9-]{10,13}$`)

// CatalogService manages the book catalog. Availability counters are only
// moved by the borrowing engine; catalog edits adjust total stock.
type CatalogService struct {
	books  domain.BookRepository
	loans  domain.LoanRepository
	audit  *audit.Logger
	logger *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(books domain.BookRepository, loans domain.LoanRepository, auditLog *audit.Logger, logger *slog.Logger) *CatalogService {
	return &CatalogService{books: books, loans: loans, audit: auditLog, logger: logger}
}

// BookInput carries the writable fields of a book.
type BookInput struct {
	Title         string
	Author        string
	ISBN          string
	TotalQuantity int
	ShelfLocation string
}

func validateBookInput(in BookInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Author) == "" {
		return fmt.Errorf("%w: author is required", domain.ErrValidation)
	}
	if !isbnPattern.MatchString(in.ISBN) {
		return fmt.Errorf("%w: isbn must be 10-13 digits or hyphens", domain.ErrValidation)
	}
	if in.TotalQuantity < 0 {
		return fmt.Errorf("%w: total_quantity must not be negative", domain.ErrValidation)
	}
	return nil
}

// CreateBook adds a book with all copies on the shelf
func (s *CatalogService) CreateBook(ctx context.Context, in BookInput) (*domain.Book, error) {
	if err := validateBookInput(in); err != nil {
		return nil, err
	}

	book := &domain.Book{
		Title:             strings.TrimSpace(in.Title),
		Author:            strings.TrimSpace(in.Author),
		ISBN:              in.ISBN,
		TotalQuantity:     in.TotalQuantity,
		AvailableQuantity: in.TotalQuantity,
		ShelfLocation:     strings.TrimSpace(in.ShelfLocation),
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, err
	}

	s.logger.Info("book created",
		slog.Int64("book_id", book.ID),
		slog.String("isbn", book.ISBN),
	)
	return book, nil
}

// GetBook returns a single book
func (s *CatalogService) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	return s.books.GetByID(ctx, id)
}

// UpdateBook edits catalog fields. A change to total stock moves the
// availability counter by the same amount so checked-out copies stay
// accounted for; stock cannot drop below the number currently on loan.
func (s *CatalogService) UpdateBook(ctx context.Context, id int64, in BookInput) (*domain.Book, error) {
	if err := validateBookInput(in); err != nil {
		return nil, err
	}

	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	checkedOut := book.TotalQuantity - book.AvailableQuantity
	if in.TotalQuantity < checkedOut {
		return nil, fmt.Errorf("%w: total_quantity %d is below the %d copies on loan",
			domain.ErrValidation, in.TotalQuantity, checkedOut)
	}

	book.Title = strings.TrimSpace(in.Title)
	book.Author = strings.TrimSpace(in.Author)
	book.ISBN = in.ISBN
	book.AvailableQuantity = in.TotalQuantity - checkedOut
	book.TotalQuantity = in.TotalQuantity
	book.ShelfLocation = strings.TrimSpace(in.ShelfLocation)

	if err := s.books.Update(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book from the catalog. Blocked while any copy is out.
func (s *CatalogService) DeleteBook(ctx context.Context, id int64, actorID string) error {
	active, err := s.loans.CountActiveByBook(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: book %d has %d active borrowings", domain.ErrHasActiveLoans, id, active)
	}

	if err := s.books.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogDeletion(ctx, actorID, "book", fmt.Sprintf("%d", id), "success", "")
	s.logger.Info("book deleted", slog.Int64("book_id", id))
	return nil
}

// ListBooks returns a catalog page plus the total count
func (s *CatalogService) ListBooks(ctx context.Context, offset, limit int) ([]*domain.Book, int, error) {
	return s.books.List(ctx, offset, limit)
}

// SearchBooks matches title, author or ISBN
func (s *CatalogService) SearchBooks(ctx context.Context, q string) ([]*domain.Book, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}
	return s.books.Search(ctx, q)
}
