package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/security/audit"
)

// BorrowerService manages registered borrowers and their borrowing views.
type BorrowerService struct {
	borrowers domain.BorrowerRepository
	loans     domain.LoanRepository
	audit     *audit.Logger
	logger    *slog.Logger
}

// NewBorrowerService creates a new borrower service
func NewBorrowerService(borrowers domain.BorrowerRepository, loans domain.LoanRepository, auditLog *audit.Logger, logger *slog.Logger) *BorrowerService {
	return &BorrowerService{borrowers: borrowers, loans: loans, audit: auditLog, logger: logger}
}

// BorrowerInput carries the writable fields of a borrower.
type BorrowerInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

func validateBorrowerInput(in BorrowerInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	}
	return nil
}

// CreateBorrower registers a new borrower
func (s *BorrowerService) CreateBorrower(ctx context.Context, in BorrowerInput) (*domain.Borrower, error) {
	if err := validateBorrowerInput(in); err != nil {
		return nil, err
	}

	borrower := &domain.Borrower{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
	}
	if err := s.borrowers.Create(ctx, borrower); err != nil {
		return nil, err
	}

	s.logger.Info("borrower registered",
		slog.Int64("borrower_id", borrower.ID),
		slog.String("email", borrower.Email),
	)
	return borrower, nil
}

// GetBorrower returns a single borrower
func (s *BorrowerService) GetBorrower(ctx context.Context, id int64) (*domain.Borrower, error) {
	return s.borrowers.GetByID(ctx, id)
}

// UpdateBorrower edits contact fields
func (s *BorrowerService) UpdateBorrower(ctx context.Context, id int64, in BorrowerInput) (*domain.Borrower, error) {
	if err := validateBorrowerInput(in); err != nil {
		return nil, err
	}

	borrower, err := s.borrowers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	borrower.Name = strings.TrimSpace(in.Name)
	borrower.Email = strings.ToLower(strings.TrimSpace(in.Email))
	borrower.Phone = strings.TrimSpace(in.Phone)
	borrower.Address = strings.TrimSpace(in.Address)

	if err := s.borrowers.Update(ctx, borrower); err != nil {
		return nil, err
	}
	return borrower, nil
}

// DeleteBorrower removes a borrower. Blocked while they hold any copy.
func (s *BorrowerService) DeleteBorrower(ctx context.Context, id int64, actorID string) error {
	active, err := s.loans.CountActiveByBorrower(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: borrower %d holds %d books", domain.ErrHasActiveLoans, id, active)
	}

	if err := s.borrowers.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogDeletion(ctx, actorID, "borrower", fmt.Sprintf("%d", id), "success", "")
	s.logger.Info("borrower deleted", slog.Int64("borrower_id", id))
	return nil
}

// ListBorrowers returns a page of borrowers plus the total count
func (s *BorrowerService) ListBorrowers(ctx context.Context, offset, limit int) ([]*domain.Borrower, int, error) {
	return s.borrowers.List(ctx, offset, limit)
}

// SearchBorrowers matches name or email
func (s *BorrowerService) SearchBorrowers(ctx context.Context, q string) ([]*domain.Borrower, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}
	return s.borrowers.Search(ctx, q)
}

// History returns a borrower's full ledger, newest first
func (s *BorrowerService) History(ctx context.Context, id int64) ([]*domain.Loan, error) {
	if _, err := s.borrowers.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.loans.FindByBorrower(ctx, id, nil)
}

// Current returns the loans a borrower still holds
func (s *BorrowerService) Current(ctx context.Context, id int64) ([]*domain.Loan, error) {
	history, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	var current []*domain.Loan
	for _, loan := range history {
		if loan.Active() {
			current = append(current, loan)
		}
	}
	return current, nil
}

// Overdue returns the borrower's loans past due right now, derived from
// due_date rather than the status cache.
func (s *BorrowerService) Overdue(ctx context.Context, id int64) ([]*domain.Loan, error) {
	history, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var overdue []*domain.Loan
	for _, loan := range history {
		if loan.OverdueAt(now) {
			overdue = append(overdue, loan)
		}
	}
	return overdue, nil
}

// BorrowerStats summarizes one borrower's ledger.
type BorrowerStats struct {
	Total    int `json:"total_borrowings"`
	Current  int `json:"currently_borrowed"`
	Returned int `json:"returned"`
	Overdue  int `json:"overdue"`
}

// Stats computes a borrower's ledger summary
func (s *BorrowerService) Stats(ctx context.Context, id int64) (*BorrowerStats, error) {
	history, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stats := &BorrowerStats{Total: len(history)}
	for _, loan := range history {
		if loan.Active() {
			stats.Current++
		}
		if loan.Status == domain.StatusReturned {
			stats.Returned++
		}
		if loan.OverdueAt(now) {
			stats.Overdue++
		}
	}
	return stats, nil
}
