package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/yourorg/librarian/internal/domain"
)

// ReportService builds read-only views over the ledger and the catalog.
type ReportService struct {
	reports domain.ReportRepository
	loans   domain.LoanRepository
	logger  *slog.Logger
}

// NewReportService creates a new report service
func NewReportService(reports domain.ReportRepository, loans domain.LoanRepository, logger *slog.Logger) *ReportService {
	return &ReportService{reports: reports, loans: loans, logger: logger}
}

// Overview returns the system-wide snapshot
func (s *ReportService) Overview(ctx context.Context) (*domain.OverviewReport, error) {
	return s.reports.Overview(ctx)
}

// OverdueSummary lists overdue loans with book and borrower details plus the
// number of days each is late
func (s *ReportService) OverdueSummary(ctx context.Context) ([]*domain.OverdueRecord, error) {
	return s.reports.OverdueDetails(ctx, time.Now())
}

// Analytics bundles the ledger summary and the checkout rankings for a range.
type Analytics struct {
	From         time.Time              `json:"from"`
	To           time.Time              `json:"to"`
	Summary      *domain.LoanStatistics `json:"summary"`
	TopBooks     []*domain.TopBook      `json:"top_books"`
	TopBorrowers []*domain.TopBorrower  `json:"top_borrowers"`
}

// BuildAnalytics aggregates borrowing activity over a date range. A zero To
// means now; a zero From means 30 days before To.
func (s *ReportService) BuildAnalytics(ctx context.Context, from, to time.Time) (*Analytics, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}

	summary, err := s.loans.Statistics(ctx, domain.LoanFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	topBooks, err := s.reports.TopBooks(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	topBorrowers, err := s.reports.TopBorrowers(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}

	return &Analytics{
		From:         from,
		To:           to,
		Summary:      summary,
		TopBooks:     topBooks,
		TopBorrowers: topBorrowers,
	}, nil
}

// Inventory returns the stock position of every book
func (s *ReportService) Inventory(ctx context.Context) ([]*domain.InventoryRow, error) {
	return s.reports.Inventory(ctx)
}

// ExportOverdueCSV streams the overdue summary as CSV
func (s *ReportService) ExportOverdueCSV(ctx context.Context, w io.Writer) error {
	records, err := s.reports.OverdueDetails(ctx, time.Now())
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"record_id", "book_title", "isbn", "borrower_name", "borrower_email", "checkout_date", "due_date", "days_overdue"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.LoanID, 10),
			rec.BookTitle,
			rec.BookISBN,
			rec.BorrowerName,
			rec.BorrowerEmail,
			rec.CheckoutDate.Format("2006-01-02"),
			rec.DueDate.Format("2006-01-02"),
			strconv.Itoa(rec.DaysOverdue),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	s.logger.Info("overdue csv exported", slog.Int("records", len(records)))
	return nil
}
