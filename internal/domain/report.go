package domain

import (
	"context"
	"time"
)

// OverviewReport is the system-wide snapshot for the dashboard.
type OverviewReport struct {
	TotalBooks      int
	TotalCopies     int
	AvailableCopies int
	TotalBorrowers  int
	ActiveLoans     int
	OverdueLoans    int
	ReturnedLoans   int
}

// TopBook is a checkout-count ranking entry.
type TopBook struct {
	BookID    int64
	Title     string
	Author    string
	Checkouts int
}

// TopBorrower is a checkout-count ranking entry.
type TopBorrower struct {
	BorrowerID int64
	Name       string
	Checkouts  int
}

// InventoryRow is one book's stock position.
type InventoryRow struct {
	BookID        int64
	Title         string
	Author        string
	ISBN          string
	TotalCopies   int
	Available     int
	CheckedOut    int
	ShelfLocation string
}

// OverdueRecord is an overdue loan joined with book and borrower details.
type OverdueRecord struct {
	LoanID        int64
	BookID        int64
	BookTitle     string
	BookISBN      string
	BorrowerID    int64
	BorrowerName  string
	BorrowerEmail string
	CheckoutDate  time.Time
	DueDate       time.Time
	DaysOverdue   int
}

// ReportRepository defines the read-only aggregate queries behind reporting.
// Overdue-ness is always derived from due_date, not the status cache.
type ReportRepository interface {
	Overview(ctx context.Context) (*OverviewReport, error)
	TopBooks(ctx context.Context, from, to time.Time, limit int) ([]*TopBook, error)
	TopBorrowers(ctx context.Context, from, to time.Time, limit int) ([]*TopBorrower, error)
	Inventory(ctx context.Context) ([]*InventoryRow, error)
	OverdueDetails(ctx context.Context, now time.Time) ([]*OverdueRecord, error)
}
