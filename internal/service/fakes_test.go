package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/security/audit"
)

// memStore backs the in-memory fakes. A single mutex stands in for row
// locking: the fake TxRunner holds it for the whole unit of work, so
// concurrent transactions serialize the same way FOR UPDATE serializes them
// against PostgreSQL. On error the pre-transaction snapshot is restored.
type memStore struct {
	mu        sync.Mutex
	books     map[int64]*domain.Book
	borrowers map[int64]*domain.Borrower
	loans     map[int64]*domain.Loan

	nextBookID     int64
	nextBorrowerID int64
	nextLoanID     int64

	// createLoanErr, when set, fails the next loan insert. Used to exercise
	// rollback of the availability decrement.
	createLoanErr error
}

func newMemStore() *memStore {
	return &memStore{
		books:     map[int64]*domain.Book{},
		borrowers: map[int64]*domain.Borrower{},
		loans:     map[int64]*domain.Loan{},
	}
}

func (s *memStore) addBook(title string, total int) *domain.Book {
	s.nextBookID++
	b := &domain.Book{
		ID:                s.nextBookID,
		Title:             title,
		Author:            "Author",
		ISBN:              "0-0000-0000-" + string(rune('0'+s.nextBookID%10)),
		TotalQuantity:     total,
		AvailableQuantity: total,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	s.books[b.ID] = b
	return copyBook(b)
}

func (s *memStore) addBorrower(name, email string) *domain.Borrower {
	s.nextBorrowerID++
	b := &domain.Borrower{
		ID:        s.nextBorrowerID,
		Name:      name,
		Email:     email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.borrowers[b.ID] = b
	return copyBorrower(b)
}

func (s *memStore) addLoan(bookID, borrowerID int64, due time.Time, status domain.LoanStatus) *domain.Loan {
	s.nextLoanID++
	l := &domain.Loan{
		ID:           s.nextLoanID,
		BookID:       bookID,
		BorrowerID:   borrowerID,
		CheckoutDate: time.Now().Add(-24 * time.Hour),
		DueDate:      due,
		Status:       status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.loans[l.ID] = l
	return copyLoan(l)
}

func (s *memStore) snapshot() (map[int64]*domain.Book, map[int64]*domain.Borrower, map[int64]*domain.Loan) {
	books := make(map[int64]*domain.Book, len(s.books))
	for id, b := range s.books {
		books[id] = copyBook(b)
	}
	borrowers := make(map[int64]*domain.Borrower, len(s.borrowers))
	for id, b := range s.borrowers {
		borrowers[id] = copyBorrower(b)
	}
	loans := make(map[int64]*domain.Loan, len(s.loans))
	for id, l := range s.loans {
		loans[id] = copyLoan(l)
	}
	return books, borrowers, loans
}

func copyBook(b *domain.Book) *domain.Book {
	c := *b
	return &c
}

func copyBorrower(b *domain.Borrower) *domain.Borrower {
	c := *b
	return &c
}

func copyLoan(l *domain.Loan) *domain.Loan {
	c := *l
	if l.ReturnDate != nil {
		t := *l.ReturnDate
		c.ReturnDate = &t
	}
	if l.UserID != nil {
		v := *l.UserID
		c.UserID = &v
	}
	return &c
}

// memTxRunner serializes transactions on the store mutex and rolls the store
// back to its snapshot when fn fails.
type memTxRunner struct {
	store *memStore
}

func (r *memTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	books, borrowers, loans := r.store.snapshot()
	if err := fn(ctx); err != nil {
		r.store.books = books
		r.store.borrowers = borrowers
		r.store.loans = loans
		return err
	}
	return nil
}

type memBookRepo struct {
	store *memStore
}

func (m *memBookRepo) Create(ctx context.Context, book *domain.Book) error {
	for _, b := range m.store.books {
		if b.ISBN == book.ISBN {
			return domain.ErrDuplicateISBN
		}
	}
	m.store.nextBookID++
	book.ID = m.store.nextBookID
	book.CreatedAt = time.Now()
	book.UpdatedAt = book.CreatedAt
	m.store.books[book.ID] = copyBook(book)
	return nil
}

func (m *memBookRepo) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	b, ok := m.store.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return copyBook(b), nil
}

func (m *memBookRepo) GetByISBN(ctx context.Context, isbn string) (*domain.Book, error) {
	for _, b := range m.store.books {
		if b.ISBN == isbn {
			return copyBook(b), nil
		}
	}
	return nil, domain.ErrBookNotFound
}

func (m *memBookRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	return m.GetByID(ctx, id)
}

func (m *memBookRepo) Update(ctx context.Context, book *domain.Book) error {
	if _, ok := m.store.books[book.ID]; !ok {
		return domain.ErrBookNotFound
	}
	book.UpdatedAt = time.Now()
	m.store.books[book.ID] = copyBook(book)
	return nil
}

func (m *memBookRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.store.books[id]; !ok {
		return domain.ErrBookNotFound
	}
	delete(m.store.books, id)
	return nil
}

func (m *memBookRepo) List(ctx context.Context, offset, limit int) ([]*domain.Book, int, error) {
	ids := make([]int64, 0, len(m.store.books))
	for id := range m.store.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []*domain.Book{}
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		out = append(out, copyBook(m.store.books[id]))
	}
	return out, len(ids), nil
}

func (m *memBookRepo) Search(ctx context.Context, query string) ([]*domain.Book, error) {
	q := strings.ToLower(query)
	out := []*domain.Book{}
	for _, b := range m.store.books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(b.ISBN, query) {
			out = append(out, copyBook(b))
		}
	}
	return out, nil
}

type memBorrowerRepo struct {
	store *memStore
}

func (m *memBorrowerRepo) Create(ctx context.Context, borrower *domain.Borrower) error {
	for _, b := range m.store.borrowers {
		if b.Email == borrower.Email {
			return domain.ErrDuplicateEmail
		}
	}
	m.store.nextBorrowerID++
	borrower.ID = m.store.nextBorrowerID
	borrower.CreatedAt = time.Now()
	borrower.UpdatedAt = borrower.CreatedAt
	m.store.borrowers[borrower.ID] = copyBorrower(borrower)
	return nil
}

func (m *memBorrowerRepo) GetByID(ctx context.Context, id int64) (*domain.Borrower, error) {
	b, ok := m.store.borrowers[id]
	if !ok {
		return nil, domain.ErrBorrowerNotFound
	}
	return copyBorrower(b), nil
}

func (m *memBorrowerRepo) GetByEmail(ctx context.Context, email string) (*domain.Borrower, error) {
	for _, b := range m.store.borrowers {
		if b.Email == email {
			return copyBorrower(b), nil
		}
	}
	return nil, domain.ErrBorrowerNotFound
}

func (m *memBorrowerRepo) Update(ctx context.Context, borrower *domain.Borrower) error {
	if _, ok := m.store.borrowers[borrower.ID]; !ok {
		return domain.ErrBorrowerNotFound
	}
	borrower.UpdatedAt = time.Now()
	m.store.borrowers[borrower.ID] = copyBorrower(borrower)
	return nil
}

func (m *memBorrowerRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.store.borrowers[id]; !ok {
		return domain.ErrBorrowerNotFound
	}
	delete(m.store.borrowers, id)
	return nil
}

func (m *memBorrowerRepo) List(ctx context.Context, offset, limit int) ([]*domain.Borrower, int, error) {
	ids := make([]int64, 0, len(m.store.borrowers))
	for id := range m.store.borrowers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := []*domain.Borrower{}
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		out = append(out, copyBorrower(m.store.borrowers[id]))
	}
	return out, len(ids), nil
}

func (m *memBorrowerRepo) Search(ctx context.Context, query string) ([]*domain.Borrower, error) {
	q := strings.ToLower(query)
	out := []*domain.Borrower{}
	for _, b := range m.store.borrowers {
		if strings.Contains(strings.ToLower(b.Name), q) ||
			strings.Contains(strings.ToLower(b.Email), q) {
			out = append(out, copyBorrower(b))
		}
	}
	return out, nil
}

type memLoanRepo struct {
	store *memStore
}

func (m *memLoanRepo) Create(ctx context.Context, loan *domain.Loan) error {
	if m.store.createLoanErr != nil {
		err := m.store.createLoanErr
		m.store.createLoanErr = nil
		return err
	}
	for _, l := range m.store.loans {
		if l.BookID == loan.BookID && l.BorrowerID == loan.BorrowerID && l.Active() {
			return domain.ErrDuplicateActiveLoan
		}
	}
	m.store.nextLoanID++
	loan.ID = m.store.nextLoanID
	loan.CreatedAt = time.Now()
	loan.UpdatedAt = loan.CreatedAt
	m.store.loans[loan.ID] = copyLoan(loan)
	return nil
}

func (m *memLoanRepo) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	l, ok := m.store.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return copyLoan(l), nil
}

func (m *memLoanRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Loan, error) {
	return m.GetByID(ctx, id)
}

func (m *memLoanRepo) Update(ctx context.Context, loan *domain.Loan) error {
	if _, ok := m.store.loans[loan.ID]; !ok {
		return domain.ErrLoanNotFound
	}
	loan.UpdatedAt = time.Now()
	m.store.loans[loan.ID] = copyLoan(loan)
	return nil
}

func (m *memLoanRepo) List(ctx context.Context, offset, limit int) ([]*domain.Loan, int, error) {
	ids := make([]int64, 0, len(m.store.loans))
	for id := range m.store.loans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := []*domain.Loan{}
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		out = append(out, copyLoan(m.store.loans[id]))
	}
	return out, len(ids), nil
}

func (m *memLoanRepo) FindActive(ctx context.Context, bookID, borrowerID int64) (*domain.Loan, error) {
	for _, l := range m.store.loans {
		if l.BookID == bookID && l.BorrowerID == borrowerID && l.Active() {
			return copyLoan(l), nil
		}
	}
	return nil, domain.ErrLoanNotFound
}

func (m *memLoanRepo) FindByBorrower(ctx context.Context, borrowerID int64, status *domain.LoanStatus) ([]*domain.Loan, error) {
	out := []*domain.Loan{}
	for _, l := range m.store.loans {
		if l.BorrowerID != borrowerID {
			continue
		}
		if status != nil && l.Status != *status {
			continue
		}
		out = append(out, copyLoan(l))
	}
	return out, nil
}

func (m *memLoanRepo) FindByBook(ctx context.Context, bookID int64) ([]*domain.Loan, error) {
	out := []*domain.Loan{}
	for _, l := range m.store.loans {
		if l.BookID == bookID {
			out = append(out, copyLoan(l))
		}
	}
	return out, nil
}

func (m *memLoanRepo) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	out := []*domain.Loan{}
	for _, l := range m.store.loans {
		if l.Status == domain.StatusOverdue ||
			(l.Status == domain.StatusCheckedOut && l.DueDate.Before(now)) {
			out = append(out, copyLoan(l))
		}
	}
	return out, nil
}

func (m *memLoanRepo) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	var marked int64
	for _, l := range m.store.loans {
		if l.Status == domain.StatusCheckedOut && l.DueDate.Before(now) {
			l.Status = domain.StatusOverdue
			l.UpdatedAt = time.Now()
			marked++
		}
	}
	return marked, nil
}

func (m *memLoanRepo) CountActiveByBook(ctx context.Context, bookID int64) (int, error) {
	n := 0
	for _, l := range m.store.loans {
		if l.BookID == bookID && l.Active() {
			n++
		}
	}
	return n, nil
}

func (m *memLoanRepo) CountActiveByBorrower(ctx context.Context, borrowerID int64) (int, error) {
	n := 0
	for _, l := range m.store.loans {
		if l.BorrowerID == borrowerID && l.Active() {
			n++
		}
	}
	return n, nil
}

func (m *memLoanRepo) Statistics(ctx context.Context, filter domain.LoanFilter) (*domain.LoanStatistics, error) {
	stats := &domain.LoanStatistics{}
	var totalDays float64
	for _, l := range m.store.loans {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.From != nil && l.CheckoutDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && l.CheckoutDate.After(*filter.To) {
			continue
		}
		stats.Total++
		switch l.Status {
		case domain.StatusCheckedOut:
			stats.CheckedOut++
		case domain.StatusOverdue:
			stats.Overdue++
		case domain.StatusReturned:
			stats.Returned++
			totalDays += l.ReturnDate.Sub(l.CheckoutDate).Hours() / 24
			if l.ReturnDate.After(l.DueDate) {
				stats.ReturnedLate++
			} else {
				stats.ReturnedOnTime++
			}
		}
	}
	if stats.Returned > 0 {
		stats.AvgLoanDays = totalDays / float64(stats.Returned)
	}
	return stats, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// borrowingFixture wires a BorrowingService over the in-memory store.
func borrowingFixture() (*BorrowingService, *memStore) {
	store := newMemStore()
	log := testLogger()
	svc := NewBorrowingService(
		&memBookRepo{store: store},
		&memBorrowerRepo{store: store},
		&memLoanRepo{store: store},
		&memTxRunner{store: store},
		nil,
		audit.NewLogger(log),
		log,
	)
	return svc, store
}
