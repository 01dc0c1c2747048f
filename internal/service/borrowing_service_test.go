package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/librarian/internal/domain"
)

func TestCheckoutSuccess(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("The Go Programming Language", 3)
	borrower := store.addBorrower("Alice", "alice@example.com")

	due := time.Now().Add(7 * 24 * time.Hour)
	loan, err := svc.Checkout(ctx, book.ID, borrower.ID, due, nil)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if loan.Status != domain.StatusCheckedOut {
		t.Errorf("expected status checked_out, got %s", loan.Status)
	}
	if !loan.DueDate.Equal(due) {
		t.Errorf("expected due date %v, got %v", due, loan.DueDate)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 2 {
		t.Errorf("expected availability 2 after checkout, got %d", got)
	}
}

func TestCheckoutDefaultDueDate(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Clean Code", 1)
	borrower := store.addBorrower("Bob", "bob@example.com")

	loan, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	want := time.Now().AddDate(0, 0, DefaultLoanDays)
	if diff := loan.DueDate.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expected due date around %v, got %v", want, loan.DueDate)
	}
}

func TestCheckoutUnavailable(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Rare Book", 1)
	alice := store.addBorrower("Alice", "alice@example.com")
	bob := store.addBorrower("Bob", "bob@example.com")

	if _, err := svc.Checkout(ctx, book.ID, alice.ID, time.Time{}, nil); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	_, err := svc.Checkout(ctx, book.ID, bob.ID, time.Time{}, nil)
	if !errors.Is(err, domain.ErrBookUnavailable) {
		t.Fatalf("expected ErrBookUnavailable, got %v", err)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 0 {
		t.Errorf("expected availability 0, got %d", got)
	}
	if len(store.loans) != 1 {
		t.Errorf("expected 1 loan in the ledger, got %d", len(store.loans))
	}
}

func TestCheckoutDuplicateActiveLoan(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Popular Book", 5)
	borrower := store.addBorrower("Alice", "alice@example.com")

	if _, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	_, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil)
	if !errors.Is(err, domain.ErrDuplicateActiveLoan) {
		t.Fatalf("expected ErrDuplicateActiveLoan, got %v", err)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 4 {
		t.Errorf("expected availability 4 after rejected duplicate, got %d", got)
	}
}

func TestCheckoutUnknownBookAndBorrower(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	borrower := store.addBorrower("Alice", "alice@example.com")
	if _, err := svc.Checkout(ctx, 999, borrower.ID, time.Time{}, nil); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}

	book := store.addBook("Some Book", 1)
	if _, err := svc.Checkout(ctx, book.ID, 999, time.Time{}, nil); !errors.Is(err, domain.ErrBorrowerNotFound) {
		t.Errorf("expected ErrBorrowerNotFound, got %v", err)
	}
}

func TestCheckoutPastDueDateRejected(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 1)
	borrower := store.addBorrower("Alice", "alice@example.com")

	_, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Now().Add(-time.Hour), nil)
	if !errors.Is(err, domain.ErrInvalidDueDate) {
		t.Fatalf("expected ErrInvalidDueDate, got %v", err)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 1 {
		t.Errorf("expected availability untouched, got %d", got)
	}
}

func TestCheckoutRollsBackCounterOnLedgerFailure(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 2)
	borrower := store.addBorrower("Alice", "alice@example.com")

	store.createLoanErr = fmt.Errorf("insert failed")
	if _, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil); err == nil {
		t.Fatal("expected checkout to fail")
	}

	if got := store.books[book.ID].AvailableQuantity; got != 2 {
		t.Errorf("expected availability restored to 2 after rollback, got %d", got)
	}
	if len(store.loans) != 0 {
		t.Errorf("expected empty ledger after rollback, got %d loans", len(store.loans))
	}
}

func TestReturnRestoresAvailability(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 1)
	borrower := store.addBorrower("Alice", "alice@example.com")

	loan, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 0 {
		t.Fatalf("expected availability 0 after checkout, got %d", got)
	}

	returned, err := svc.Return(ctx, loan.ID)
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if returned.Status != domain.StatusReturned {
		t.Errorf("expected status returned, got %s", returned.Status)
	}
	if returned.ReturnDate == nil {
		t.Error("expected return date to be set")
	}
	if got := store.books[book.ID].AvailableQuantity; got != 1 {
		t.Errorf("expected availability 1 after return, got %d", got)
	}
}

func TestReturnAlreadyReturned(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 1)
	borrower := store.addBorrower("Alice", "alice@example.com")

	loan, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if _, err := svc.Return(ctx, loan.ID); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	_, err = svc.Return(ctx, loan.ID)
	if !errors.Is(err, domain.ErrAlreadyReturned) {
		t.Fatalf("expected ErrAlreadyReturned, got %v", err)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 1 {
		t.Errorf("expected availability still 1 after double return, got %d", got)
	}
}

func TestReturnOverdueLoan(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 1)
	borrower := store.addBorrower("Alice", "alice@example.com")
	store.books[book.ID].AvailableQuantity = 0
	loan := store.addLoan(book.ID, borrower.ID, time.Now().Add(-48*time.Hour), domain.StatusOverdue)

	returned, err := svc.Return(ctx, loan.ID)
	if err != nil {
		t.Fatalf("returning an overdue loan failed: %v", err)
	}
	if returned.Status != domain.StatusReturned {
		t.Errorf("expected status returned, got %s", returned.Status)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 1 {
		t.Errorf("expected availability 1, got %d", got)
	}
}

func TestReturnRefusesCounterOverflow(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	// Active loan but the counter already says every copy is on the shelf.
	book := store.addBook("Some Book", 1)
	borrower := store.addBorrower("Alice", "alice@example.com")
	loan := store.addLoan(book.ID, borrower.ID, time.Now().Add(24*time.Hour), domain.StatusCheckedOut)

	_, err := svc.Return(ctx, loan.ID)
	if !errors.Is(err, domain.ErrInventoryCorrupt) {
		t.Fatalf("expected ErrInventoryCorrupt, got %v", err)
	}
	if store.loans[loan.ID].Status != domain.StatusCheckedOut {
		t.Error("expected loan left untouched after refused return")
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 2)
	borrower := store.addBorrower("Alice", "alice@example.com")

	loan, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	// checked_out -> overdue
	updated, err := svc.UpdateStatus(ctx, loan.ID, domain.StatusOverdue)
	if err != nil {
		t.Fatalf("transition to overdue failed: %v", err)
	}
	if updated.Status != domain.StatusOverdue {
		t.Errorf("expected status overdue, got %s", updated.Status)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 1 {
		t.Errorf("expected availability unchanged by overdue transition, got %d", got)
	}

	// overdue -> returned goes through the full return path
	updated, err = svc.UpdateStatus(ctx, loan.ID, domain.StatusReturned)
	if err != nil {
		t.Fatalf("transition to returned failed: %v", err)
	}
	if updated.Status != domain.StatusReturned {
		t.Errorf("expected status returned, got %s", updated.Status)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 2 {
		t.Errorf("expected availability restored by returned transition, got %d", got)
	}

	// returned is terminal
	if _, err := svc.UpdateStatus(ctx, loan.ID, domain.StatusOverdue); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from returned, got %v", err)
	}

	// unknown status
	if _, err := svc.UpdateStatus(ctx, loan.ID, "lost"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for unknown status, got %v", err)
	}
}

func TestExtendDueDate(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 1)
	borrower := store.addBorrower("Alice", "alice@example.com")

	loan, err := svc.Checkout(ctx, book.ID, borrower.ID, time.Time{}, nil)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	newDue := time.Now().AddDate(0, 0, 30)
	extended, err := svc.ExtendDueDate(ctx, loan.ID, newDue)
	if err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if !extended.DueDate.Equal(newDue) {
		t.Errorf("expected due date %v, got %v", newDue, extended.DueDate)
	}

	// Past dates are rejected
	if _, err := svc.ExtendDueDate(ctx, loan.ID, time.Now().Add(-time.Hour)); !errors.Is(err, domain.ErrInvalidDueDate) {
		t.Errorf("expected ErrInvalidDueDate, got %v", err)
	}

	// Overdue loans cannot be extended
	if _, err := svc.UpdateStatus(ctx, loan.ID, domain.StatusOverdue); err != nil {
		t.Fatalf("transition to overdue failed: %v", err)
	}
	if _, err := svc.ExtendDueDate(ctx, loan.ID, time.Now().AddDate(0, 0, 60)); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for overdue loan, got %v", err)
	}
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 5)
	past := time.Now().Add(-24 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	a := store.addBorrower("Alice", "alice@example.com")
	b := store.addBorrower("Bob", "bob@example.com")
	c := store.addBorrower("Carol", "carol@example.com")
	store.addLoan(book.ID, a.ID, past, domain.StatusCheckedOut)
	store.addLoan(book.ID, b.ID, past, domain.StatusCheckedOut)
	store.addLoan(book.ID, c.ID, future, domain.StatusCheckedOut)

	marked, err := svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if marked != 2 {
		t.Errorf("expected 2 marked, got %d", marked)
	}

	marked, err = svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if marked != 0 {
		t.Errorf("expected second sweep to mark nothing, got %d", marked)
	}
}

func TestOverdueIncludesUnsweptLoans(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	book := store.addBook("Some Book", 3)
	a := store.addBorrower("Alice", "alice@example.com")
	b := store.addBorrower("Bob", "bob@example.com")
	store.addLoan(book.ID, a.ID, time.Now().Add(-time.Hour), domain.StatusCheckedOut)
	store.addLoan(book.ID, b.ID, time.Now().Add(time.Hour), domain.StatusCheckedOut)

	overdue, err := svc.Overdue(ctx)
	if err != nil {
		t.Fatalf("overdue query failed: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected 1 overdue loan before the sweep ran, got %d", len(overdue))
	}
	if overdue[0].BorrowerID != a.ID {
		t.Errorf("expected Alice's loan, got borrower %d", overdue[0].BorrowerID)
	}
}

func TestByBorrowerRequiresExistingBorrower(t *testing.T) {
	svc, _ := borrowingFixture()
	if _, err := svc.ByBorrower(context.Background(), 42, nil); !errors.Is(err, domain.ErrBorrowerNotFound) {
		t.Fatalf("expected ErrBorrowerNotFound, got %v", err)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, store := borrowingFixture()
	ctx := context.Background()

	const copies = 5
	const attempts = 12

	book := store.addBook("Hot Title", copies)
	borrowers := make([]*domain.Borrower, attempts)
	for i := range borrowers {
		borrowers[i] = store.addBorrower(
			fmt.Sprintf("Reader %d", i),
			fmt.Sprintf("reader%d@example.com", i),
		)
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(ctx, book.ID, borrowers[i].ID, time.Time{}, nil)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrBookUnavailable):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != copies {
		t.Errorf("expected exactly %d successful checkouts, got %d", copies, successes)
	}
	if got := store.books[book.ID].AvailableQuantity; got != 0 {
		t.Errorf("expected availability 0, got %d", got)
	}
	if len(store.loans) != copies {
		t.Errorf("expected %d loans in the ledger, got %d", copies, len(store.loans))
	}
}
