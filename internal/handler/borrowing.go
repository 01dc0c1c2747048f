package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/security/middleware"
	"github.com/yourorg/librarian/internal/service"
)

// CheckoutRequest is the body of POST /api/borrowing/checkout
type CheckoutRequest struct {
	BookID     int64  `json:"book_id"`
	BorrowerID int64  `json:"borrower_id"`
	DueDate    string `json:"due_date,omitempty"` // RFC 3339; empty means the default loan period
}

// StatusRequest is the body of PUT /api/borrowing/{id}/status
type StatusRequest struct {
	Status string `json:"status"`
}

// ExtendRequest is the body of PUT /api/borrowing/{id}/extend
type ExtendRequest struct {
	DueDate string `json:"due_date"`
}

// LoanResponse is the wire shape of a borrowing record
type LoanResponse struct {
	ID           int64      `json:"id"`
	BookID       int64      `json:"book_id"`
	BorrowerID   int64      `json:"borrower_id"`
	CheckoutDate time.Time  `json:"checkout_date"`
	DueDate      time.Time  `json:"due_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Status       string     `json:"status"`
	Overdue      bool       `json:"overdue"`
}

func toLoanResponse(l *domain.Loan) LoanResponse {
	return LoanResponse{
		ID:           l.ID,
		BookID:       l.BookID,
		BorrowerID:   l.BorrowerID,
		CheckoutDate: l.CheckoutDate,
		DueDate:      l.DueDate,
		ReturnDate:   l.ReturnDate,
		Status:       string(l.Status),
		Overdue:      l.OverdueAt(time.Now()),
	}
}

func toLoanResponses(loans []*domain.Loan) []LoanResponse {
	out := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoanResponse(l))
	}
	return out
}

// BorrowingHandler handles the loan lifecycle routes
type BorrowingHandler struct {
	borrowing *service.BorrowingService
	logger    *slog.Logger
}

// NewBorrowingHandler creates a new borrowing handler
func NewBorrowingHandler(borrowing *service.BorrowingService, logger *slog.Logger) *BorrowingHandler {
	return &BorrowingHandler{borrowing: borrowing, logger: logger}
}

// Checkout handles POST /api/borrowing/checkout
func (h *BorrowingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}
	if req.BookID <= 0 || req.BorrowerID <= 0 {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "book_id and borrower_id are required"})
		return
	}

	var dueDate time.Time
	if req.DueDate != "" {
		var err error
		dueDate, err = time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "due_date must be RFC 3339"})
			return
		}
	}

	var userID *int64
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		userID = &claims.UserID
	}

	loan, err := h.borrowing.Checkout(r.Context(), req.BookID, req.BorrowerID, dueDate, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "book checked out", toLoanResponse(loan))
}

// Return handles PUT /api/borrowing/return/{id}
func (h *BorrowingHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	loan, err := h.borrowing.Return(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "book returned", toLoanResponse(loan))
}

// UpdateStatus handles PUT /api/borrowing/{id}/status
func (h *BorrowingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	loan, err := h.borrowing.UpdateStatus(r.Context(), id, domain.LoanStatus(req.Status))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "status updated", toLoanResponse(loan))
}

// Extend handles PUT /api/borrowing/{id}/extend
func (h *BorrowingHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	var req ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}
	newDue, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "due_date must be RFC 3339"})
		return
	}

	loan, err := h.borrowing.ExtendDueDate(r.Context(), id, newDue)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "due date extended", toLoanResponse(loan))
}

// List handles GET /api/borrowing
func (h *BorrowingHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	loans, total, err := h.borrowing.ListLoans(r.Context(), offset, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", Paginated{Items: toLoanResponses(loans), Total: total})
}

// Get handles GET /api/borrowing/{id}
func (h *BorrowingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	loan, err := h.borrowing.GetLoan(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponse(loan))
}

// Overdue handles GET /api/borrowing/overdue
func (h *BorrowingHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.borrowing.Overdue(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponses(loans))
}

// ByBorrower handles GET /api/borrowing/borrower/{borrowerId}
func (h *BorrowingHandler) ByBorrower(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "borrowerId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	var status *domain.LoanStatus
	if s := r.URL.Query().Get("status"); s != "" {
		ls := domain.LoanStatus(s)
		if !domain.ValidLoanStatus(ls) {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "unknown status"})
			return
		}
		status = &ls
	}

	loans, err := h.borrowing.ByBorrower(r.Context(), id, status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponses(loans))
}

// ByBook handles GET /api/borrowing/book/{bookId}
func (h *BorrowingHandler) ByBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "bookId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	loans, err := h.borrowing.ByBook(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponses(loans))
}

// Statistics handles GET /api/borrowing/statistics
func (h *BorrowingHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	filter := domain.LoanFilter{}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		ls := domain.LoanStatus(s)
		if !domain.ValidLoanStatus(ls) {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "unknown status"})
			return
		}
		filter.Status = &ls
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "from must be RFC 3339"})
			return
		}
		filter.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "to must be RFC 3339"})
			return
		}
		filter.To = &t
	}

	stats, err := h.borrowing.Statistics(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"total":            stats.Total,
		"checked_out":      stats.CheckedOut,
		"returned":         stats.Returned,
		"overdue":          stats.Overdue,
		"avg_loan_days":    stats.AvgLoanDays,
		"returned_on_time": stats.ReturnedOnTime,
		"returned_late":    stats.ReturnedLate,
	})
}

// ProcessOverdue handles POST /api/borrowing/process-overdue
func (h *BorrowingHandler) ProcessOverdue(w http.ResponseWriter, r *http.Request) {
	marked, err := h.borrowing.SweepOverdue(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "overdue records processed", map[string]int64{"marked": marked})
}
