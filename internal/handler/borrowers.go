package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/security/middleware"
	"github.com/yourorg/librarian/internal/service"
)

// BorrowerRequest is the body of POST/PUT /api/borrowers
type BorrowerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// BorrowerResponse is the wire shape of a borrower
type BorrowerResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toBorrowerResponse(b *domain.Borrower) BorrowerResponse {
	return BorrowerResponse{
		ID:        b.ID,
		Name:      b.Name,
		Email:     b.Email,
		Phone:     b.Phone,
		Address:   b.Address,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func toBorrowerResponses(borrowers []*domain.Borrower) []BorrowerResponse {
	out := make([]BorrowerResponse, 0, len(borrowers))
	for _, b := range borrowers {
		out = append(out, toBorrowerResponse(b))
	}
	return out
}

// BorrowersHandler handles borrower routes
type BorrowersHandler struct {
	borrowers *service.BorrowerService
	logger    *slog.Logger
}

// NewBorrowersHandler creates a new borrowers handler
func NewBorrowersHandler(borrowers *service.BorrowerService, logger *slog.Logger) *BorrowersHandler {
	return &BorrowersHandler{borrowers: borrowers, logger: logger}
}

func (h *BorrowersHandler) input(r *http.Request) (service.BorrowerInput, bool) {
	var req BorrowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.BorrowerInput{}, false
	}
	return service.BorrowerInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	}, true
}

// Create handles POST /api/borrowers
func (h *BorrowersHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.input(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	borrower, err := h.borrowers.CreateBorrower(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "borrower registered", toBorrowerResponse(borrower))
}

// Get handles GET /api/borrowers/{id}
func (h *BorrowersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	borrower, err := h.borrowers.GetBorrower(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toBorrowerResponse(borrower))
}

// Update handles PUT /api/borrowers/{id}
func (h *BorrowersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	in, ok := h.input(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	borrower, err := h.borrowers.UpdateBorrower(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "borrower updated", toBorrowerResponse(borrower))
}

// Delete handles DELETE /api/borrowers/{id}
func (h *BorrowersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	actorID := ""
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		actorID = strconv.FormatInt(claims.UserID, 10)
	}

	if err := h.borrowers.DeleteBorrower(r.Context(), id, actorID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "borrower deleted", nil)
}

// List handles GET /api/borrowers
func (h *BorrowersHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	borrowers, total, err := h.borrowers.ListBorrowers(r.Context(), offset, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", Paginated{Items: toBorrowerResponses(borrowers), Total: total})
}

// Search handles GET /api/borrowers/search?q=
func (h *BorrowersHandler) Search(w http.ResponseWriter, r *http.Request) {
	borrowers, err := h.borrowers.SearchBorrowers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toBorrowerResponses(borrowers))
}

// History handles GET /api/borrowers/{id}/history
func (h *BorrowersHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	loans, err := h.borrowers.History(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponses(loans))
}

// Current handles GET /api/borrowers/{id}/current
func (h *BorrowersHandler) Current(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	loans, err := h.borrowers.Current(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponses(loans))
}

// Overdue handles GET /api/borrowers/{id}/overdue
func (h *BorrowersHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	loans, err := h.borrowers.Overdue(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toLoanResponses(loans))
}

// Stats handles GET /api/borrowers/{id}/stats
func (h *BorrowersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	stats, err := h.borrowers.Stats(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", stats)
}
