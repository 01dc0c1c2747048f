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

// BookRequest is the body of POST/PUT /api/books
type BookRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	TotalQuantity int    `json:"total_quantity"`
	ShelfLocation string `json:"shelf_location,omitempty"`
}

// BookResponse is the wire shape of a book
type BookResponse struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	ShelfLocation     string    `json:"shelf_location,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toBookResponse(b *domain.Book) BookResponse {
	return BookResponse{
		ID:                b.ID,
		Title:             b.Title,
		Author:            b.Author,
		ISBN:              b.ISBN,
		TotalQuantity:     b.TotalQuantity,
		AvailableQuantity: b.AvailableQuantity,
		ShelfLocation:     b.ShelfLocation,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func toBookResponses(books []*domain.Book) []BookResponse {
	out := make([]BookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, toBookResponse(b))
	}
	return out
}

// BooksHandler handles the catalog routes
type BooksHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewBooksHandler creates a new books handler
func NewBooksHandler(catalog *service.CatalogService, logger *slog.Logger) *BooksHandler {
	return &BooksHandler{catalog: catalog, logger: logger}
}

func (h *BooksHandler) input(r *http.Request) (service.BookInput, bool) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return service.BookInput{}, false
	}
	return service.BookInput{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		TotalQuantity: req.TotalQuantity,
		ShelfLocation: req.ShelfLocation,
	}, true
}

// Create handles POST /api/books
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.input(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "invalid request body"})
		return
	}

	book, err := h.catalog.CreateBook(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "book created", toBookResponse(book))
}

// Get handles GET /api/books/{id}
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	book, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toBookResponse(book))
}

// Update handles PUT /api/books/{id}
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	book, err := h.catalog.UpdateBook(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "book updated", toBookResponse(book))
}

// Delete handles DELETE /api/books/{id}
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: err.Error()})
		return
	}

	actorID := ""
	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		actorID = strconv.FormatInt(claims.UserID, 10)
	}

	if err := h.catalog.DeleteBook(r.Context(), id, actorID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "book deleted", nil)
}

// List handles GET /api/books
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	books, total, err := h.catalog.ListBooks(r.Context(), offset, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", Paginated{Items: toBookResponses(books), Total: total})
}

// Search handles GET /api/books/search?q=
func (h *BooksHandler) Search(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.SearchBooks(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toBookResponses(books))
}
