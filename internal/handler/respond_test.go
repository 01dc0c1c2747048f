package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yourorg/librarian/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrBookNotFound, http.StatusNotFound},
		{domain.ErrBorrowerNotFound, http.StatusNotFound},
		{domain.ErrLoanNotFound, http.StatusNotFound},
		{domain.ErrBookUnavailable, http.StatusConflict},
		{domain.ErrDuplicateActiveLoan, http.StatusConflict},
		{domain.ErrAlreadyReturned, http.StatusConflict},
		{domain.ErrHasActiveLoans, http.StatusConflict},
		{domain.ErrInvalidDueDate, http.StatusBadRequest},
		{domain.ErrInvalidTransition, http.StatusBadRequest},
		{domain.ErrInvalidState, http.StatusBadRequest},
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrContention, http.StatusServiceUnavailable},
		{domain.ErrInventoryCorrupt, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", domain.ErrBookUnavailable), http.StatusConflict},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	writeError(rec, log, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Message != "internal server error" {
		t.Errorf("expected generic message, got %q", resp.Message)
	}
}

func TestWriteErrorContentionSetsRetryAfter(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rec := httptest.NewRecorder()
	writeError(rec, log, domain.ErrContention)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestPagination(t *testing.T) {
	cases := []struct {
		query      string
		wantOffset int
		wantLimit  int
	}{
		{"", 0, 20},
		{"page=3&limit=10", 20, 10},
		{"page=0&limit=0", 0, 20},
		{"limit=500", 0, 20},
		{"page=abc", 0, 20},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/books?"+tc.query, nil)
		offset, limit := pagination(r)
		if offset != tc.wantOffset || limit != tc.wantLimit {
			t.Errorf("pagination(%q) = (%d, %d), want (%d, %d)",
				tc.query, offset, limit, tc.wantOffset, tc.wantLimit)
		}
	}
}
