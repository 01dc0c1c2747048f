package events

import (
	"log/slog"
	"sync"
	"time"
)

// LoanEvent describes a state change in the borrowing ledger. Events are
// fan-out notifications for the activity feed; they carry no authority and
// dropping one loses nothing but a websocket line.
type LoanEvent struct {
	Type       string    `json:"type"` // checkout | return | overdue | extend
	LoanID     int64     `json:"loan_id"`
	BookID     int64     `json:"book_id"`
	BorrowerID int64     `json:"borrower_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Hub is an in-process pub/sub broker for loan events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan LoanEvent]struct{}
	logger *slog.Logger
}

// NewHub creates an event hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[chan LoanEvent]struct{}),
		logger: logger,
	}
}

// Subscribe registers a buffered channel that receives future events.
// The caller must call Unsubscribe when done.
func (h *Hub) Subscribe() chan LoanEvent {
	ch := make(chan LoanEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel and closes it.
func (h *Hub) Unsubscribe(ch chan LoanEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers an event to all subscribers without blocking. A slow
// subscriber with a full buffer misses the event.
func (h *Hub) Publish(ev LoanEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping loan event for slow subscriber",
				slog.String("type", ev.Type),
				slog.Int64("loan_id", ev.LoanID),
			)
		}
	}
}
