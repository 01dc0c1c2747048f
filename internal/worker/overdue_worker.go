package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/librarian/internal/domain"
	"github.com/yourorg/librarian/internal/observability/metrics"
)

// Sweeper flips stale checked_out loans to overdue.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (int64, error)
}

// OverdueWorker periodically runs the overdue sweep so the persisted status
// column tracks reality without waiting for a manual trigger. The sweep is
// idempotent, so overlapping runs or a manual process-overdue call in between
// are harmless.
type OverdueWorker struct {
	sweeper  Sweeper
	loans    domain.LoanRepository
	logger   *slog.Logger
	interval time.Duration
}

// NewOverdueWorker creates a new overdue worker
func NewOverdueWorker(sweeper Sweeper, loans domain.LoanRepository, logger *slog.Logger, interval time.Duration) *OverdueWorker {
	return &OverdueWorker{
		sweeper:  sweeper,
		loans:    loans,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the sweep loop. Blocks until ctx is cancelled.
func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("overdue worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("overdue worker stopped")
			return
		case <-ticker.C:
			w.runSweep(ctx)
		}
	}
}

// runSweep executes one sweep pass and reconciles the active loan gauge
func (w *OverdueWorker) runSweep(ctx context.Context) {
	w.logger.Info("running overdue sweep")

	marked, err := w.sweeper.SweepOverdue(ctx)
	if err != nil {
		w.logger.Error("overdue sweep failed", slog.String("error", err.Error()))
		metrics.ObserveSweep("worker", "error")
		return
	}
	metrics.ObserveSweep("worker", "success")

	if marked > 0 {
		w.logger.Info("overdue sweep marked records", slog.Int64("marked", marked))
	}

	if w.loans != nil {
		stats, err := w.loans.Statistics(ctx, domain.LoanFilter{})
		if err != nil {
			w.logger.Warn("failed to reconcile active loan gauge", slog.String("error", err.Error()))
			return
		}
		metrics.SetActiveLoans(stats.CheckedOut + stats.Overdue)
	}
}
