package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

type requestIDKey struct{}

// WithRequestID binds a request ID to the context so audit entries can be
// correlated with access logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func (al *Logger) LogAction(ctx context.Context, userID, action, resource, resourceID, status, details string) {
	requestID := ""
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		requestID = reqID
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogCheckout(ctx context.Context, userID string, loanID int64, status, details string) {
	al.LogAction(ctx, userID, "checkout", "loan", strconv.FormatInt(loanID, 10), status, details)
}

func (al *Logger) LogReturn(ctx context.Context, userID string, loanID int64, status, details string) {
	al.LogAction(ctx, userID, "return", "loan", strconv.FormatInt(loanID, 10), status, details)
}

func (al *Logger) LogSweep(ctx context.Context, userID string, marked int64) {
	al.LogAction(ctx, userID, "overdue_sweep", "ledger", "", "success", strconv.FormatInt(marked, 10)+" records marked overdue")
}

func (al *Logger) LogDeletion(ctx context.Context, userID, resource, resourceID, status, details string) {
	al.LogAction(ctx, userID, "delete", resource, resourceID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, userID, reason string) {
	al.LogAction(ctx, userID, "access_denied", "api", "", "denied", reason)
}
