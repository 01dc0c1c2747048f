package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yourorg/librarian/internal/infrastructure/redis"
	"github.com/yourorg/librarian/internal/reliability/circuitbreaker"
)

// RevocationStore blacklists logged-out tokens in Redis until they expire on
// their own. Lookups go through a circuit breaker and fail open: if Redis is
// down, tokens stay valid for their remaining lifetime rather than locking
// every user out.
type RevocationStore struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewRevocationStore creates a revocation store. A nil client disables
// revocation entirely.
func NewRevocationStore(client *redis.Client, logger *slog.Logger) *RevocationStore {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("revocation store circuit state changed",
			slog.Int("from", int(from)),
			slog.Int("to", int(to)),
		)
	})
	return &RevocationStore{client: client, breaker: breaker, logger: logger}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "revoked:" + hex.EncodeToString(sum[:])
}

// Revoke blacklists a token for its remaining lifetime.
func (s *RevocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if s.client == nil {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, tokenKey(token), "1", ttl); err != nil {
		s.breaker.RecordFailure()
		return err
	}
	s.breaker.RecordSuccess()
	return nil
}

// IsRevoked reports whether a token has been blacklisted. Redis failures and
// an open circuit report false.
func (s *RevocationStore) IsRevoked(ctx context.Context, token string) bool {
	if s.client == nil {
		return false
	}
	if !s.breaker.AllowRequest() {
		return false
	}

	_, err := s.client.Get(ctx, tokenKey(token))
	if err == goredis.Nil {
		s.breaker.RecordSuccess()
		return false
	}
	if err != nil {
		s.breaker.RecordFailure()
		s.logger.Warn("revocation lookup failed, allowing token", slog.String("error", err.Error()))
		return false
	}
	s.breaker.RecordSuccess()
	return true
}
