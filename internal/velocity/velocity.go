// Package velocity provides a persisted transaction count, used as an
// operator-facing view of a user's activity independent of the
// scoring engine's bounded in-memory history.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Service reports how many transactions a user has made in a trailing
// window, sourced from the durable repository rather than the
// engine's capped in-memory buffer. Useful once a user's history has
// scrolled past sentinel.HistoryCap or after a process restart, where
// Engine.GetHistory alone would undercount.
type Service struct {
	repo domain.Repository
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// GetTransactionCount returns the number of persisted transactions for
// userID within the trailing windowSecs.
func (s *Service) GetTransactionCount(ctx context.Context, userID string, windowSecs int) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("velocity: userID is required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("velocity: no repository configured")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second).UnixMilli()
	txs, err := s.repo.GetTransactionsByUser(ctx, userID, since)
	if err != nil {
		return 0, fmt.Errorf("velocity: count transactions: %w", err)
	}
	return int64(len(txs)), nil
}
