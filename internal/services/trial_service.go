// Package services – TrialService
//
// This file implements the TrialService, the metered free allowance per
// (chat id, character) pair. It ensures a trial row exists before any
// decrement, floors the counter at zero, and records the exhaustion
// timestamp the moment the counter first reaches zero so the reactivation
// sweep can find the row later.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/repo"
)

// TrialService manages trial metering. Safe for concurrent use: all
// coordination happens through conditional row updates in the store.
type TrialService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Allowance is the starting message budget for a new trial.
	Allowance int
}

// NewTrialService constructs a TrialService with the given starting allowance.
func NewTrialService(db *gorm.DB, allowance int) *TrialService {
	return &TrialService{DB: db, Allowance: allowance}
}

// Ensure returns the trial for (chatID, character), creating it with the
// full allowance when absent. Idempotent; safe to call on every access check.
func (s *TrialService) Ensure(ctx context.Context, chatID string, character domain.Character) (*domain.Trial, error) {
	return repo.GetOrCreateTrial(ctx, s.DB, chatID, character, s.Allowance)
}

// Consume spends one trial message and returns the remaining count. The
// decrement only applies while remaining > 0, so the counter never goes
// negative even under concurrent calls for the same pair. When the counter
// reaches zero the exhaustion timestamp is recorded (first time only).
func (s *TrialService) Consume(ctx context.Context, chatID string, character domain.Character) (int, error) {
	if _, err := s.Ensure(ctx, chatID, character); err != nil {
		return 0, err
	}

	remaining, err := repo.DecrementTrial(ctx, s.DB, chatID, character)
	if err != nil {
		return 0, err
	}

	if remaining == 0 {
		if err := repo.MarkTrialExhausted(ctx, s.DB, chatID, character, time.Now().UTC()); err != nil {
			return remaining, err
		}
	}
	return remaining, nil
}
