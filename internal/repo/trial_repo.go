// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Trial
// model: the metered free allowance per (chat_id, character) pair.
//
// Concurrency notes:
//   - DecrementTrial relies on a conditional UPDATE (remaining > 0) so that
//     concurrent decrements for the same pair can never drive the counter
//     below zero; no explicit locking is used.
//   - MarkTrialExhausted only sets the timestamp when it is still NULL, so
//     replays keep the first exhaustion time.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// GetOrCreateTrial returns the Trial for (chatID, character), creating it
// with the given starting allowance when absent. Safe to call on every
// access check.
func GetOrCreateTrial(ctx context.Context, db *gorm.DB, chatID string, character domain.Character, allowance int) (*domain.Trial, error) {
	var t domain.Trial
	err := db.WithContext(ctx).
		Where("chat_id = ? AND character = ?", chatID, character).
		First(&t).Error
	if err == nil {
		return &t, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	t = domain.Trial{
		ID:                uuid.NewString(),
		ChatID:            chatID,
		Character:         character,
		MessagesRemaining: allowance,
		CreatedAt:         time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&t).Error; err != nil {
		// Lost a create race: another request inserted the row first.
		if isUniqueViolation(err) {
			var again domain.Trial
			if e2 := db.WithContext(ctx).
				Where("chat_id = ? AND character = ?", chatID, character).
				First(&again).Error; e2 == nil {
				return &again, nil
			}
		}
		return nil, err
	}
	return &t, nil
}

// DecrementTrial consumes one message from the trial if any remain, then
// returns the resulting remaining count (0 when already exhausted or when
// the row is missing). The decrement is conditional on remaining > 0 so the
// counter never goes negative under concurrent calls.
func DecrementTrial(ctx context.Context, db *gorm.DB, chatID string, character domain.Character) (int, error) {
	res := db.WithContext(ctx).
		Model(&domain.Trial{}).
		Where("chat_id = ? AND character = ? AND messages_remaining > 0", chatID, character).
		Update("messages_remaining", gorm.Expr("messages_remaining - 1"))
	if res.Error != nil {
		return 0, res.Error
	}

	var t domain.Trial
	err := db.WithContext(ctx).
		Select("messages_remaining").
		Where("chat_id = ? AND character = ?", chatID, character).
		First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return t.MessagesRemaining, nil
}

// MarkTrialExhausted records the exhaustion timestamp for a trial that has
// just reached zero. The update is conditional on the timestamp being unset
// and the counter being zero, so repeated calls and racing decrements keep
// the first exhaustion time.
func MarkTrialExhausted(ctx context.Context, db *gorm.DB, chatID string, character domain.Character, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Trial{}).
		Where("chat_id = ? AND character = ? AND messages_remaining = 0 AND trial_exhausted_at IS NULL", chatID, character).
		Update("trial_exhausted_at", at.UTC()).Error
}

// ListBumpCandidates returns trials that are exhausted, have never been
// bumped, and whose exhaustion is older than cutoff. These are the rows the
// reactivation sweep considers.
func ListBumpCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.Trial, error) {
	var out []domain.Trial
	err := db.WithContext(ctx).
		Where("messages_remaining = 0 AND bump_given = ? AND trial_exhausted_at IS NOT NULL AND trial_exhausted_at < ?",
			false, cutoff.UTC()).
		Order("trial_exhausted_at asc").
		Find(&out).Error
	return out, err
}

// BumpTrial tops an exhausted trial back up and marks the one-time bump as
// given. Conditional on bump_given still being false so a racing sweep can
// apply the bump at most once. Returns ErrNotFound when no row qualified.
func BumpTrial(ctx context.Context, db *gorm.DB, chatID string, character domain.Character, topUp int) error {
	res := db.WithContext(ctx).
		Model(&domain.Trial{}).
		Where("chat_id = ? AND character = ? AND bump_given = ?", chatID, character, false).
		Updates(map[string]any{
			"messages_remaining": topUp,
			"bump_given":         true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
