// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the WebhookEvent
// ledger used to deduplicate at-least-once payment-provider deliveries.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// ErrDuplicate indicates that a webhook event with the same provider event id
// has already been recorded (and therefore processed).
var ErrDuplicate = errors.New("duplicate")

// RecordWebhookEvent inserts a processed-event marker and returns
// ErrDuplicate on unique violation. Callers insert before applying the event
// so an exact redelivery is acknowledged without reprocessing, and release
// the marker with DeleteWebhookEvent when the apply fails.
func RecordWebhookEvent(ctx context.Context, db *gorm.DB, eventID, eventType string, ttl time.Duration) (*domain.WebhookEvent, error) {
	now := time.Now().UTC()
	rec := &domain.WebhookEvent{
		ID:        uuid.NewString(),
		EventID:   eventID,
		EventType: eventType,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// DeleteWebhookEvent removes the marker for eventID so the provider's next
// redelivery is processed again. Deleting an unrecorded id is a no-op.
func DeleteWebhookEvent(ctx context.Context, db *gorm.DB, eventID string) error {
	return db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&domain.WebhookEvent{}).Error
}

// CleanExpiredWebhookEvents purges ledger rows past their retention window.
func CleanExpiredWebhookEvents(ctx context.Context, db *gorm.DB, now time.Time) error {
	return db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&domain.WebhookEvent{}).Error
}
