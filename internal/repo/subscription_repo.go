// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Subscription
// rows, keyed for lifecycle updates by the provider's subscription id.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// UpsertSubscription records a subscription for an account. If a row already
// exists for stripeSubscriptionID it is refreshed in place (the provider
// redelivered checkout completion); otherwise a new row is inserted. This is
// the dedup that makes checkout handling safe under at-least-once delivery.
func UpsertSubscription(ctx context.Context, db *gorm.DB, accountID, stripeSubscriptionID string, tier int, status string) (*domain.Subscription, error) {
	var existing domain.Subscription
	err := db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Order("created_at desc").
		First(&existing).Error
	if err == nil {
		res := db.WithContext(ctx).
			Model(&domain.Subscription{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"account_id": accountID,
				"tier":       tier,
				"status":     status,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		existing.AccountID = accountID
		existing.Tier = tier
		existing.Status = status
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	s := &domain.Subscription{
		ID:                   uuid.NewString(),
		AccountID:            accountID,
		StripeSubscriptionID: stripeSubscriptionID,
		Tier:                 tier,
		Status:               status,
		CreatedAt:            time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSubscriptionByStripeID fetches the most recently created subscription
// matching the provider's id, or ErrNotFound. Lifecycle events target this
// row.
func GetSubscriptionByStripeID(ctx context.Context, db *gorm.DB, stripeSubscriptionID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Order("created_at desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetLatestSubscriptionForAccount fetches the account's most recent
// subscription row, or ErrNotFound.
func GetLatestSubscriptionForAccount(ctx context.Context, db *gorm.DB, accountID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSubscription applies lifecycle fields to the subscription row by
// primary key. Nil period pointers leave the stored periods untouched.
func UpdateSubscription(ctx context.Context, db *gorm.DB, id, status string, periodStart, periodEnd *time.Time) error {
	fields := map[string]any{"status": status}
	if periodStart != nil {
		fields["current_period_start"] = periodStart.UTC()
	}
	if periodEnd != nil {
		fields["current_period_end"] = periodEnd.UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
