// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Account
// aggregate and its per-character grants.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an account is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// NormalizeEmail lowercases and trims an email address. All account lookups
// and inserts go through this so that email uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount inserts a new Account for email, optionally carrying the
// payment provider's customer id. The email is normalized before insert and
// the initial status is "trial".
func CreateAccount(ctx context.Context, db *gorm.DB, email string, stripeCustomerID *string) (*domain.Account, error) {
	a := &domain.Account{
		ID:                 uuid.NewString(),
		Email:              NormalizeEmail(email),
		StripeCustomerID:   stripeCustomerID,
		SubscriptionStatus: domain.StatusTrial,
		CreatedAt:          time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccountByEmail fetches an account by normalized email, or ErrNotFound.
func GetAccountByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).
		Where("email = ?", NormalizeEmail(email)).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByID fetches an account by primary key, or ErrNotFound.
func GetAccountByID(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByStripeCustomer fetches an account by the payment provider's
// customer id, or ErrNotFound.
func GetAccountByStripeCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Account, error) {
	var a domain.Account
	err := db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccountStatus sets the subscription status of an account. Returns
// ErrNotFound when the account does not exist.
func UpdateAccountStatus(ctx context.Context, db *gorm.DB, accountID string, status domain.SubscriptionStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"subscription_status": status,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachStripeCustomer records the payment provider's customer id on an
// account that does not have one yet. Accounts that already carry a customer
// id are left untouched (no rows affected is not an error here).
func AttachStripeCustomer(ctx context.Context, db *gorm.DB, accountID, customerID string) error {
	return db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '')", accountID).
		Updates(map[string]any{
			"stripe_customer_id": customerID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// AddCharacterToAccount grants a persona to an account. Re-granting a persona
// the account already holds is a no-op, enforced by the unique
// (account_id, character) index and an ignore-on-conflict insert.
func AddCharacterToAccount(ctx context.Context, db *gorm.DB, accountID string, character domain.Character) error {
	g := &domain.AccountCharacter{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Character: character,
		AddedAt:   time.Now().UTC(),
	}
	err := db.WithContext(ctx).Create(g).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	return err
}

// HasCharacterAccess reports whether the account holds a grant for character.
func HasCharacterAccess(ctx context.Context, db *gorm.DB, accountID string, character domain.Character) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.AccountCharacter{}).
		Where("account_id = ? AND character = ?", accountID, character).
		Count(&n).Error
	return n > 0, err
}

// ListAccountCharacters returns every persona granted to the account, in
// grant order.
func ListAccountCharacters(ctx context.Context, db *gorm.DB, accountID string) ([]domain.AccountCharacter, error) {
	var out []domain.AccountCharacter
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("added_at asc").
		Find(&out).Error
	return out, err
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
