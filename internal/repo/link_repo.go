// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for TelegramLink
// and PendingLink rows.
//
// Both entities share the same natural-key discipline: at most one row per
// (chat_id, character), with newer rows replacing older ones. The shared
// replaceOnPair helper implements that delete-then-insert inside a single
// transaction so the two call sites cannot drift apart.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// replaceOnPair deletes every row of model matching (chat_id, character) and
// inserts the replacement, atomically. It is the single upsert-with-replace
// primitive behind telegram-link supersede and pending-link supersede.
func replaceOnPair(ctx context.Context, db *gorm.DB, model any, chatID string, character domain.Character, insert any) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ? AND character = ?", chatID, character).
			Delete(model).Error; err != nil {
			return err
		}
		return tx.Create(insert).Error
	})
}

// ==================== TELEGRAM LINKS ====================

// UpsertTelegramLink binds chatID to accountID for one persona context,
// replacing any prior link for the same (chat_id, character) pair.
func UpsertTelegramLink(ctx context.Context, db *gorm.DB, chatID, accountID string, character domain.Character) (*domain.TelegramLink, error) {
	l := &domain.TelegramLink{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		AccountID: accountID,
		Character: character,
		LinkedAt:  time.Now().UTC(),
	}
	if err := replaceOnPair(ctx, db, &domain.TelegramLink{}, chatID, character, l); err != nil {
		return nil, err
	}
	return l, nil
}

// GetTelegramLink fetches the link for (chatID, character), or ErrNotFound.
func GetTelegramLink(ctx context.Context, db *gorm.DB, chatID string, character domain.Character) (*domain.TelegramLink, error) {
	var l domain.TelegramLink
	err := db.WithContext(ctx).
		Where("chat_id = ? AND character = ?", chatID, character).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetAccountByChatID resolves the account a chat id is linked to, regardless
// of persona ("whichever character this chat last linked identifies the
// account"). Returns ErrNotFound when the chat has no link at all.
func GetAccountByChatID(ctx context.Context, db *gorm.DB, chatID string) (*domain.Account, error) {
	var l domain.TelegramLink
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("linked_at desc").
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return GetAccountByID(ctx, db, l.AccountID)
}

// ==================== PENDING LINKS ====================

// CreatePendingLink stores a new magic-link request, superseding any prior
// request for the same (chat_id, character) pair.
func CreatePendingLink(ctx context.Context, db *gorm.DB, email, chatID string, character domain.Character, firstName, token string, expiresAt time.Time) (*domain.PendingLink, error) {
	p := &domain.PendingLink{
		ID:        uuid.NewString(),
		Email:     NormalizeEmail(email),
		ChatID:    chatID,
		Character: character,
		FirstName: firstName,
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := replaceOnPair(ctx, db, &domain.PendingLink{}, chatID, character, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPendingLinkByToken fetches a pending link by its token, or ErrNotFound.
func GetPendingLinkByToken(ctx context.Context, db *gorm.DB, token string) (*domain.PendingLink, error) {
	var p domain.PendingLink
	err := db.WithContext(ctx).
		Where("token = ?", token).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePendingLink removes a pending link by primary key. Deleting an
// already-deleted row is not an error.
func DeletePendingLink(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.PendingLink{}).Error
}

// CleanExpiredPendingLinks purges every pending link whose expiry has passed.
func CleanExpiredPendingLinks(ctx context.Context, db *gorm.DB, now time.Time) error {
	return db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&domain.PendingLink{}).Error
}
