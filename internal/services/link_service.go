// Package services – LinkService
//
// This file implements the magic-link flow: a short-lived, single-use token
// binding an email, a chat id, and a persona intent across the payment
// redirect. Initiation stores a PendingLink and emails the link; verification
// is a read-only peek usable for pre-payment UI; completion resolves or
// creates the account, links the chat, grants personas, and burns the token.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/config"
	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/notify"
	"github.com/topfivefriends/companion-accounts/internal/repo"
)

// emailRE matches the same address shape the front-end validates: something,
// an @, something, a dot, something. No whitespace, no second @.
var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// LinkService implements magic-link initiation, verification, and completion.
type LinkService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Mailer dispatches the magic-link email.
	Mailer notify.Mailer
	// Activator fires the best-effort persona-backend callback on completion.
	Activator notify.Activator
	// Characters is the immutable persona catalogue.
	Characters map[domain.Character]config.CharacterInfo
	// BaseURL is the public site prefix for /magic/{token} links.
	BaseURL string
	// TTL is the pending-link lifetime.
	TTL time.Duration
	// NotifyTimeout caps each best-effort outbound call.
	NotifyTimeout time.Duration
}

// generateToken returns 32 bytes of cryptographically secure randomness as
// 64 hex characters. Variable for test substitution.
var generateToken = func() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Initiate starts the magic-link flow for (email, chatID, character).
//
// Steps, in order: validate inputs, purge expired pending links globally,
// supersede any existing pending link for the pair, store the new one, and
// dispatch the email. The token is returned so the calling chat-side system
// can correlate without re-deriving it.
//
// Errors: ErrMissingFields / ErrInvalidEmail / ErrInvalidCharacter for bad
// input; ErrEmailDelivery (wrapping the cause, with the token still attached
// to a surviving row) when dispatch fails; a fresh Initiate retries cleanly
// because the delete-then-insert step prevents duplicate rows for the pair.
func (s *LinkService) Initiate(ctx context.Context, email, chatID string, character domain.Character, firstName string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(chatID) == "" || character == "" {
		return "", ErrMissingFields
	}
	if !character.Valid() {
		return "", ErrInvalidCharacter
	}
	if !emailRE.MatchString(email) {
		return "", ErrInvalidEmail
	}

	if err := repo.CleanExpiredPendingLinks(ctx, s.DB, time.Now()); err != nil {
		return "", err
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().UTC().Add(s.TTL)

	pending, err := repo.CreatePendingLink(ctx, s.DB, email, chatID, character, firstName, token, expiresAt)
	if err != nil {
		return "", err
	}

	link := fmt.Sprintf("%s/magic/%s", s.BaseURL, token)
	if err := s.Mailer.SendMagicLink(ctx, pending.Email, character, link, firstName); err != nil {
		// The pending row stays: the user can retry and the next Initiate
		// supersedes this one.
		return "", fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}
	return token, nil
}

// Verify looks up a pending link by token without consuming it. Returns
// ErrLinkNotFound when the token is unknown and ErrLinkExpired when past
// expiry (deleting the stale row so a second verify sees ErrLinkNotFound).
func (s *LinkService) Verify(ctx context.Context, token string) (*domain.PendingLink, error) {
	pending, err := repo.GetPendingLinkByToken(ctx, s.DB, token)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}

	if !time.Now().Before(pending.ExpiresAt) {
		if delErr := repo.DeletePendingLink(ctx, s.DB, pending.ID); delErr != nil {
			return nil, delErr
		}
		return nil, ErrLinkExpired
	}
	return pending, nil
}

// Complete finalizes the flow after payment: resolves or creates the account
// by email, links the chat to it for the pending persona, grants every
// persona in characters (idempotently), marks the account active, fires the
// best-effort backend activation, and burns the token.
//
// Expiry is re-checked here: an expired-but-unswept token cannot complete.
// Returns the account id.
func (s *LinkService) Complete(ctx context.Context, token string, characters []domain.Character, stripeCustomerID *string) (string, error) {
	pending, err := s.Verify(ctx, token)
	if err != nil {
		return "", err
	}

	account, err := repo.GetAccountByEmail(ctx, s.DB, pending.Email)
	if errors.Is(err, repo.ErrNotFound) {
		account, err = repo.CreateAccount(ctx, s.DB, pending.Email, stripeCustomerID)
	}
	if err != nil {
		return "", err
	}

	if _, err := repo.UpsertTelegramLink(ctx, s.DB, pending.ChatID, account.ID, pending.Character); err != nil {
		return "", err
	}

	for _, c := range characters {
		if !c.Valid() {
			return "", ErrInvalidCharacter
		}
		if err := repo.AddCharacterToAccount(ctx, s.DB, account.ID, c); err != nil {
			return "", err
		}
	}

	if err := repo.UpdateAccountStatus(ctx, s.DB, account.ID, domain.StatusActive); err != nil {
		return "", err
	}

	s.notifyActivation(pending.Character, pending.ChatID, account.ID, pending.Email)

	if err := repo.DeletePendingLink(ctx, s.DB, pending.ID); err != nil {
		return "", err
	}
	return account.ID, nil
}

// notifyActivation fires the persona-backend callback without blocking the
// caller. Failure is logged, never propagated: the store writes have already
// committed and must not be rolled back over a notification.
func (s *LinkService) notifyActivation(character domain.Character, chatID, accountID, email string) {
	info, ok := s.Characters[character]
	if !ok || info.BackendURL == "" || s.Activator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.NotifyTimeout)
		defer cancel()
		if err := s.Activator.Activate(ctx, info.BackendURL, chatID, accountID, email); err != nil {
			log.Error().
				Err(err).
				Str("character", character.String()).
				Str("chat_id", chatID).
				Str("account_id", accountID).
				Msg("activation callback failed")
		}
	}()
}
