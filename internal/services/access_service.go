// Package services – AccessService
//
// This file implements the entitlement resolver: the single authority that
// decides, for a chat and a persona, whether access is granted and why.
// The decision order is fixed: an active subscribed account with a grant for
// the persona wins; an active account without the grant is denied with an
// upgrade path; otherwise the trial meter decides. Checking access never
// consumes a trial message; only TrialService.Consume does that.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/repo"
)

// Access decision reasons, stable strings exposed on the wire.
const (
	ReasonSubscribed   = "subscribed"
	ReasonTrial        = "trial"
	ReasonNoAccess     = "no_access"
	ReasonTrialExpired = "trial_expired"
)

// AccessDecision is the result of a per-character access check. Account id
// and email are attached whenever a linked account is known, even on denial,
// so callers can personalize upgrade prompts.
type AccessDecision struct {
	HasAccess      bool   `json:"hasAccess"`
	Reason         string `json:"reason"`
	TrialRemaining *int   `json:"trialRemaining,omitempty"`
	AccountID      string `json:"accountId,omitempty"`
	Email          string `json:"email,omitempty"`
}

// AccessSummary is the account-centric view of one chat id: whether any
// account is linked and which personas it holds.
type AccessSummary struct {
	HasAccount         bool                       `json:"hasAccount"`
	AccountID          string                     `json:"accountId,omitempty"`
	Email              string                     `json:"email,omitempty"`
	SubscriptionStatus *domain.SubscriptionStatus `json:"subscription_status"`
	Characters         []domain.Character         `json:"characters"`
}

// AccessService resolves entitlement decisions from linked accounts, grants,
// and the trial meter.
type AccessService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Trials supplies the fallback metering when no subscription applies.
	Trials *TrialService
}

// NewAccessService constructs an AccessService over the shared store.
func NewAccessService(db *gorm.DB, trials *TrialService) *AccessService {
	return &AccessService{DB: db, Trials: trials}
}

// CheckAccess decides whether chatID may talk to character, with the reason.
// It has no side effect on the trial counter beyond lazily creating the
// trial row.
func (s *AccessService) CheckAccess(ctx context.Context, chatID string, character domain.Character) (*AccessDecision, error) {
	account, err := repo.GetAccountByChatID(ctx, s.DB, chatID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if account != nil && account.SubscriptionStatus == domain.StatusActive {
		has, err := repo.HasCharacterAccess(ctx, s.DB, account.ID, character)
		if err != nil {
			return nil, err
		}
		if has {
			return &AccessDecision{
				HasAccess: true,
				Reason:    ReasonSubscribed,
				AccountID: account.ID,
				Email:     account.Email,
			}, nil
		}
		// Account exists but this persona is not in the plan: upgrade path.
		return &AccessDecision{
			HasAccess: false,
			Reason:    ReasonNoAccess,
			AccountID: account.ID,
			Email:     account.Email,
		}, nil
	}

	// No active subscription: the trial meter decides.
	trial, err := s.Trials.Ensure(ctx, chatID, character)
	if err != nil {
		return nil, err
	}

	d := &AccessDecision{TrialRemaining: &trial.MessagesRemaining}
	if account != nil {
		d.AccountID = account.ID
		d.Email = account.Email
	}
	if trial.MessagesRemaining > 0 {
		d.HasAccess = true
		d.Reason = ReasonTrial
	} else {
		d.HasAccess = false
		d.Reason = ReasonTrialExpired
	}
	return d, nil
}

// ListAccess returns the account-centric summary for a chat id. A chat with
// no link yields an explicit "no account" shape rather than an error.
func (s *AccessService) ListAccess(ctx context.Context, chatID string) (*AccessSummary, error) {
	account, err := repo.GetAccountByChatID(ctx, s.DB, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return &AccessSummary{
			HasAccount: false,
			Characters: []domain.Character{},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	grants, err := repo.ListAccountCharacters(ctx, s.DB, account.ID)
	if err != nil {
		return nil, err
	}
	chars := make([]domain.Character, 0, len(grants))
	for _, g := range grants {
		chars = append(chars, g.Character)
	}

	status := account.SubscriptionStatus
	return &AccessSummary{
		HasAccount:         true,
		AccountID:          account.ID,
		Email:              account.Email,
		SubscriptionStatus: &status,
		Characters:         chars,
	}, nil
}
