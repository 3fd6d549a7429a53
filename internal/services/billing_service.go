// Package services – BillingService
//
// This file implements the payment event reconciler and checkout session
// creation. The reconciler consumes payment-provider lifecycle events and
// applies them idempotently to the store: checkout completion creates or
// merges the account and activates the chat link; subscription lifecycle
// events update the subscription row keyed by the provider's id and map its
// status onto the owning account. Every handler tolerates at-least-once
// delivery; the processed-event ledger additionally short-circuits exact
// replays by event id, and a failed apply releases its ledger row so the
// redelivery is processed rather than swallowed.
package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"gorm.io/gorm"

	"github.com/topfivefriends/companion-accounts/internal/config"
	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/notify"
	"github.com/topfivefriends/companion-accounts/internal/repo"
)

// PricingTier is one row of the published pricing table.
type PricingTier struct {
	PriceCents int    `json:"price"`
	Name       string `json:"name"`
}

// Pricing is the static monthly pricing table keyed by tier (the number of
// personas the plan entitles). Process-wide constant, never mutated.
var Pricing = map[int]PricingTier{
	1: {PriceCents: 1999, Name: "1 Character"},
	2: {PriceCents: 3499, Name: "2 Characters"},
	4: {PriceCents: 5999, Name: "4 Characters"},
	6: {PriceCents: 7999, Name: "All 6 Characters"},
}

// CheckoutCompleted carries the fields of a completed checkout event the
// reconciler acts on. ChatID/Character are present only on the
// chat-originated single-persona path.
type CheckoutCompleted struct {
	Email          string
	Token          string
	Tier           int
	Characters     []domain.Character
	ChatID         string
	Character      domain.Character
	CustomerID     string
	SubscriptionID string
}

// newCheckoutSession creates a Stripe Checkout Session. Variable for test
// substitution.
var newCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return checkoutsession.New(params)
}

// BillingService reconciles payment events and creates checkout sessions.
type BillingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Activator fires the best-effort persona-backend callback when a
	// checkout event activates a chat link.
	Activator notify.Activator
	// Characters is the immutable persona catalogue.
	Characters map[domain.Character]config.CharacterInfo
	// Stripe holds checkout/webhook configuration.
	Stripe config.StripeConfig
	// EventTTL is the retention window of the processed-event ledger.
	EventTTL time.Duration
	// NotifyTimeout caps each best-effort outbound call.
	NotifyTimeout time.Duration
}

// ValidateCheckout checks a checkout request against the pricing table:
// the tier must be published and the persona selection must match it.
func ValidateCheckout(tier int, characters []domain.Character) error {
	if _, ok := Pricing[tier]; !ok {
		return ErrInvalidTier
	}
	if len(characters) != tier {
		return ErrTierMismatch
	}
	for _, c := range characters {
		if !c.Valid() {
			return ErrInvalidCharacter
		}
	}
	return nil
}

// CreateCheckoutSession opens a subscription-mode checkout session for a
// verified pending link. The magic-link token and chat context ride along as
// session metadata so the completed-checkout webhook can finish the linking.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, pending *domain.PendingLink, tier int, characters []domain.Character, successURL, cancelURL string) (sessionID, url string, err error) {
	if err := ValidateCheckout(tier, characters); err != nil {
		return "", "", err
	}
	if successURL == "" {
		successURL = s.Stripe.SuccessURL
	}
	if cancelURL == "" {
		cancelURL = s.Stripe.CancelURL
	}

	price := Pricing[tier]
	chars := make([]string, 0, len(characters))
	for _, c := range characters {
		chars = append(chars, c.String())
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(pending.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(int64(price.PriceCents)),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Top Five Friends — " + price.Name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx
	// The webhook consumer needs the chat context to finish linking.
	params.AddMetadata("token", pending.Token)
	params.AddMetadata("chat_id", pending.ChatID)
	params.AddMetadata("character", pending.Character.String())
	params.AddMetadata("characters", joinCharacters(characters))
	params.AddMetadata("tier", strconv.Itoa(tier))

	sess, err := newCheckoutSession(params)
	if err != nil {
		return "", "", err
	}
	return sess.ID, sess.URL, nil
}

func joinCharacters(cs []domain.Character) string {
	out := ""
	for i, c := range cs {
		if i > 0 {
			out += ","
		}
		out += c.String()
	}
	return out
}

// MarkEventProcessed records eventID in the dedup ledger. It returns false
// when the event was already processed (exact redelivery) and should be
// acknowledged without reprocessing.
func (s *BillingService) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	_ = repo.CleanExpiredWebhookEvents(ctx, s.DB, time.Now())
	_, err := repo.RecordWebhookEvent(ctx, s.DB, eventID, eventType, s.EventTTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UnmarkEvent releases a previously recorded event id so the provider's
// redelivery is processed instead of acknowledged as a duplicate. Callers
// invoke it when applying the event failed.
func (s *BillingService) UnmarkEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	return repo.DeleteWebhookEvent(ctx, s.DB, eventID)
}

// HandleCheckoutCompleted applies a completed checkout: get-or-create the
// account by email, attach the customer id when missing, upsert the
// subscription row (active), mark the account active, grant the selected
// personas, and, on the chat-originated path, replace the chat link and
// fire the activation callback. The originating magic-link token, when still
// present, is burned at the end. Events without a customer email are logged
// no-ops.
func (s *BillingService) HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	if ev.Email == "" {
		// Without an email there is no account to key on; never create one.
		log.Warn().
			Str("customer_id", ev.CustomerID).
			Str("subscription_id", ev.SubscriptionID).
			Msg("checkout event without customer email, ignoring")
		return nil
	}

	account, err := repo.GetAccountByEmail(ctx, s.DB, ev.Email)
	if errors.Is(err, repo.ErrNotFound) {
		var customerID *string
		if ev.CustomerID != "" {
			customerID = &ev.CustomerID
		}
		account, err = repo.CreateAccount(ctx, s.DB, ev.Email, customerID)
	}
	if err != nil {
		return err
	}

	if ev.CustomerID != "" {
		if err := repo.AttachStripeCustomer(ctx, s.DB, account.ID, ev.CustomerID); err != nil {
			return err
		}
	}

	if ev.SubscriptionID != "" {
		if _, err := repo.UpsertSubscription(ctx, s.DB, account.ID, ev.SubscriptionID, ev.Tier, "active"); err != nil {
			return err
		}
	}

	if err := repo.UpdateAccountStatus(ctx, s.DB, account.ID, domain.StatusActive); err != nil {
		return err
	}

	grants := ev.Characters
	if len(grants) == 0 && ev.Character != "" {
		// Chat-originated single-persona path.
		grants = []domain.Character{ev.Character}
	}
	for _, c := range grants {
		if !c.Valid() {
			log.Warn().Str("character", c.String()).Msg("checkout event carried unknown character, skipping grant")
			continue
		}
		if err := repo.AddCharacterToAccount(ctx, s.DB, account.ID, c); err != nil {
			return err
		}
	}

	if ev.ChatID != "" && ev.Character != "" && ev.Character.Valid() {
		if _, err := repo.UpsertTelegramLink(ctx, s.DB, ev.ChatID, account.ID, ev.Character); err != nil {
			return err
		}
		s.notifyActivation(ev.Character, ev.ChatID, account.ID, account.Email)
	}

	// Burn the magic-link token that started this checkout, if any survives.
	if ev.Token != "" {
		if pending, err := repo.GetPendingLinkByToken(ctx, s.DB, ev.Token); err == nil {
			_ = repo.DeletePendingLink(ctx, s.DB, pending.ID)
		}
	}
	return nil
}

// mapProviderStatus folds a free-form provider status onto the account
// status enum: active and past_due map directly, everything else cancels.
func mapProviderStatus(status string) domain.SubscriptionStatus {
	switch status {
	case "active":
		return domain.StatusActive
	case "past_due":
		return domain.StatusPastDue
	default:
		return domain.StatusCanceled
	}
}

// HandleSubscriptionUpsert applies a created/updated lifecycle event to the
// subscription row matching subscriptionID and folds the provider status
// onto the owning account. Unmatched ids are logged no-ops.
func (s *BillingService) HandleSubscriptionUpsert(ctx context.Context, subscriptionID, status string, periodStart, periodEnd *time.Time) error {
	sub, err := repo.GetSubscriptionByStripeID(ctx, s.DB, subscriptionID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info().Str("subscription_id", subscriptionID).Msg("subscription event for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	if err := repo.UpdateSubscription(ctx, s.DB, sub.ID, status, periodStart, periodEnd); err != nil {
		return err
	}
	return repo.UpdateAccountStatus(ctx, s.DB, sub.AccountID, mapProviderStatus(status))
}

// HandleSubscriptionDeleted cancels the subscription and its account.
// Unmatched ids are logged no-ops.
func (s *BillingService) HandleSubscriptionDeleted(ctx context.Context, subscriptionID string) error {
	sub, err := repo.GetSubscriptionByStripeID(ctx, s.DB, subscriptionID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info().Str("subscription_id", subscriptionID).Msg("delete event for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	if err := repo.UpdateSubscription(ctx, s.DB, sub.ID, "canceled", nil, nil); err != nil {
		return err
	}
	return repo.UpdateAccountStatus(ctx, s.DB, sub.AccountID, domain.StatusCanceled)
}

// HandleInvoicePaid refreshes the subscription's period end and forces it
// active. Events without a subscription id are ignored.
func (s *BillingService) HandleInvoicePaid(ctx context.Context, subscriptionID string, periodEnd *time.Time) error {
	if subscriptionID == "" {
		return nil
	}
	sub, err := repo.GetSubscriptionByStripeID(ctx, s.DB, subscriptionID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info().Str("subscription_id", subscriptionID).Msg("invoice.paid for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	if err := repo.UpdateSubscription(ctx, s.DB, sub.ID, "active", nil, periodEnd); err != nil {
		return err
	}
	return repo.UpdateAccountStatus(ctx, s.DB, sub.AccountID, domain.StatusActive)
}

// HandleInvoicePaymentFailed marks the owning account past_due. Unmatched
// ids are logged no-ops.
func (s *BillingService) HandleInvoicePaymentFailed(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return nil
	}
	sub, err := repo.GetSubscriptionByStripeID(ctx, s.DB, subscriptionID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info().Str("subscription_id", subscriptionID).Msg("invoice failure for unknown subscription, ignoring")
		return nil
	}
	if err != nil {
		return err
	}
	return repo.UpdateAccountStatus(ctx, s.DB, sub.AccountID, domain.StatusPastDue)
}

// SubscriptionView is the per-account subscription detail returned by the
// API: the latest subscription row plus the granted personas.
type SubscriptionView struct {
	Subscription *domain.Subscription `json:"subscription"`
	Characters   []domain.Character   `json:"characters"`
}

// GetSubscriptionView loads the latest subscription and grants for an
// account. A missing subscription yields a nil Subscription, not an error.
func (s *BillingService) GetSubscriptionView(ctx context.Context, accountID string) (*SubscriptionView, error) {
	view := &SubscriptionView{Characters: []domain.Character{}}

	sub, err := repo.GetLatestSubscriptionForAccount(ctx, s.DB, accountID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	view.Subscription = sub

	grants, err := repo.ListAccountCharacters(ctx, s.DB, accountID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		view.Characters = append(view.Characters, g.Character)
	}
	return view, nil
}

// notifyActivation fires the persona-backend callback without blocking the
// reconciler. Failure is logged, never propagated.
func (s *BillingService) notifyActivation(character domain.Character, chatID, accountID, email string) {
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
