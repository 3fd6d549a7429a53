// Handler wiring.
//
// This file defines the service contracts consumed by the HTTP layer and the
// Handlers aggregate that binds them. Handlers are transport-thin: they
// validate input, call application services, and translate results into HTTP
// responses.
package handlers

import (
	"context"
	"time"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/services"
)

//
// Service contracts (context-aware)
//

// AccessService resolves entitlement decisions for (chat id, character)
// pairs.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AccessService interface {
	// CheckAccess decides whether chatID may talk to character.
	CheckAccess(ctx context.Context, chatID string, character domain.Character) (*services.AccessDecision, error)
	// ListAccess returns the account-centric summary for a chat id.
	ListAccess(ctx context.Context, chatID string) (*services.AccessSummary, error)
}

// TrialService meters the free allowance per (chat id, character) pair.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TrialService interface {
	// Ensure returns the trial for the pair, creating it when absent.
	Ensure(ctx context.Context, chatID string, character domain.Character) (*domain.Trial, error)
	// Consume spends one trial message and returns the remaining count.
	Consume(ctx context.Context, chatID string, character domain.Character) (int, error)
}

// LinkService drives the magic-link account flow.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type LinkService interface {
	// Initiate stores a pending link and emails the magic link.
	Initiate(ctx context.Context, email, chatID string, character domain.Character, firstName string) (string, error)
	// Verify peeks a pending link by token without consuming it.
	Verify(ctx context.Context, token string) (*domain.PendingLink, error)
	// Complete finalizes the account, grants, and chat link, burning the token.
	Complete(ctx context.Context, token string, characters []domain.Character, stripeCustomerID *string) (string, error)
}

// BillingService creates checkout sessions and reconciles payment events.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type BillingService interface {
	// CreateCheckoutSession opens a subscription-mode checkout session.
	CreateCheckoutSession(ctx context.Context, pending *domain.PendingLink, tier int, characters []domain.Character, successURL, cancelURL string) (sessionID, url string, err error)
	// MarkEventProcessed dedups webhook deliveries; false means replay.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	// UnmarkEvent releases a recorded event id after a failed apply.
	UnmarkEvent(ctx context.Context, eventID string) error
	// HandleCheckoutCompleted applies a completed checkout to the store.
	HandleCheckoutCompleted(ctx context.Context, ev services.CheckoutCompleted) error
	// HandleSubscriptionUpsert applies a created/updated lifecycle event.
	HandleSubscriptionUpsert(ctx context.Context, subscriptionID, status string, periodStart, periodEnd *time.Time) error
	// HandleSubscriptionDeleted cancels a subscription and its account.
	HandleSubscriptionDeleted(ctx context.Context, subscriptionID string) error
	// HandleInvoicePaid refreshes the paid period and forces active.
	HandleInvoicePaid(ctx context.Context, subscriptionID string, periodEnd *time.Time) error
	// HandleInvoicePaymentFailed marks the owning account past_due.
	HandleInvoicePaymentFailed(ctx context.Context, subscriptionID string) error
	// GetSubscriptionView loads the latest subscription and grants.
	GetSubscriptionView(ctx context.Context, accountID string) (*services.SubscriptionView, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for access checks, trials, magic links, and
// billing. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	accessSvc  AccessService
	trialSvc   TrialService
	linkSvc    LinkService
	billingSvc BillingService

	// webhookSecret authenticates payment-provider webhook deliveries.
	webhookSecret string
	// trialAllowance is the starting message budget, used to report
	// whether a trial was freshly created.
	trialAllowance int
}

// New constructs and returns a Handlers instance bound to the given services.
func New(accessSvc AccessService, trialSvc TrialService, linkSvc LinkService, billingSvc BillingService, webhookSecret string, trialAllowance int) *Handlers {
	return &Handlers{
		accessSvc:      accessSvc,
		trialSvc:       trialSvc,
		linkSvc:        linkSvc,
		billingSvc:     billingSvc,
		webhookSecret:  webhookSecret,
		trialAllowance: trialAllowance,
	}
}
