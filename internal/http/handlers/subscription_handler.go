// Subscription HTTP handlers.
//
// This file exposes REST endpoints for billing:
//   - GET  /subscription/pricing          (static pricing table)
//   - POST /subscription/create-checkout  (open a payment session)
//   - POST /subscription/webhook          (payment event intake)
//   - GET  /subscription/{accountId}      (subscription + grants)
//
// The webhook endpoint verifies the provider signature before anything else
// touches the payload, caps the body at 64KiB, and acknowledges exact
// redeliveries without reprocessing. Only successfully applied events stay
// deduplicated; a failed apply leaves the event eligible for retry.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/topfivefriends/companion-accounts/internal/domain"
	"github.com/topfivefriends/companion-accounts/internal/http/middleware"
	"github.com/topfivefriends/companion-accounts/internal/services"
)

//
// DTOs
//

// PricingResponse publishes the monthly pricing table.
type PricingResponse struct {
	Pricing  map[int]services.PricingTier `json:"pricing"`
	Currency string                       `json:"currency"`
	Interval string                       `json:"interval"`
}

// CreateCheckoutRequest is the JSON payload opening a checkout session for a
// verified magic-link token.
type CreateCheckoutRequest struct {
	Token      string   `json:"token" binding:"required"`
	Tier       int      `json:"tier" binding:"required"`
	Characters []string `json:"characters" binding:"required"`
	SuccessURL string   `json:"successUrl"`
	CancelURL  string   `json:"cancelUrl"`
}

// CreateCheckoutResponse carries the provider session handle and redirect URL.
type CreateCheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// GetPricing godoc
// @ID          getPricing
// @Summary     Get pricing
// @Description Returns the published monthly pricing table.
// @Tags        Subscriptions
// @Produce     json
//
// @Success     200  {object}  handlers.PricingResponse
// @Router      /subscription/pricing [get]
func (h *Handlers) GetPricing(c *gin.Context) {
	ok(c, http.StatusOK, PricingResponse{
		Pricing:  services.Pricing,
		Currency: "usd",
		Interval: "month",
	})
}

// CreateCheckout godoc
// @ID          createCheckout
// @Summary     Create a checkout session
// @Description Opens a subscription-mode payment session for a verified
// @Description magic-link token. The selection must match the tier exactly.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateCheckoutRequest  true  "Checkout payload"
//
// @Success     200  {object}  handlers.CreateCheckoutResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     500  {object}  handlers.ErrorResponse  "Provider error"
// @Router      /subscription/create-checkout [post]
func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" || len(req.Characters) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing token, tier, or characters")
		return
	}

	characters := make([]domain.Character, 0, len(req.Characters))
	for _, raw := range req.Characters {
		character, valid := domain.ParseCharacter(raw)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
			return
		}
		characters = append(characters, character)
	}

	pending, err := h.linkSvc.Verify(c.Request.Context(), req.Token)
	switch {
	case errors.Is(err, services.ErrLinkNotFound), errors.Is(err, services.ErrLinkExpired):
		fail(c, http.StatusBadRequest, ErrCodeInvalidToken, "Invalid token")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	sessionID, url, err := h.billingSvc.CreateCheckoutSession(c.Request.Context(), pending, req.Tier, characters, req.SuccessURL, req.CancelURL)
	switch {
	case errors.Is(err, services.ErrInvalidTier):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "invalid tier")
		return
	case errors.Is(err, services.ErrTierMismatch):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "character selection must match tier")
		return
	case errors.Is(err, services.ErrInvalidCharacter):
		fail(c, http.StatusBadRequest, ErrCodeValidation, "unknown character")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to create checkout session")
		return
	}

	ok(c, http.StatusOK, CreateCheckoutResponse{SessionID: sessionID, URL: url})
}

// Webhook godoc
// @ID          paymentWebhook
// @Summary     Payment event intake
// @Description Verifies the provider signature, dedups redeliveries, and
// @Description applies subscription lifecycle events to the store.
// @Tags        Subscriptions
// @Accept      json
// @Produce     json
//
// @Param       Stripe-Signature  header  string  true  "Signature header"
//
// @Success     200  {object}  map[string]bool
// @Failure     400  {object}  handlers.ErrorResponse  "Bad or missing signature"
// @Failure     500  {object}  handlers.ErrorResponse  "Reconciliation failed"
// @Router      /subscription/webhook [post]
func (h *Handlers) Webhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidSignature, "signature verification failed")
		return
	}

	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	fresh, err := h.billingSvc.MarkEventProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	if !fresh {
		lg.Info().Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("duplicate webhook event acknowledged")
		ok(c, http.StatusOK, gin.H{"received": true})
		return
	}

	// Any failure past this point releases the ledger row before the error
	// response, so the provider's retry is processed instead of acknowledged
	// as a duplicate.
	failAndRelease := func(status int, code, msg string) {
		if uerr := h.billingSvc.UnmarkEvent(ctx, event.ID); uerr != nil {
			lg.Error().Err(uerr).Str("event_id", event.ID).Msg("webhook event release failed")
		}
		fail(c, status, code, msg)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			failAndRelease(http.StatusBadRequest, ErrCodeBadRequest, "invalid session payload")
			return
		}
		err = h.billingSvc.HandleCheckoutCompleted(ctx, checkoutCompletedEvent(&sess))

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			failAndRelease(http.StatusBadRequest, ErrCodeBadRequest, "invalid subscription payload")
			return
		}
		err = h.billingSvc.HandleSubscriptionUpsert(ctx, sub.ID, string(sub.Status),
			unixTime(sub.CurrentPeriodStart), unixTime(sub.CurrentPeriodEnd))

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			failAndRelease(http.StatusBadRequest, ErrCodeBadRequest, "invalid subscription payload")
			return
		}
		err = h.billingSvc.HandleSubscriptionDeleted(ctx, sub.ID)

	case "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			failAndRelease(http.StatusBadRequest, ErrCodeBadRequest, "invalid invoice payload")
			return
		}
		err = h.billingSvc.HandleInvoicePaid(ctx, invoiceSubscriptionID(&inv), unixTime(inv.PeriodEnd))

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			failAndRelease(http.StatusBadRequest, ErrCodeBadRequest, "invalid invoice payload")
			return
		}
		err = h.billingSvc.HandleInvoicePaymentFailed(ctx, invoiceSubscriptionID(&inv))

	default:
		lg.Debug().Str("event_type", string(event.Type)).Msg("ignoring unhandled webhook event")
	}

	if err != nil {
		lg.Error().Err(err).Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("webhook reconciliation failed")
		failAndRelease(http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	ok(c, http.StatusOK, gin.H{"received": true})
}

// GetSubscription godoc
// @ID          getSubscription
// @Summary     Get subscription details
// @Description Returns the account's latest subscription (nil when none) and
// @Description its granted characters.
// @Tags        Subscriptions
// @Produce     json
//
// @Param       accountId  path  string  true  "Account ID"
//
// @Success     200  {object}  services.SubscriptionView
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /subscription/{accountId} [get]
func (h *Handlers) GetSubscription(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("accountId"))
	if accountID == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "missing account id")
		return
	}

	view, err := h.billingSvc.GetSubscriptionView(c.Request.Context(), accountID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	ok(c, http.StatusOK, view)
}

//
// Webhook payload mapping
//

// checkoutCompletedEvent lifts the fields the reconciler needs out of a
// completed checkout session, including the metadata planted at creation.
func checkoutCompletedEvent(sess *stripe.CheckoutSession) services.CheckoutCompleted {
	ev := services.CheckoutCompleted{
		Email:      sess.CustomerEmail,
		Token:      sess.Metadata["token"],
		ChatID:     sess.Metadata["chat_id"],
		Character:  domain.Character(sess.Metadata["character"]),
		Characters: splitCharacters(sess.Metadata["characters"]),
	}
	if ev.Email == "" && sess.CustomerDetails != nil {
		ev.Email = sess.CustomerDetails.Email
	}
	if tier, err := strconv.Atoi(sess.Metadata["tier"]); err == nil {
		ev.Tier = tier
	}
	if sess.Customer != nil {
		ev.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		ev.SubscriptionID = sess.Subscription.ID
	}
	return ev
}

// splitCharacters parses the comma-joined character list planted in session
// metadata. Validation happens downstream so an unknown name is merely
// skipped, not fatal to the whole event.
func splitCharacters(s string) []domain.Character {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.Character, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, domain.Character(p))
		}
	}
	return out
}

// unixTime converts a provider epoch-seconds field to *time.Time, treating
// zero as absent.
func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// invoiceSubscriptionID extracts the subscription id an invoice belongs to,
// empty for one-off invoices.
func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Subscription != nil {
		return inv.Subscription.ID
	}
	return ""
}
