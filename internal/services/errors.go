// Package services defines the business logic for trials, magic links,
// entitlements, and payment reconciliation. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

var (
	// ErrInvalidEmail is returned when a magic-link request carries a
	// syntactically invalid email address.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrMissingFields is returned when a request omits a required field.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidCharacter is returned when a character value is not part of
	// the persona catalogue.
	ErrInvalidCharacter = errors.New("unknown character")

	// ErrEmailDelivery indicates the magic-link email could not be sent.
	// The pending link row survives so a fresh initiate can retry.
	ErrEmailDelivery = errors.New("failed to send email")

	// ErrLinkNotFound indicates the magic-link token does not exist.
	ErrLinkNotFound = errors.New("invalid or expired link")

	// ErrLinkExpired indicates the magic-link token exists but is past its
	// expiry; the stale row is removed as a side effect.
	ErrLinkExpired = errors.New("link has expired")

	// ErrInvalidTier is returned when a checkout request names a pricing
	// tier outside the published table.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrTierMismatch is returned when the number of selected characters
	// does not equal the requested tier.
	ErrTierMismatch = errors.New("character count does not match tier")

	// ErrSubscriptionNotFound indicates a lifecycle event referenced a
	// subscription id with no matching row; the event is a logged no-op.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
