// Package notify implements the outbound collaborators of the accounts
// service: magic-link email dispatch, chat message delivery, and the
// best-effort activation callback to a persona's chat backend.
//
// All collaborators are plain HTTP clients with a bounded per-call timeout.
// Their failures never roll back a committed store write; callers either
// surface the error (magic-link email, where the user must be told) or log
// and continue (activation callbacks, bump messages).
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/topfivefriends/companion-accounts/internal/domain"
)

// Mailer dispatches a magic-link email.
type Mailer interface {
	// SendMagicLink emails the link embedding token to the recipient, in the
	// given persona's voice. firstName may be empty.
	SendMagicLink(ctx context.Context, to string, character domain.Character, link, firstName string) error
}

// Messenger delivers a chat message to a chat id using a persona's bot
// credential.
type Messenger interface {
	// SendMessage returns a non-nil error when delivery could not be
	// confirmed; callers treat that as retryable on a later pass.
	SendMessage(ctx context.Context, botToken, chatID, text string) error
}

// Activator notifies a persona's chat backend that a chat has been linked to
// an account and should be unlocked.
type Activator interface {
	// Activate POSTs the activation payload to the persona backend rooted at
	// baseURL. Best-effort: callers log failures and move on.
	Activate(ctx context.Context, baseURL, chatID, accountID, email string) error
}

// newHTTPClient builds the shared client shape used by every collaborator.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
