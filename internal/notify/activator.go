package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BackendActivator calls a persona backend's /billing/activate endpoint after
// a chat is linked to an account.
type BackendActivator struct {
	client *http.Client
}

// NewBackendActivator builds an activator with the given per-call timeout.
func NewBackendActivator(timeout time.Duration) *BackendActivator {
	return &BackendActivator{client: newHTTPClient(timeout)}
}

type activatePayload struct {
	ChatID    string `json:"chat_id"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// Activate POSTs the activation payload to baseURL/billing/activate.
func (a *BackendActivator) Activate(ctx context.Context, baseURL, chatID, accountID, email string) error {
	body, err := json.Marshal(activatePayload{ChatID: chatID, AccountID: accountID, Email: email})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/billing/activate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("activate: status %d", resp.StatusCode)
	}
	return nil
}
