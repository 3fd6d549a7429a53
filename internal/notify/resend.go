package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/topfivefriends/companion-accounts/internal/config"
	"github.com/topfivefriends/companion-accounts/internal/domain"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer sends magic-link emails through the Resend HTTP API, with the
// persona's display name as the sender.
type ResendMailer struct {
	apiKey     string
	fromDomain string
	characters map[domain.Character]config.CharacterInfo
	client     *http.Client
}

// NewResendMailer builds a mailer bound to the persona catalogue.
func NewResendMailer(apiKey, fromDomain string, characters map[domain.Character]config.CharacterInfo, timeout time.Duration) *ResendMailer {
	return &ResendMailer{
		apiKey:     apiKey,
		fromDomain: fromDomain,
		characters: characters,
		client:     newHTTPClient(timeout),
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendMagicLink emails the magic link in the persona's voice. A non-2xx
// response or transport failure is returned as an error; the caller decides
// whether the underlying pending link should survive for a retry.
func (m *ResendMailer) SendMagicLink(ctx context.Context, to string, character domain.Character, link, firstName string) error {
	info := m.characters[character]
	greeting := "hey there!"
	if firstName != "" {
		greeting = fmt.Sprintf("hey %s!", firstName)
	}

	payload := resendRequest{
		From:    fmt.Sprintf("%s <no-reply@%s>", info.DisplayName, m.fromDomain),
		To:      []string{to},
		Subject: fmt.Sprintf("%s your link to keep chatting", greeting),
		HTML:    renderMagicLinkHTML(info.DisplayName, greeting, link),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// renderMagicLinkHTML produces the short personalized email body. Layout kept
// deliberately simple: one heading, two lines of copy, one button.
func renderMagicLinkHTML(displayName, greeting, link string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 500px; margin: 0 auto; padding: 40px 20px;">
  <h1 style="font-size: 24px; font-weight: 600; color: #1a1a1a; margin-bottom: 24px;">%s</h1>
  <p style="font-size: 16px; color: #4a4a4a; margin-bottom: 16px;">it's %s — you clicked through! i'm so glad you want to keep talking.</p>
  <p style="font-size: 16px; color: #4a4a4a; margin-bottom: 32px;">click the button below to pick your plan and we can get back to it:</p>
  <a href="%s" style="display: inline-block; background: #7c3aed; color: white; font-size: 16px; font-weight: 600; padding: 14px 32px; border-radius: 8px; text-decoration: none;">Choose Your Plan</a>
  <p style="font-size: 14px; color: #888; margin-top: 32px;">this link expires in 24 hours. if you didn't request this, you can ignore it.</p>
  <p style="font-size: 14px; color: #888; margin-top: 24px;">— %s<br><span style="color: #aaa;">Top Five Friends</span></p>
</body>
</html>`, greeting, displayName, link, displayName)
}
