package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramMessenger delivers chat messages through the Telegram Bot API.
type TelegramMessenger struct {
	base   string
	client *http.Client
}

// NewTelegramMessenger builds a messenger with the given per-call timeout.
func NewTelegramMessenger(timeout time.Duration) *TelegramMessenger {
	return &TelegramMessenger{base: telegramAPIBase, client: newHTTPClient(timeout)}
}

type telegramSendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// SendMessage posts text to chatID via the bot identified by botToken.
// Delivery is confirmed only by a 2xx response.
func (t *TelegramMessenger) SendMessage(ctx context.Context, botToken, chatID, text string) error {
	body, err := json.Marshal(telegramSendRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	return nil
}
