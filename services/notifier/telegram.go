package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pisowatch/internal/scraper"
	"pisowatch/logger"
	errs "pisowatch/pkg/errors"
)

// maxListingMessages caps per-listing messages per run; Telegram flood
// limits kick in around 20 messages to the same chat.
const maxListingMessages = 10

// TelegramNotifier sends new-listing digests through the Telegram Bot API.
type TelegramNotifier struct {
	token   string
	chatID  string
	client  *http.Client
	baseURL string
	log     *logger.Logger
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://api.telegram.org",
		log:     logger.ForNotifier("telegram"),
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsConfigured() bool {
	return t.token != "" && t.chatID != ""
}

func (t *TelegramNotifier) Notify(ctx context.Context, listings []*scraper.Listing, testMode bool) error {
	if len(listings) == 0 {
		return nil
	}

	messages := []string{summaryText(listings)}
	for i, l := range listings {
		if i >= maxListingMessages {
			messages = append(messages, fmt.Sprintf("... y %d anuncios más", len(listings)-maxListingMessages))
			break
		}
		messages = append(messages, listingText(l))
	}

	if testMode {
		for _, msg := range messages {
			t.log.Info().Str("message", msg).Msg("Test mode, not sending")
		}
		return nil
	}

	for _, msg := range messages {
		if err := t.sendMessage(ctx, msg); err != nil {
			return err
		}
		// Stay under the Bot API flood limit
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return errs.NewNotification("telegram", "notification cancelled", ctx.Err())
		}
	}

	t.log.Info().Int("listings", len(listings)).Msg("Telegram notification sent")
	return nil
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return errs.NewNotification("telegram", "failed to encode message", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errs.NewNotification("telegram", "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errs.NewNotification("telegram", "sendMessage request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return errs.NewNotification("telegram",
			fmt.Sprintf("sendMessage returned HTTP %d: %s", resp.StatusCode, apiErr.Description), nil)
	}
	return nil
}
