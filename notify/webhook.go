package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// defaultTimeout bounds a single notification request.
const defaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a rejected delivery's response is kept.
const maxErrorBody = 512

// Headers set on every webhook delivery.
const (
	HeaderEvent    = "X-Preview-Event"
	HeaderDelivery = "X-Preview-Delivery"
)

// =============================================================================
// WebhookNotifier
// =============================================================================

// WebhookNotifier posts events as JSON to a generic HTTP webhook. The event
// type and a per-delivery id travel in HeaderEvent and HeaderDelivery so
// receivers can route and deduplicate without parsing the body.
type WebhookNotifier struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

// NewWebhookNotifier creates a webhook notifier. headers are added to every
// delivery and may override the defaults.
func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:     url,
		Headers: headers,
		Client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	headers := map[string]string{
		HeaderEvent:    string(event.Type),
		HeaderDelivery: uuid.NewString(),
	}
	for k, v := range n.Headers {
		headers[k] = v
	}

	if err := postJSON(ctx, n.Client, n.URL, event, headers); err != nil {
		if subject := event.Subject(); subject != "" {
			return fmt.Errorf("webhook %s for %s: %w", event.Type, subject, err)
		}
		return fmt.Errorf("webhook %s: %w", event.Type, err)
	}
	return nil
}

// postJSON POSTs v as JSON. Any status of 300 or above is an error carrying
// the start of the response body.
func postJSON(ctx context.Context, client *http.Client, url string, v any, headers map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if text := strings.TrimSpace(string(snippet)); text != "" {
			return fmt.Errorf("returned %d: %s", resp.StatusCode, text)
		}
		return fmt.Errorf("returned %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
