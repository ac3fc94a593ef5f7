package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
)

// =============================================================================
// SlackNotifier
// =============================================================================

// SlackNotifier sends notifications to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
	Username   string
	Client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		WebhookURL: webhookURL,
		Username:   "doc-previewer",
		Client:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SlackOption configures SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the channel to post to.
func WithSlackChannel(channel string) SlackOption {
	return func(n *SlackNotifier) { n.Channel = channel }
}

// WithSlackUsername sets the bot username.
func WithSlackUsername(username string) SlackOption {
	return func(n *SlackNotifier) { n.Username = username }
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	title := string(event.Type)
	if subject := event.Subject(); subject != "" {
		title = subject
	}

	attachment := slackAttachment{
		Color:     n.colorForSeverity(event.Severity),
		Title:     fmt.Sprintf("%s %s", n.emojiForEvent(event), title),
		TitleLink: event.URL,
		Text:      event.Message,
		Footer:    string(event.Type),
		Timestamp: event.Timestamp.Unix(),
		Fields:    n.fieldsFromMetadata(event.Metadata),
	}

	payload := slackPayload{
		Username:    n.Username,
		Attachments: []slackAttachment{attachment},
	}

	if n.Channel != "" {
		payload.Channel = n.Channel
	}

	if err := postJSON(ctx, n.Client, n.WebhookURL, payload, nil); err != nil {
		return fmt.Errorf("slack message for %s: %w", event.Type, err)
	}
	return nil
}

func (n *SlackNotifier) emojiForEvent(event Event) string {
	switch event.Type {
	case EventPreviewPublished:
		return ":white_check_mark:"
	case EventPreviewFailed:
		return ":x:"
	case EventPreviewsSwept:
		return ":broom:"
	default:
		return ":loudspeaker:"
	}
}

func (n *SlackNotifier) colorForSeverity(severity string) string {
	switch severity {
	case SeverityError:
		return "danger"
	case SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

// fieldsFromMetadata renders metadata as short fields sorted by key.
func (n *SlackNotifier) fieldsFromMetadata(metadata map[string]any) []slackField {
	if len(metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slackField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slackField{
			Title: k,
			Value: fmt.Sprintf("%v", metadata[k]),
			Short: true,
		})
	}
	return fields
}

// Slack webhook payload types
type slackPayload struct {
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
