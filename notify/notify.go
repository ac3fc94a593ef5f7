package notify

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// Notification Types
// =============================================================================

// EventType represents the type of preview event.
type EventType string

// Event type constants.
const (
	EventPreviewPublished EventType = "preview_published"
	EventPreviewFailed    EventType = "preview_failed"
	EventPreviewsSwept    EventType = "previews_swept"
)

// Severity constants for notifications.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Event describes a preview event for notification. Sweep events leave the
// pull request fields empty.
type Event struct {
	Type        EventType      `json:"type"`
	Owner       string         `json:"owner,omitempty"`
	Repository  string         `json:"repository,omitempty"`
	PullRequest uint64         `json:"pull_request,omitempty"`
	URL         string         `json:"url,omitempty"`
	Message     string         `json:"message"`
	Severity    string         `json:"severity"` // SeverityInfo, SeverityWarning, SeverityError
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Subject returns "owner/repository#pr", or "" for events without a pull
// request.
func (e Event) Subject() string {
	if e.Owner == "" && e.Repository == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s#%d", e.Owner, e.Repository, e.PullRequest)
}

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier sends notifications about preview events.
type Notifier interface {
	// Notify sends a notification. Implementations should be non-blocking
	// and handle errors gracefully (log, don't crash).
	Notify(ctx context.Context, event Event) error
}
