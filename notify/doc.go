// Package notify provides notification services for preview events.
//
// Core types:
//   - Notifier: Interface for sending notifications
//   - Event: Notification event with type, pull request, message, and metadata
//   - EventType: preview_published, preview_failed or previews_swept
//
// Implementations:
//   - SlackNotifier: Sends notifications to Slack webhooks
//   - WebhookNotifier: Sends notifications to generic webhooks
//   - LogNotifier: Logs notifications with slog
//   - MultiNotifier: Combines multiple notifiers
//   - NopNotifier: No-op notifier
//
// Example usage:
//
//	notifier := notify.NewSlackNotifier(webhookURL,
//	    notify.WithSlackChannel("#docs"),
//	)
//	err := notifier.Notify(ctx, notify.Event{
//	    Type:        notify.EventPreviewPublished,
//	    Owner:       "pandas-dev",
//	    Repository:  "pandas",
//	    PullRequest: 56000,
//	    URL:         "https://doc-previewer.pydata.org/pandas-dev/pandas/56000/",
//	    Message:     "Preview published",
//	})
package notify
