package errors

import (
	"errors"
	"net/http"
	"strings"

	dphttp "github.com/randalmurphal/docpreviewer/http"
)

// Diagnostic wraps a pipeline error with an operator-facing summary and
// suggestion. Its Error text is what failed preview requests return.
type Diagnostic struct {
	// Err is the underlying error
	Err error

	// Kind classifies Err
	Kind Kind

	// Message is a short description of what went wrong
	Message string

	// Details provides additional context (optional)
	Details string

	// Suggestion is an actionable hint (optional)
	Suggestion string
}

func (d *Diagnostic) Error() string {
	var sb strings.Builder
	sb.WriteString(d.Message)

	if d.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(d.Details)
	}

	if d.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(d.Suggestion)
	}

	return sb.String()
}

func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// Diagnose classifies err and attaches guidance. It returns nil for a nil
// error and passes an existing Diagnostic through unchanged.
func Diagnose(err error) *Diagnostic {
	if err == nil {
		return nil
	}

	var existing *Diagnostic
	if errors.As(err, &existing) {
		return existing
	}

	d := &Diagnostic{Err: err, Kind: KindOf(err), Details: err.Error()}

	switch d.Kind {
	case KindContent:
		d.Message = err.Error()
		d.Details = ""
		var contentErr *ContentError
		if errors.As(err, &contentErr) {
			d.Message = contentErr.Message
			d.Details = contentErr.JSON()
		}
		d.Suggestion = "The CI run may not have produced the documentation artifact yet."
	case KindPattern:
		d.Message = err.Error()
		d.Details = ""
		d.Suggestion = "The matching check run does not link to a GitHub Actions run."
	case KindStatus:
		d.Message = "GitHub returned an unexpected status."
		d.Suggestion = statusSuggestion(err)
	case KindSize:
		d.Message = "The artifact is too large."
		d.Suggestion = "Raise max_artifact_size or reduce the size of the documentation build."
	case KindArchive:
		d.Message = "The artifact is not a usable zip archive."
	case KindFilesystem:
		d.Message = "Could not write the preview to disk."
		d.Suggestion = "Check that previews_path exists and is writable by the server."
	case KindTransport:
		d.Message = "Could not reach the upstream server."
		d.Suggestion = "The server may be overloaded or unreachable.\nTry again in a moment."
	case KindPayload:
		d.Message = "Received a malformed response."
	default:
		d.Message = "Preview failed."
	}

	return d
}

func statusSuggestion(err error) string {
	var statusErr *dphttp.StatusError
	if !errors.As(err, &statusErr) {
		return ""
	}

	switch {
	case dphttp.IsUnauthorized(statusErr):
		return "Check that github.token is valid."
	case dphttp.IsRateLimited(statusErr):
		return "The GitHub rate limit was exceeded.\nTry again once it resets."
	case statusErr.StatusCode == http.StatusForbidden:
		return "The token may lack access to the repository or its Actions artifacts."
	case dphttp.IsNotFound(statusErr):
		return "Check the owner, repository and pull request number."
	case dphttp.IsRetryable(statusErr):
		return "GitHub may be having problems.\nTry again in a moment."
	default:
		return ""
	}
}
