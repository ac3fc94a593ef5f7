package preview

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidRequest is returned for owners or repositories that cannot be
// used as a path segment.
var ErrInvalidRequest = errors.New("invalid preview request")

// Request identifies the pull request to publish.
type Request struct {
	Owner       string
	Repository  string
	PullRequest uint64

	// JobLabel is the job name reported by the caller. It is only logged;
	// check runs are matched against the resolver's configured label.
	JobLabel string
}

// String returns "owner/repository#pr".
func (r Request) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repository, r.PullRequest)
}

// Validate checks that Owner and Repository are single path segments.
func (r Request) Validate() error {
	if err := validSegment("owner", r.Owner); err != nil {
		return err
	}
	return validSegment("repository", r.Repository)
}

func validSegment(field, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q is not a valid name", ErrInvalidRequest, field, value)
	case strings.ContainsAny(value, "/\\\x00"):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidRequest, field, value)
	}
	return nil
}

// Layout maps requests to preview directories and public URLs.
type Layout struct {
	// Root holds previews as Root/<owner>/<repository>/<pr>.
	Root string

	// PublicURL is the base URL Root is served under.
	PublicURL string
}

// TargetDir returns the directory a request is published to.
func (l Layout) TargetDir(req Request) string {
	return filepath.Join(l.Root, req.Owner, req.Repository, strconv.FormatUint(req.PullRequest, 10))
}

// URL returns the public URL of a request's preview, with a trailing slash.
func (l Layout) URL(req Request) string {
	base := l.PublicURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(req.Owner) + "/" + url.PathEscape(req.Repository) + "/" +
		strconv.FormatUint(req.PullRequest, 10) + "/"
}
