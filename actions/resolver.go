package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/go-github/v57/github"

	dperrors "github.com/randalmurphal/docpreviewer/errors"
	dphttp "github.com/randalmurphal/docpreviewer/http"
)

// DefaultJobLabel is the check run name of the documentation build job.
const DefaultJobLabel = "Doc Build and Upload"

// perPage is the page size for commits and check runs.
const perPage = 100

// ArtifactReference identifies the artifact built for a pull request.
type ArtifactReference struct {
	DownloadURL string
	RunID       uint64
	CommitSHA   string
}

// Resolver turns a pull request into the download URL of its documentation
// artifact by chaining three GitHub API calls. Response bodies are decoded
// generically so a body of the wrong shape is reported with its content.
type Resolver struct {
	client   *github.Client
	jobLabel string
	logger   *slog.Logger
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Client *github.Client

	// JobLabel is the check run name of the documentation build. Defaults
	// to DefaultJobLabel.
	JobLabel string

	Logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("GitHub client is required")
	}

	r := &Resolver{
		client:   cfg.Client,
		jobLabel: cfg.JobLabel,
		logger:   cfg.Logger,
	}
	if r.jobLabel == "" {
		r.jobLabel = DefaultJobLabel
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// JobLabel returns the check run name RunID matches.
func (r *Resolver) JobLabel() string {
	return r.jobLabel
}

// LastCommit returns the sha of the pull request's most recent commit. The
// API lists commits oldest first, so every page is read and the final
// entry wins.
func (r *Resolver) LastCommit(ctx context.Context, owner, repo string, pr uint64) (string, error) {
	path := fmt.Sprintf("repos/%s/%s/pulls/%d/commits", url.PathEscape(owner), url.PathEscape(repo), pr)

	seen := []any{}
	iter := dphttp.NewPageIterator(func(ctx context.Context, page int) ([]any, int, error) {
		var body any
		resp, err := r.get(ctx, path, page, &body)
		if err != nil {
			return nil, 0, fmt.Errorf("list commits: %w", err)
		}
		commits, ok := body.([]any)
		if !ok {
			return nil, 0, dperrors.NewContentError("No commits found", body)
		}
		seen = append(seen, commits...)
		return commits, resp.NextPage, nil
	})

	last, ok, err := iter.Last(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", dperrors.NewContentError("No commits found", seen)
	}
	sha, ok := field(last, "sha").(string)
	if !ok {
		return "", dperrors.NewContentError("last commit is not a string", last)
	}

	r.logger.Debug("listed pull request commits",
		"owner", owner, "repo", repo, "pr", pr, "commits", iter.Fetched(), "pages", iter.Pages())
	return sha, nil
}

// RunID finds the first check run on sha named after the documentation
// build job and returns the workflow run id from its details URL.
func (r *Resolver) RunID(ctx context.Context, owner, repo, sha string) (uint64, error) {
	path := fmt.Sprintf("repos/%s/%s/commits/%s/check-runs", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))

	var body any
	iter := dphttp.NewPageIterator(func(ctx context.Context, page int) ([]any, int, error) {
		body = nil
		resp, err := r.get(ctx, path, page, &body)
		if err != nil {
			return nil, 0, fmt.Errorf("list check runs: %w", err)
		}
		runs, ok := field(body, "check_runs").([]any)
		if !ok {
			return nil, 0, dperrors.NewContentError("no check runs found", body)
		}
		return runs, resp.NextPage, nil
	})

	run, ok, err := iter.Find(ctx, func(run any) bool {
		name, _ := field(run, "name").(string)
		return name == r.jobLabel
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, dperrors.NewContentError("no check runs found", body)
	}
	detailsURL, ok := field(run, "details_url").(string)
	if !ok {
		return 0, dperrors.NewContentError("details_url not found", body)
	}

	return ExtractRunID(detailsURL)
}

// ArtifactURL returns the archive download URL of the only artifact of a
// workflow run. Zero or several artifacts are an error.
func (r *Resolver) ArtifactURL(ctx context.Context, owner, repo string, runID uint64) (string, error) {
	path := fmt.Sprintf("repos/%s/%s/actions/runs/%d/artifacts", url.PathEscape(owner), url.PathEscape(repo), runID)

	var body any
	if _, err := r.get(ctx, path, 0, &body); err != nil {
		return "", fmt.Errorf("list artifacts: %w", err)
	}
	artifacts, ok := field(body, "artifacts").([]any)
	if !ok {
		return "", dperrors.NewContentError("no artifacts found", body)
	}

	// total_count covers artifacts beyond the first page.
	found := int64(len(artifacts))
	if total, ok := field(body, "total_count").(float64); ok && found > 0 && int64(total) > found {
		found = int64(total)
	}
	if found != 1 {
		return "", dperrors.NewContentError(fmt.Sprintf("Expected 1 artifact, %d found", found), body)
	}

	downloadURL, ok := field(artifacts[0], "archive_download_url").(string)
	if !ok {
		return "", dperrors.NewContentError("artifact url is not a string", body)
	}
	return downloadURL, nil
}

// Resolve chains LastCommit, RunID and ArtifactURL.
func (r *Resolver) Resolve(ctx context.Context, owner, repo string, pr uint64) (*ArtifactReference, error) {
	sha, err := r.LastCommit(ctx, owner, repo, pr)
	if err != nil {
		return nil, err
	}

	runID, err := r.RunID(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	downloadURL, err := r.ArtifactURL(ctx, owner, repo, runID)
	if err != nil {
		return nil, err
	}

	return &ArtifactReference{DownloadURL: downloadURL, RunID: runID, CommitSHA: sha}, nil
}

// get decodes the JSON body of a GET on path into v. Page 0 asks for the
// first page.
func (r *Resolver) get(ctx context.Context, path string, page int, v any) (*github.Response, error) {
	query := url.Values{"per_page": {strconv.Itoa(perPage)}}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}

	req, err := r.client.NewRequest(http.MethodGet, path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(ctx, req, v)
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return resp, nil
}

// checkResponse converts anything but a 200 into a StatusError. go-github
// reports non-2xx statuses as errors but accepts other 2xx codes silently.
func checkResponse(resp *github.Response, err error) error {
	if resp != nil && resp.Response != nil && resp.StatusCode != http.StatusOK {
		statusErr := &dphttp.StatusError{StatusCode: resp.StatusCode, Err: err}
		if resp.Request != nil {
			statusErr.URL = resp.Request.URL.Redacted()
		}
		var apiErr *github.ErrorResponse
		if errors.As(err, &apiErr) {
			statusErr.Message = apiErr.Message
		}
		return statusErr
	}
	return err
}

// field returns key of a decoded JSON object, or nil when v is not an
// object.
func field(v any, key string) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}
