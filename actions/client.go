package actions

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	dphttp "github.com/randalmurphal/docpreviewer/http"
)

// DefaultEndpoint is the public GitHub REST API.
const DefaultEndpoint = "https://api.github.com/"

// DefaultUserAgent identifies this service to GitHub and artifact hosts.
const DefaultUserAgent = "doc-previewer"

// APIVersion is sent as X-GitHub-Api-Version on every API call.
const APIVersion = "2022-11-28"

// ClientConfig configures the outbound HTTP client.
type ClientConfig struct {
	// Endpoint is the API base URL. Defaults to DefaultEndpoint.
	Endpoint string

	// Token is the bearer token, only ever sent to the Endpoint host.
	Token string

	// MaxRetries and RetryWait configure the retrying transport.
	MaxRetries int
	RetryWait  time.Duration

	// Timeout bounds a whole request including the body. Defaults to
	// dphttp.DefaultTimeout.
	Timeout time.Duration

	UserAgent string

	Logger *slog.Logger

	// Base replaces the network transport, for tests.
	Base http.RoundTripper
}

// NewHTTPClient builds the client shared by the resolver and the artifact
// fetcher. Requests to the API host carry the token and GitHub headers;
// redirected downloads to other hosts go out anonymously. Both paths retry
// transient failures.
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}

	endpoint, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = dphttp.DefaultTimeout
	}

	api := dphttp.NewTransport(dphttp.TransportConfig{
		Base:       cfg.Base,
		MaxRetries: cfg.MaxRetries,
		RetryWait:  cfg.RetryWait,
		Logger:     cfg.Logger,
		Headers: map[string]string{
			"Accept":               "application/vnd.github+json",
			"X-GitHub-Api-Version": APIVersion,
			"User-Agent":           userAgent,
		},
	})
	download := dphttp.NewTransport(dphttp.TransportConfig{
		Base:       cfg.Base,
		MaxRetries: cfg.MaxRetries,
		RetryWait:  cfg.RetryWait,
		Logger:     cfg.Logger,
		Headers:    map[string]string{"User-Agent": userAgent},
	})

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	return &http.Client{
		Timeout: timeout,
		Transport: &dphttp.HostScoped{
			Hosts:      []string{endpoint.Host},
			Authorized: &oauth2.Transport{Source: ts, Base: api},
			Anonymous:  download,
		},
	}, nil
}

// NewGitHubClient wraps httpClient in a go-github client rooted at endpoint.
func NewGitHubClient(httpClient *http.Client, endpoint, userAgent string) (*github.Client, error) {
	base, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(httpClient)
	client.BaseURL = base
	if userAgent != "" {
		client.UserAgent = userAgent
	} else {
		client.UserAgent = DefaultUserAgent
	}
	return client, nil
}

// parseEndpoint validates an API base URL and ensures the trailing slash
// go-github requires. A repo-scoped base such as
// https://api.github.com/repos/ is accepted too; go-github adds the repos/
// segment itself.
func parseEndpoint(raw string) (*url.URL, error) {
	if raw == "" {
		raw = DefaultEndpoint
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	raw = strings.TrimSuffix(raw, "/repos/") + "/"

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse GitHub endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("GitHub endpoint %q must be an absolute http(s) URL", raw)
	}
	return u, nil
}
