package actions

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"

	dperrors "github.com/randalmurphal/docpreviewer/errors"
	dphttp "github.com/randalmurphal/docpreviewer/http"
	"github.com/randalmurphal/docpreviewer/testutil"
)

// =============================================================================
// ExtractRunID Tests
// =============================================================================

func TestExtractRunID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    uint64
		wantErr bool
	}{
		{name: "job url", url: "https://github.com/pandas-dev/pandas/actions/runs/555/job/9", want: 555},
		{name: "short url", url: "https://x/actions/runs/555/job/9", want: 555},
		{name: "trailing slash only", url: "https://x/actions/runs/42/", want: 42},
		{name: "leading zeros", url: "https://x/actions/runs/007/attempts/1", want: 7},
		{name: "max uint64", url: "https://x/actions/runs/18446744073709551615/", want: 18446744073709551615},
		{name: "first marker wins", url: "https://x/actions/runs/1/actions/runs/2/", want: 1},
		{name: "relative", url: "/actions/runs/3/", want: 3},
		{name: "missing marker", url: "https://github.com/o/r/runs/555/job/9", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "no trailing slash", url: "https://x/actions/runs/555", wantErr: true},
		{name: "empty segment", url: "https://x/actions/runs//job", wantErr: true},
		{name: "non numeric", url: "https://x/actions/runs/abc/job/9", wantErr: true},
		{name: "negative", url: "https://x/actions/runs/-5/job", wantErr: true},
		{name: "plus sign", url: "https://x/actions/runs/+5/job", wantErr: true},
		{name: "mixed", url: "https://x/actions/runs/12a/job", wantErr: true},
		{name: "overflow", url: "https://x/actions/runs/18446744073709551616/", wantErr: true},
		{name: "query instead of slash", url: "https://x/actions/runs/5?check_suite_focus=true", wantErr: true},
		{name: "marker case sensitive", url: "https://x/Actions/Runs/5/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractRunID(tt.url)
			if tt.wantErr {
				var patternErr *dperrors.PatternNotFoundError
				if !errors.As(err, &patternErr) {
					t.Fatalf("err = %v, want PatternNotFoundError", err)
				}
				if want := "Run id not found in: " + tt.url; err.Error() != want {
					t.Errorf("Error() = %q, want %q", err.Error(), want)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractRunID() = %d, want %d", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Resolver Tests
// =============================================================================

func newTestResolver(t *testing.T, api *testutil.GitHubAPI) *Resolver {
	t.Helper()

	api.Start(t)
	r, err := NewResolver(ResolverConfig{Client: api.Client()})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func docsAPI() *testutil.GitHubAPI {
	return &testutil.GitHubAPI{
		CommitPages: [][]*github.RepositoryCommit{{testutil.Commit("abc123")}},
		CheckRunPages: [][]*github.CheckRun{{
			testutil.CheckRun(DefaultJobLabel, "https://x/actions/runs/555/job/9"),
		}},
		Artifacts: []*github.Artifact{testutil.Artifact("https://dl/555.zip")},
	}
}

func TestResolver_Resolve(t *testing.T) {
	api := docsAPI()
	r := newTestResolver(t, api)

	ref, err := r.Resolve(testutil.TestContext(t), "acme", "site", 12)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.DownloadURL != "https://dl/555.zip" {
		t.Errorf("DownloadURL = %q, want %q", ref.DownloadURL, "https://dl/555.zip")
	}
	if ref.RunID != 555 || ref.CommitSHA != "abc123" {
		t.Errorf("ref = %+v", ref)
	}

	var paths []string
	for _, req := range api.Requests() {
		paths = append(paths, req.Path)
	}
	want := []string{
		"/repos/acme/site/pulls/12/commits",
		"/repos/acme/site/commits/abc123/check-runs",
		"/repos/acme/site/actions/runs/555/artifacts",
	}
	if strings.Join(paths, " ") != strings.Join(want, " ") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestResolver_TwoArtifacts(t *testing.T) {
	api := docsAPI()
	api.Artifacts = append(api.Artifacts, testutil.Artifact("https://dl/556.zip"))
	r := newTestResolver(t, api)

	_, err := r.Resolve(testutil.TestContext(t), "acme", "site", 12)
	var contentErr *dperrors.ContentError
	if !errors.As(err, &contentErr) {
		t.Fatalf("err = %v, want ContentError", err)
	}
	if !strings.Contains(contentErr.Error(), "Expected 1 artifact, 2 found") {
		t.Errorf("Error() = %q", contentErr.Error())
	}
	if !strings.Contains(contentErr.JSON(), "https://dl/556.zip") {
		t.Errorf("JSON() should carry the artifact list, got %s", contentErr.JSON())
	}
}

func TestResolver_ContentErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(api *testutil.GitHubAPI)
		wantMsg   string
		wantValue string
	}{
		{
			name:    "no commits",
			mutate:  func(api *testutil.GitHubAPI) { api.CommitPages = [][]*github.RepositoryCommit{{}} },
			wantMsg: "No commits found",
		},
		{
			name: "last commit without sha",
			mutate: func(api *testutil.GitHubAPI) {
				api.CommitPages = [][]*github.RepositoryCommit{{testutil.Commit("old"), {}}}
			},
			wantMsg: "last commit is not a string",
		},
		{
			name: "no matching check run",
			mutate: func(api *testutil.GitHubAPI) {
				api.CheckRunPages = [][]*github.CheckRun{{testutil.CheckRun("Lint", "https://x/actions/runs/1/job/1")}}
			},
			wantMsg: "no check runs found",
		},
		{
			name: "label is case sensitive",
			mutate: func(api *testutil.GitHubAPI) {
				api.CheckRunPages = [][]*github.CheckRun{{testutil.CheckRun("doc build and upload", "https://x/actions/runs/1/job/1")}}
			},
			wantMsg: "no check runs found",
		},
		{
			name: "missing details url",
			mutate: func(api *testutil.GitHubAPI) {
				api.CheckRunPages = [][]*github.CheckRun{{testutil.CheckRun(DefaultJobLabel, "")}}
			},
			wantMsg: "details_url not found",
		},
		{
			name:    "no artifacts",
			mutate:  func(api *testutil.GitHubAPI) { api.Artifacts = nil },
			wantMsg: "Expected 1 artifact, 0 found",
		},
		{
			name: "more artifacts beyond the first page",
			mutate: func(api *testutil.GitHubAPI) {
				total := int64(150)
				api.TotalArtifacts = &total
			},
			wantMsg: "Expected 1 artifact, 150 found",
		},
		{
			name:    "artifact without url",
			mutate:  func(api *testutil.GitHubAPI) { api.Artifacts = []*github.Artifact{testutil.Artifact("")} },
			wantMsg: "artifact url is not a string",
		},
		{
			name: "sha is not a string",
			mutate: func(api *testutil.GitHubAPI) {
				api.RawBody = map[string]string{testutil.EndpointCommits: `[{"sha":5}]`}
			},
			wantMsg:   "last commit is not a string",
			wantValue: `"sha": 5`,
		},
		{
			name: "commits body is not a list",
			mutate: func(api *testutil.GitHubAPI) {
				api.RawBody = map[string]string{testutil.EndpointCommits: `{"message":"odd"}`}
			},
			wantMsg:   "No commits found",
			wantValue: `"message": "odd"`,
		},
		{
			name: "details url is not a string",
			mutate: func(api *testutil.GitHubAPI) {
				api.RawBody = map[string]string{
					testutil.EndpointCheckRuns: `{"total_count":1,"check_runs":[{"name":"Doc Build and Upload","details_url":7}]}`,
				}
			},
			wantMsg:   "details_url not found",
			wantValue: `"details_url": 7`,
		},
		{
			name: "check runs key missing",
			mutate: func(api *testutil.GitHubAPI) {
				api.RawBody = map[string]string{testutil.EndpointCheckRuns: `{"total_count":0}`}
			},
			wantMsg:   "no check runs found",
			wantValue: `"total_count": 0`,
		},
		{
			name: "artifact url is not a string",
			mutate: func(api *testutil.GitHubAPI) {
				api.RawBody = map[string]string{
					testutil.EndpointArtifacts: `{"total_count":1,"artifacts":[{"archive_download_url":false}]}`,
				}
			},
			wantMsg:   "artifact url is not a string",
			wantValue: `"archive_download_url": false`,
		},
		{
			name: "artifacts key missing",
			mutate: func(api *testutil.GitHubAPI) {
				api.RawBody = map[string]string{testutil.EndpointArtifacts: `{"total_count":0}`}
			},
			wantMsg:   "no artifacts found",
			wantValue: `"total_count": 0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := docsAPI()
			tt.mutate(api)
			r := newTestResolver(t, api)

			_, err := r.Resolve(testutil.TestContext(t), "acme", "site", 12)
			if !dperrors.IsContent(err) {
				t.Fatalf("err = %v, want content error", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			var contentErr *dperrors.ContentError
			if errors.As(err, &contentErr) && !strings.Contains(contentErr.JSON(), tt.wantValue) {
				t.Errorf("JSON() = %s, want it to contain %s", contentErr.JSON(), tt.wantValue)
			}
		})
	}
}

func TestResolver_PatternError(t *testing.T) {
	api := docsAPI()
	api.CheckRunPages = [][]*github.CheckRun{{testutil.CheckRun(DefaultJobLabel, "https://x/checks/123")}}
	r := newTestResolver(t, api)

	_, err := r.Resolve(testutil.TestContext(t), "acme", "site", 12)
	if !dperrors.IsPattern(err) {
		t.Errorf("err = %v, want pattern error", err)
	}
}

func TestResolver_StatusErrors(t *testing.T) {
	tests := []struct {
		endpoint string
		status   int
		pathPart string
	}{
		{endpoint: testutil.EndpointCommits, status: http.StatusNotFound, pathPart: "/pulls/12/commits"},
		{endpoint: testutil.EndpointCheckRuns, status: http.StatusUnauthorized, pathPart: "/commits/abc123/check-runs"},
		{endpoint: testutil.EndpointArtifacts, status: http.StatusForbidden, pathPart: "/actions/runs/555/artifacts"},
		{endpoint: testutil.EndpointCommits, status: http.StatusAccepted, pathPart: "/pulls/12/commits"},
		{endpoint: testutil.EndpointArtifacts, status: http.StatusInternalServerError, pathPart: "/actions/runs/555/artifacts"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint+"/"+http.StatusText(tt.status), func(t *testing.T) {
			api := docsAPI()
			api.Status = map[string]int{tt.endpoint: tt.status}
			r := newTestResolver(t, api)

			_, err := r.Resolve(testutil.TestContext(t), "acme", "site", 12)
			var statusErr *dphttp.StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("err = %v, want StatusError", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.status)
			}
			if !strings.Contains(statusErr.URL, tt.pathPart) {
				t.Errorf("URL = %q, want it to contain %q", statusErr.URL, tt.pathPart)
			}
		})
	}
}

func TestResolver_MalformedJSON(t *testing.T) {
	api := docsAPI()
	api.RawBody = map[string]string{testutil.EndpointCommits: `[{"sha": 12`}
	r := newTestResolver(t, api)

	_, err := r.Resolve(testutil.TestContext(t), "acme", "site", 12)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := dperrors.KindOf(err); kind != dperrors.KindPayload {
		t.Errorf("KindOf() = %q, want %q (err: %v)", kind, dperrors.KindPayload, err)
	}
}

func TestResolver_Pagination(t *testing.T) {
	api := docsAPI()
	api.CommitPages = [][]*github.RepositoryCommit{
		{testutil.Commit("c1"), testutil.Commit("c2")},
		{testutil.Commit("c3"), testutil.Commit("tip")},
	}
	api.CheckRunPages = [][]*github.CheckRun{
		{testutil.CheckRun("Lint", "https://x/actions/runs/1/job/1")},
		{
			testutil.CheckRun(DefaultJobLabel, "https://x/actions/runs/777/job/2"),
			testutil.CheckRun(DefaultJobLabel, "https://x/actions/runs/888/job/3"),
		},
	}
	r := newTestResolver(t, api)

	sha, err := r.LastCommit(testutil.TestContext(t), "acme", "site", 12)
	if err != nil {
		t.Fatalf("LastCommit: %v", err)
	}
	if sha != "tip" {
		t.Errorf("LastCommit() = %q, want %q", sha, "tip")
	}

	runID, err := r.RunID(testutil.TestContext(t), "acme", "site", sha)
	if err != nil {
		t.Fatalf("RunID: %v", err)
	}
	if runID != 777 {
		t.Errorf("RunID() = %d, want 777 (first match)", runID)
	}

	for _, req := range api.Requests() {
		if !strings.Contains(req.Query, "per_page=100") {
			t.Errorf("request %s?%s should ask for 100 per page", req.Path, req.Query)
		}
	}
}

func TestResolver_MatchesConfiguredLabel(t *testing.T) {
	api := docsAPI()
	api.CheckRunPages = [][]*github.CheckRun{{
		testutil.CheckRun("docs", "https://x/actions/runs/3/job/1"),
		testutil.CheckRun(DefaultJobLabel, "https://x/actions/runs/1/job/1"),
		testutil.CheckRun("Docs", "https://x/actions/runs/2/job/1"),
	}}
	api.Start(t)

	tests := []struct {
		label string
		want  uint64
	}{
		{label: "", want: 1},
		{label: "Docs", want: 2},
	}

	for _, tt := range tests {
		t.Run("label="+tt.label, func(t *testing.T) {
			r, err := NewResolver(ResolverConfig{Client: api.Client(), JobLabel: tt.label})
			if err != nil {
				t.Fatalf("NewResolver: %v", err)
			}

			got, err := r.RunID(testutil.TestContext(t), "acme", "site", "abc123")
			if err != nil {
				t.Fatalf("RunID: %v", err)
			}
			if got != tt.want {
				t.Errorf("RunID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewResolver_RequiresClient(t *testing.T) {
	if _, err := NewResolver(ResolverConfig{}); err == nil {
		t.Error("expected error for missing client")
	}
}

// =============================================================================
// Client Tests
// =============================================================================

func TestNewHTTPClient_ScopesToken(t *testing.T) {
	api := docsAPI()
	api.Downloads = map[string][]byte{"555.zip": []byte("PK")}
	server := api.Start(t)

	// The download host differs from the API host only by name.
	downloadURL := strings.Replace(api.DownloadURL("555.zip"), "127.0.0.1", "localhost", 1)

	httpClient, err := NewHTTPClient(ClientConfig{Endpoint: server.URL, Token: "secret", MaxRetries: 1})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	client, err := NewGitHubClient(httpClient, server.URL, "")
	if err != nil {
		t.Fatalf("NewGitHubClient: %v", err)
	}

	r, _ := NewResolver(ResolverConfig{Client: client})
	if _, err := r.LastCommit(testutil.TestContext(t), "acme", "site", 1); err != nil {
		t.Fatalf("LastCommit: %v", err)
	}

	resp, err := httpClient.Get(downloadURL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	requests := api.Requests()
	if len(requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(requests))
	}
	if got := requests[0].Authorization; got != "Bearer secret" {
		t.Errorf("API Authorization = %q, want %q", got, "Bearer secret")
	}
	if got := requests[1].Authorization; got != "" {
		t.Errorf("download Authorization = %q, want none", got)
	}
}

func TestNewHTTPClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{name: "missing token", cfg: ClientConfig{Endpoint: DefaultEndpoint}},
		{name: "relative endpoint", cfg: ClientConfig{Endpoint: "api.github.com", Token: "t"}},
		{name: "bad scheme", cfg: ClientConfig{Endpoint: "ftp://api.github.com/", Token: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHTTPClient(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewGitHubClient_TrailingSlash(t *testing.T) {
	client, err := NewGitHubClient(nil, "https://ghe.example.com/api/v3", "")
	if err != nil {
		t.Fatalf("NewGitHubClient: %v", err)
	}
	if got := client.BaseURL.String(); got != "https://ghe.example.com/api/v3/" {
		t.Errorf("BaseURL = %q", got)
	}
	if client.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q", client.UserAgent)
	}
}

func TestNewGitHubClient_RepoScopedEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{endpoint: "https://api.github.com/", want: "https://api.github.com/"},
		{endpoint: "https://api.github.com/repos/", want: "https://api.github.com/"},
		{endpoint: "https://api.github.com/repos", want: "https://api.github.com/"},
		{endpoint: "https://ghe.example.com/api/v3/repos/", want: "https://ghe.example.com/api/v3/"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			client, err := NewGitHubClient(nil, tt.endpoint, "")
			if err != nil {
				t.Fatalf("NewGitHubClient: %v", err)
			}
			if got := client.BaseURL.String(); got != tt.want {
				t.Errorf("BaseURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolver_RepoScopedEndpoint(t *testing.T) {
	api := docsAPI()
	api.Start(t)

	client, err := NewGitHubClient(api.Client().Client(), api.URL()+"repos/", "")
	if err != nil {
		t.Fatalf("NewGitHubClient: %v", err)
	}
	r, err := NewResolver(ResolverConfig{Client: client})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	sha, err := r.LastCommit(testutil.TestContext(t), "acme", "site", 12)
	if err != nil {
		t.Fatalf("LastCommit: %v", err)
	}
	if sha != "abc123" {
		t.Errorf("LastCommit() = %q, want %q", sha, "abc123")
	}
	if got := api.Requests()[0].Path; got != "/repos/acme/site/pulls/12/commits" {
		t.Errorf("path = %q", got)
	}
}
