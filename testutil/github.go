package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"
)

// Endpoints of the fake GitHub API, used as keys of GitHubAPI.Status.
const (
	EndpointCommits   = "commits"
	EndpointCheckRuns = "check-runs"
	EndpointArtifacts = "artifacts"
	EndpointDownload  = "download"
)

// RecordedRequest is one request seen by the fake GitHub API.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
}

// GitHubAPI is a fake of the GitHub endpoints used to resolve and download
// pull request artifacts. Commits and check runs are served in the given
// pages with Link headers, like the real API.
type GitHubAPI struct {
	// CommitPages are the pages of GET /repos/{o}/{r}/pulls/{n}/commits.
	CommitPages [][]*github.RepositoryCommit

	// CheckRunPages are the pages of GET /repos/{o}/{r}/commits/{sha}/check-runs.
	CheckRunPages [][]*github.CheckRun

	// Artifacts is served by GET /repos/{o}/{r}/actions/runs/{id}/artifacts.
	Artifacts []*github.Artifact

	// TotalArtifacts overrides the reported total_count.
	TotalArtifacts *int64

	// Downloads maps a name to the bytes served at /download/{name}.
	Downloads map[string][]byte

	// Status forces a status code for an endpoint.
	Status map[string]int

	// RawBody replaces the JSON body of an endpoint.
	RawBody map[string]string

	mu       sync.Mutex
	requests []RecordedRequest
	server   *httptest.Server
}

// Start serves the fake API until the test ends.
func (g *GitHubAPI) Start(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{pr}/commits", func(w http.ResponseWriter, r *http.Request) {
		g.servePage(w, r, EndpointCommits, len(g.CommitPages), func(page int) any {
			return g.CommitPages[page]
		})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/commits/{sha}/check-runs", func(w http.ResponseWriter, r *http.Request) {
		g.servePage(w, r, EndpointCheckRuns, len(g.CheckRunPages), func(page int) any {
			return checkRunsBody(g.CheckRunPages[page])
		})
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}/actions/runs/{id}/artifacts", func(w http.ResponseWriter, r *http.Request) {
		if g.override(w, EndpointArtifacts) {
			return
		}
		total := int64(len(g.Artifacts))
		if g.TotalArtifacts != nil {
			total = *g.TotalArtifacts
		}
		// go-github omits empty lists; the real API always sends the key.
		artifacts := g.Artifacts
		if artifacts == nil {
			artifacts = []*github.Artifact{}
		}
		writeJSON(w, map[string]any{"total_count": total, "artifacts": artifacts})
	})
	mux.HandleFunc("GET /download/{name}", func(w http.ResponseWriter, r *http.Request) {
		if g.override(w, EndpointDownload) {
			return
		}
		data, ok := g.Downloads[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	})

	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.requests = append(g.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		})
		g.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(g.server.Close)

	return g.server
}

// URL returns the base URL of the running server with a trailing slash.
func (g *GitHubAPI) URL() string {
	return g.server.URL + "/"
}

// DownloadURL returns the URL serving Downloads[name].
func (g *GitHubAPI) DownloadURL(name string) string {
	return g.server.URL + "/download/" + name
}

// Client returns a go-github client pointed at the fake server.
func (g *GitHubAPI) Client() *github.Client {
	client := github.NewClient(g.server.Client())
	client.BaseURL, _ = client.BaseURL.Parse(g.URL())
	return client
}

// Requests returns every request received so far.
func (g *GitHubAPI) Requests() []RecordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RecordedRequest(nil), g.requests...)
}

func (g *GitHubAPI) servePage(w http.ResponseWriter, r *http.Request, endpoint string, pages int, body func(page int) any) {
	if g.override(w, endpoint) {
		return
	}

	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if pages == 0 || page > pages {
		writeJSON(w, emptyPage(endpoint))
		return
	}

	if page < pages {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, g.server.URL, next.RequestURI()))
	}
	writeJSON(w, body(page-1))
}

func (g *GitHubAPI) override(w http.ResponseWriter, endpoint string) bool {
	if code, ok := g.Status[endpoint]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"message":"forced status %d"}`, code)
		return true
	}
	if raw, ok := g.RawBody[endpoint]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
		return true
	}
	return false
}

func emptyPage(endpoint string) any {
	if endpoint == EndpointCheckRuns {
		return checkRunsBody(nil)
	}
	return []any{}
}

func checkRunsBody(runs []*github.CheckRun) map[string]any {
	if runs == nil {
		runs = []*github.CheckRun{}
	}
	return map[string]any{"total_count": len(runs), "check_runs": runs}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Commit builds a commit with the given sha.
func Commit(sha string) *github.RepositoryCommit {
	return &github.RepositoryCommit{SHA: github.String(sha)}
}

// CheckRun builds a check run with a name and details URL.
func CheckRun(name, detailsURL string) *github.CheckRun {
	run := &github.CheckRun{Name: github.String(name)}
	if detailsURL != "" {
		run.DetailsURL = github.String(detailsURL)
	}
	return run
}

// Artifact builds an artifact with the given archive download URL.
func Artifact(downloadURL string) *github.Artifact {
	artifact := &github.Artifact{Name: github.String("docs")}
	if downloadURL != "" {
		artifact.ArchiveDownloadURL = github.String(downloadURL)
	}
	return artifact
}
