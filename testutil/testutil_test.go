package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/klauspost/compress/zip"
)

func TestZipArchive(t *testing.T) {
	data := ZipArchive(t, map[string]string{
		"index.html":     "<h1>docs</h1>",
		"api/index.html": "api",
		"static/":        "",
	})

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"api/index.html", "index.html", "static/"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestZipSymlink(t *testing.T) {
	data := ZipSymlink(t, "link", "/etc/passwd")

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Mode()&os.ModeSymlink == 0 {
		t.Errorf("expected one symlink entry")
	}
}

func TestAgedDir(t *testing.T) {
	dir := AgedDir(t, filepath.Join(t.TempDir(), "acme", "site", "120"), 20*Day)

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	age := time.Since(info.ModTime())
	if age < 20*Day-time.Minute || age > 20*Day+time.Minute {
		t.Errorf("age = %v, want about 20 days", age)
	}
}

func TestWriteFileAndReadTree(t *testing.T) {
	root := t.TempDir()
	WriteFile(t, root, "a/b.txt", "b")
	WriteFile(t, root, "c.txt", "c")

	tree := ReadTree(t, root)
	if len(tree) != 2 || tree["a/b.txt"] != "b" || tree["c.txt"] != "c" {
		t.Errorf("tree = %v", tree)
	}

	if got := ReadTree(t, filepath.Join(root, "missing")); len(got) != 0 {
		t.Errorf("missing tree = %v, want empty", got)
	}
}

func TestTempFile(t *testing.T) {
	path := TempFile(t, "nested/test.txt", []byte("test content"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read temp file: %v", err)
	}
	if string(data) != "test content" {
		t.Errorf("content = %q, want %q", string(data), "test content")
	}
}

func TestTestContextWithTimeout(t *testing.T) {
	ctx := TestContextWithTimeout(t, 50*time.Millisecond)

	select {
	case <-ctx.Done():
		t.Error("context is already done")
	default:
	}

	if !Eventually(t, time.Second, func() bool { return ctx.Err() != nil }) {
		t.Error("context should be done after timeout")
	}
}

func TestGitHubAPI_Pagination(t *testing.T) {
	api := &GitHubAPI{
		CommitPages: [][]*github.RepositoryCommit{
			{Commit("a"), Commit("b")},
			{Commit("c")},
		},
	}
	api.Start(t)
	client := api.Client()

	commits, resp, err := client.PullRequests.ListCommits(TestContext(t), "acme", "site", 7, nil)
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 2 || resp.NextPage != 2 {
		t.Fatalf("page 1: %d commits, next %d", len(commits), resp.NextPage)
	}

	commits, resp, err = client.PullRequests.ListCommits(TestContext(t), "acme", "site", 7,
		&github.ListOptions{Page: resp.NextPage})
	if err != nil {
		t.Fatalf("ListCommits page 2: %v", err)
	}
	if len(commits) != 1 || commits[0].GetSHA() != "c" || resp.NextPage != 0 {
		t.Errorf("page 2: %d commits, next %d", len(commits), resp.NextPage)
	}

	if got := len(api.Requests()); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestGitHubAPI_StatusAndDownload(t *testing.T) {
	api := &GitHubAPI{
		Status:    map[string]int{EndpointArtifacts: http.StatusForbidden},
		Downloads: map[string][]byte{"1.zip": []byte("zip")},
	}
	api.Start(t)

	resp, err := http.Get(api.URL() + "repos/o/r/actions/runs/1/artifacts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}

	resp, err = http.Get(api.DownloadURL("1.zip"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "zip" {
		t.Errorf("body = %q", body)
	}
}

func TestGitHubAPI_EmptyCheckRuns(t *testing.T) {
	api := &GitHubAPI{}
	api.Start(t)

	resp, err := http.Get(api.URL() + "repos/o/r/commits/abc/check-runs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	var result github.ListCheckRunsResults
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result.GetTotal() != 0 || result.CheckRuns == nil {
		t.Errorf("result = %+v", result)
	}
}
