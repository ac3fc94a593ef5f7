package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	dperrors "github.com/randalmurphal/docpreviewer/errors"
	dphttp "github.com/randalmurphal/docpreviewer/http"
)

// DefaultMaxSize is the default cap on a downloaded artifact (500 MiB).
const DefaultMaxSize int64 = 500 << 20

// mtimeSentinel is created and removed in a published directory so its
// modification time reflects the publish.
const mtimeSentinel = ".update_mtime"

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Client performs the download. Defaults to http.DefaultClient.
	Client *http.Client

	// MaxSize caps the downloaded archive in bytes. Defaults to DefaultMaxSize.
	MaxSize int64

	// Locker serializes publishes per target directory. Share it with the
	// Sweeper so it skips directories being replaced.
	Locker *Locker

	Logger *slog.Logger
}

// Fetcher downloads zip artifacts and publishes their contents.
type Fetcher struct {
	client  *http.Client
	maxSize int64
	locker  *Locker
	logger  *slog.Logger
}

// FetchResult describes a published artifact.
type FetchResult struct {
	// Bytes is the size of the downloaded archive.
	Bytes int64

	// Files is the number of regular files extracted.
	Files int

	// Replaced reports whether an earlier preview was swapped out.
	Replaced bool
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:  cfg.Client,
		maxSize: cfg.MaxSize,
		locker:  cfg.Locker,
		logger:  cfg.Logger,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.maxSize <= 0 {
		f.maxSize = DefaultMaxSize
	}
	if f.locker == nil {
		f.locker = &Locker{}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch downloads the zip at rawURL and replaces targetDir with its
// contents. The archive is extracted next to targetDir and renamed into
// place, so on failure targetDir keeps its previous contents (or stays
// absent) and no partial tree is left behind.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, targetDir string) (*FetchResult, error) {
	data, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &dperrors.ArchiveError{Err: err}
	}

	target := filepath.Clean(targetDir)
	unlock := f.locker.Lock(target)
	defer unlock()

	parent, base := filepath.Dir(target), filepath.Base(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create preview parent: %w", err)
	}

	staging := filepath.Join(parent, "."+base+".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	files, err := extract(zr, staging)
	if err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			f.logger.Warn("failed to remove staging directory", "path", staging, "error", rmErr)
		}
		return nil, err
	}

	replaced, err := f.swap(staging, target)
	if err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			f.logger.Warn("failed to remove staging directory", "path", staging, "error", rmErr)
		}
		return nil, err
	}

	// The new preview is live from here on, so a failed touch only costs
	// freshness.
	if err := touch(target); err != nil {
		now := time.Now()
		if chErr := os.Chtimes(target, now, now); chErr != nil {
			f.logger.Warn("failed to refresh preview mtime", "path", target, "error", errors.Join(err, chErr))
		} else {
			f.logger.Warn("mtime sentinel failed, set directory mtime instead", "path", target, "error", err)
		}
	}

	return &FetchResult{Bytes: int64(len(data)), Files: files, Replaced: replaced}, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	safeURL := withoutQuery(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &dphttp.StatusError{URL: safeURL, StatusCode: resp.StatusCode}
	}

	data, err := dphttp.ReadLimited(resp, f.maxSize)
	if err != nil {
		var sizeErr *dphttp.SizeLimitError
		if errors.As(err, &sizeErr) {
			sizeErr.URL = safeURL
			return nil, sizeErr
		}
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	return data, nil
}

// swap moves staging to target, renaming any existing target aside first
// and restoring it if the final rename fails.
func (f *Fetcher) swap(staging, target string) (bool, error) {
	if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
		if err := os.Rename(staging, target); err != nil {
			return false, fmt.Errorf("publish preview: %w", err)
		}
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat preview: %w", err)
	}

	old := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".old-"+uuid.NewString())
	if err := os.Rename(target, old); err != nil {
		return false, fmt.Errorf("move previous preview aside: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		if restoreErr := os.Rename(old, target); restoreErr != nil {
			f.logger.Error("failed to restore previous preview", "path", target, "error", restoreErr)
		}
		return false, fmt.Errorf("publish preview: %w", err)
	}
	if err := os.RemoveAll(old); err != nil {
		f.logger.Warn("failed to remove previous preview", "path", old, "error", err)
	}
	return true, nil
}

// extract writes every entry of zr under dir and returns the number of
// regular files written.
func extract(zr *zip.Reader, dir string) (int, error) {
	files := 0
	for _, entry := range zr.File {
		dest, err := entryPath(dir, entry.Name)
		if err != nil {
			return files, err
		}

		mode := entry.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			return files, &dperrors.ArchiveError{Name: entry.Name, Err: errors.New("symbolic links are not allowed")}
		case mode.IsDir() || strings.HasSuffix(entry.Name, "/"):
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return files, fmt.Errorf("extract %s: %w", entry.Name, err)
			}
			continue
		case !mode.IsRegular():
			return files, &dperrors.ArchiveError{Name: entry.Name, Err: fmt.Errorf("unsupported file mode %v", mode)}
		}

		if err := extractFile(entry, dest); err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

func extractFile(entry *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}

	rc, err := entry.Open()
	if err != nil {
		return &dperrors.ArchiveError{Name: entry.Name, Err: err}
	}
	defer rc.Close()

	perm := entry.Mode().Perm() | 0o600
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		var pathErr *fs.PathError
		if errors.As(copyErr, &pathErr) {
			return fmt.Errorf("extract %s: %w", entry.Name, copyErr)
		}
		return &dperrors.ArchiveError{Name: entry.Name, Err: copyErr}
	}
	if closeErr != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, closeErr)
	}
	return nil
}

// entryPath maps an archive entry name to a path under dir, rejecting
// names that are absolute or climb out of dir.
func entryPath(dir, name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", &dperrors.ArchiveError{Name: name, Err: errors.New("path escapes the target directory")}
	}

	dest := filepath.Join(dir, rel)
	if dest != dir && !strings.HasPrefix(dest, dir+string(filepath.Separator)) {
		return "", &dperrors.ArchiveError{Name: name, Err: errors.New("path escapes the target directory")}
	}
	return dest, nil
}

func touch(dir string) error {
	sentinel := filepath.Join(dir, mtimeSentinel)
	f, err := os.Create(sentinel)
	if err != nil {
		return fmt.Errorf("create mtime sentinel: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(sentinel)
		return fmt.Errorf("close mtime sentinel: %w", err)
	}
	if err := os.Remove(sentinel); err != nil {
		return fmt.Errorf("remove mtime sentinel: %w", err)
	}
	return nil
}

// withoutQuery strips the query, which carries signatures on redirected
// storage URLs, for use in error messages.
func withoutQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.Redacted()
}
