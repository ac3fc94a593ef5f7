package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultRetentionDays is how long an untouched preview is kept.
const DefaultRetentionDays = 14.0

// SweepConfig defines the retention policy.
type SweepConfig struct {
	// Root holds previews as Root/<owner>/<repository>/<pr>.
	Root string

	// RetentionDays is the age in days past which a preview is deleted.
	// Defaults to DefaultRetentionDays.
	RetentionDays float64

	// DryRun reports what would be deleted without deleting it.
	DryRun bool

	// Locker is shared with the Fetcher; locked previews are skipped.
	Locker *Locker

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Sweeper deletes preview directories that have not been published to
// within the retention window.
type Sweeper struct {
	root      string
	retention float64
	dryRun    bool
	locker    *Locker
	now       func() time.Time
	logger    *slog.Logger
}

// SweepResult summarizes a sweep.
type SweepResult struct {
	// Deleted lists removed previews as owner/repository/pr.
	Deleted []string `json:"deleted"`

	// Kept is the number of previews within the retention window.
	Kept int `json:"kept"`

	// Busy lists previews skipped because a publish held them.
	Busy []string `json:"busy,omitempty"`

	// SpaceFreed is the total size of regular files in Deleted.
	SpaceFreed int64 `json:"spaceFreed"`

	DryRun bool `json:"dryRun,omitempty"`
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg SweepConfig) *Sweeper {
	s := &Sweeper{
		root:      filepath.Clean(cfg.Root),
		retention: cfg.RetentionDays,
		dryRun:    cfg.DryRun,
		locker:    cfg.Locker,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if s.retention <= 0 {
		s.retention = DefaultRetentionDays
	}
	if s.locker == nil {
		s.locker = &Locker{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sweep deletes expired previews and returns how many were deleted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	result, err := s.Run(ctx)
	if result == nil {
		return 0, err
	}
	return len(result.Deleted), err
}

// Run walks Root/*/*/* and deletes every leaf directory whose name is an
// unsigned integer and whose age exceeds the retention window. Files and
// other names are ignored at every level. The first listing, stat or
// delete error stops the sweep; the partial result is returned with it.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{Deleted: make([]string, 0), DryRun: s.dryRun}

	owners, err := readDirs(s.root)
	if err != nil {
		return result, fmt.Errorf("list previews root: %w", err)
	}

	now := s.now()
	for _, owner := range owners {
		repos, err := readDirs(filepath.Join(s.root, owner))
		if err != nil {
			return result, fmt.Errorf("list owner %s: %w", owner, err)
		}

		for _, repo := range repos {
			repoDir := filepath.Join(s.root, owner, repo)
			leaves, err := os.ReadDir(repoDir)
			if err != nil {
				return result, fmt.Errorf("list repository %s/%s: %w", owner, repo, err)
			}

			for _, leaf := range leaves {
				if err := ctx.Err(); err != nil {
					return result, err
				}
				if !leaf.IsDir() {
					continue
				}
				if _, err := strconv.ParseUint(leaf.Name(), 10, 64); err != nil {
					continue
				}

				if err := s.sweepLeaf(result, now, filepath.Join(repoDir, leaf.Name()), owner+"/"+repo+"/"+leaf.Name()); err != nil {
					return result, err
				}
			}
		}
	}

	return result, nil
}

func (s *Sweeper) sweepLeaf(result *SweepResult, now time.Time, dir, name string) error {
	unlock, ok := s.locker.TryLock(dir)
	if !ok {
		result.Busy = append(result.Busy, name)
		return nil
	}
	defer unlock()

	info, err := os.Lstat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat preview %s: %w", name, err)
	}

	age := ageDays(now, info.ModTime())
	if age <= s.retention {
		result.Kept++
		return nil
	}

	size := dirSize(dir)
	if !s.dryRun {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("delete preview %s: %w", name, err)
		}
	}
	s.logger.Info("deleted expired preview", "preview", name, "age_days", age, "dry_run", s.dryRun)

	result.Deleted = append(result.Deleted, name)
	result.SpaceFreed += size
	return nil
}

// ageDays returns the fractional days between modified and now, clamped to
// zero for timestamps in the future.
func ageDays(now, modified time.Time) float64 {
	age := now.Sub(modified)
	if age < 0 {
		return 0
	}
	return age.Hours() / 24
}

// readDirs returns the names of the directories directly under dir.
func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func dirSize(path string) int64 {
	var size int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
