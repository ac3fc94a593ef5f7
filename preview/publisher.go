package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/docpreviewer/artifact"
	dperrors "github.com/randalmurphal/docpreviewer/errors"
	"github.com/randalmurphal/docpreviewer/metrics"
	"github.com/randalmurphal/docpreviewer/notify"
)

// Resolver finds the artifact built for a pull request.
type Resolver interface {
	LastCommit(ctx context.Context, owner, repo string, pr uint64) (string, error)
	RunID(ctx context.Context, owner, repo, sha string) (uint64, error)
	ArtifactURL(ctx context.Context, owner, repo string, runID uint64) (string, error)
}

// Fetcher publishes the archive at url into dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (*artifact.FetchResult, error)
}

// Sweeper deletes expired previews.
type Sweeper interface {
	Run(ctx context.Context) (*artifact.SweepResult, error)
}

// Config wires a Publisher.
type Config struct {
	Resolver Resolver
	Fetcher  Fetcher

	// Sweeper runs after every successful publish. Nil disables sweeping.
	Sweeper Sweeper

	Layout Layout

	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// Publisher runs the resolve, download and extract pipeline for a pull
// request and triggers the retention sweep afterwards.
type Publisher struct {
	resolver Resolver
	fetcher  Fetcher
	sweeper  Sweeper
	layout   Layout
	notifier notify.Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger

	sweeps     singleflight.Group
	background sync.WaitGroup
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Layout.Root == "" {
		return nil, fmt.Errorf("previews root is required")
	}

	p := &Publisher{
		resolver: cfg.Resolver,
		fetcher:  cfg.Fetcher,
		sweeper:  cfg.Sweeper,
		layout:   cfg.Layout,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if p.notifier == nil {
		p.notifier = notify.NopNotifier{}
	}
	if p.metrics == nil {
		p.metrics = metrics.Noop{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Layout returns the directory and URL layout.
func (p *Publisher) Layout() Layout {
	return p.layout
}

// Publish resolves the latest docs artifact of req, replaces its preview
// directory with the artifact contents and returns the preview URL. The
// first failing stage ends the call. On success a retention sweep starts in
// the background; its outcome is only logged.
func (p *Publisher) Publish(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	logger := p.logger.With("pr", req.PullRequest, "owner", req.Owner, "repository", req.Repository)
	logger.Info("request received", "job", req.JobLabel)

	dir, stats, err := p.publish(ctx, logger, req)
	elapsed := time.Since(start)
	if err != nil {
		kind := dperrors.KindOf(err)
		logger.Error("preview failed", "error", err, "kind", kind, "duration", elapsed)
		p.metrics.ObservePublish(metrics.OutcomeFailure, string(kind), elapsed.Seconds())
		p.notify(ctx, notify.Event{
			Type:        notify.EventPreviewFailed,
			Owner:       req.Owner,
			Repository:  req.Repository,
			PullRequest: req.PullRequest,
			Message:     err.Error(),
			Severity:    notify.SeverityError,
			Metadata:    map[string]any{"kind": string(kind)},
		})
		return "", err
	}

	publicURL := p.layout.URL(req)
	p.metrics.ObservePublish(metrics.OutcomeSuccess, "", elapsed.Seconds())
	p.metrics.AddArtifactBytes(stats.Bytes)
	logger.Info("preview published", "url", publicURL, "dir", dir, "duration", elapsed)
	p.notify(ctx, notify.Event{
		Type:        notify.EventPreviewPublished,
		Owner:       req.Owner,
		Repository:  req.Repository,
		PullRequest: req.PullRequest,
		URL:         publicURL,
		Message:     "Preview published",
		Severity:    notify.SeverityInfo,
		Metadata: map[string]any{
			"files": stats.Files,
			"size":  humanize.IBytes(uint64(stats.Bytes)),
		},
	})

	p.sweepInBackground(ctx)
	return publicURL, nil
}

func (p *Publisher) publish(ctx context.Context, logger *slog.Logger, req Request) (string, *artifact.FetchResult, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}

	sha, err := p.resolver.LastCommit(ctx, req.Owner, req.Repository, req.PullRequest)
	if err != nil {
		return "", nil, err
	}
	logger.Info("commit resolved", "commit", sha)

	runID, err := p.resolver.RunID(ctx, req.Owner, req.Repository, sha)
	if err != nil {
		return "", nil, err
	}
	logger.Info("run id resolved", "run_id", runID)

	downloadURL, err := p.resolver.ArtifactURL(ctx, req.Owner, req.Repository, runID)
	if err != nil {
		return "", nil, err
	}
	logger.Info("artifact URL resolved", "artifact_url", downloadURL)

	dir := p.layout.TargetDir(req)
	logger.Info("download started", "dir", dir)
	stats, err := p.fetcher.Fetch(ctx, downloadURL, dir)
	if err != nil {
		return "", nil, err
	}
	logger.Info("download complete",
		"size", humanize.IBytes(uint64(stats.Bytes)),
		"files", stats.Files,
		"replaced", stats.Replaced,
	)
	return dir, stats, nil
}

// sweepInBackground starts a sweep that outlives the request.
func (p *Publisher) sweepInBackground(ctx context.Context) {
	if p.sweeper == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		_, _ = p.SweepNow(detached)
	}()
}

// SweepNow runs the retention sweep. Calls made while a sweep is running
// share its result instead of starting another.
func (p *Publisher) SweepNow(ctx context.Context) (*artifact.SweepResult, error) {
	if p.sweeper == nil {
		return &artifact.SweepResult{Deleted: []string{}}, nil
	}

	v, err, shared := p.sweeps.Do("sweep", func() (any, error) {
		return p.sweep(ctx)
	})
	if shared {
		p.logger.Debug("joined running sweep")
	}
	result, _ := v.(*artifact.SweepResult)
	return result, err
}

func (p *Publisher) sweep(ctx context.Context) (*artifact.SweepResult, error) {
	start := time.Now()
	result, err := p.sweeper.Run(ctx)
	if result == nil {
		result = &artifact.SweepResult{Deleted: []string{}}
	}
	p.metrics.ObserveSweep(result.DryRun, len(result.Deleted), len(result.Busy), result.SpaceFreed, err)

	if err != nil {
		p.logger.Error("retention sweep failed", "error", err, "deleted", len(result.Deleted))
		return result, err
	}

	p.logger.Info("retention sweep complete",
		"deleted", len(result.Deleted),
		"kept", result.Kept,
		"busy", len(result.Busy),
		"freed", humanize.IBytes(uint64(result.SpaceFreed)),
		"dry_run", result.DryRun,
		"duration", time.Since(start),
	)
	if len(result.Deleted) > 0 {
		p.notify(ctx, notify.Event{
			Type:     notify.EventPreviewsSwept,
			Message:  fmt.Sprintf("Deleted %d expired previews", len(result.Deleted)),
			Severity: notify.SeverityInfo,
			Metadata: map[string]any{
				"deleted": result.Deleted,
				"freed":   humanize.IBytes(uint64(result.SpaceFreed)),
				"dry_run": result.DryRun,
			},
		})
	}
	return result, nil
}

// RunPeriodicSweeps sweeps every interval until ctx is done. A non-positive
// interval returns immediately. Failed sweeps are logged and retried on the
// next tick.
func (p *Publisher) RunPeriodicSweeps(ctx context.Context, interval time.Duration) {
	if interval <= 0 || p.sweeper == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.SweepNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn("periodic sweep failed", "error", err, "interval", interval)
			}
		}
	}
}

// Wait blocks until background sweeps and notifications finish.
func (p *Publisher) Wait() {
	p.background.Wait()
}

// notify delivers event in the background so slow webhooks do not hold the
// response.
func (p *Publisher) notify(ctx context.Context, event notify.Event) {
	event.Timestamp = time.Now()
	detached := context.WithoutCancel(ctx)
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		if err := p.notifier.Notify(detached, event); err != nil {
			p.logger.Warn("notification failed", "error", err, "event_type", event.Type)
		}
	}()
}
