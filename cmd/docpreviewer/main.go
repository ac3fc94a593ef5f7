// docpreviewer publishes documentation previews for GitHub pull requests.
//
// CI posts to /submit/<owner>/<repo>/<pr>/?job=<name> once the docs build
// finishes; the server downloads the build's artifact and unpacks it under
// previews_path, where a static web server serves it. Previews untouched
// for retention_days are deleted after every publish, and optionally on a
// timer.
//
// Operator modes:
//
//	docpreviewer --print-config        show effective settings and their sources
//	docpreviewer --sweep-once --dry-run list previews a sweep would delete
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/randalmurphal/docpreviewer/actions"
	"github.com/randalmurphal/docpreviewer/artifact"
	"github.com/randalmurphal/docpreviewer/config"
	"github.com/randalmurphal/docpreviewer/metrics"
	"github.com/randalmurphal/docpreviewer/notify"
	"github.com/randalmurphal/docpreviewer/preview"
	"github.com/randalmurphal/docpreviewer/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configFile  string
	address     string
	port        int
	logLevel    string
	sweepOnce   bool
	dryRun      bool
	printConfig bool
	version     bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("docpreviewer", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configFile, "config-file", "c", config.DefaultPath, "path to the TOML or YAML configuration file")
	flagSet.StringVar(&opts.address, "address", "", "listen address (overrides server.address)")
	flagSet.IntVar(&opts.port, "port", 0, "listen port (overrides server.port)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flagSet.BoolVar(&opts.sweepOnce, "sweep-once", false, "run one retention sweep and exit")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "with --sweep-once, report expired previews without deleting them")
	flagSet.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration and exit")
	flagSet.BoolVar(&opts.version, "version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if opts.version {
		fmt.Fprintf(stdout, "docpreviewer %s\n", version)
		return nil
	}
	if opts.dryRun && !opts.sweepOnce {
		return errors.New("--dry-run requires --sweep-once")
	}

	overrides := map[string]string{}
	if flagSet.Changed("address") {
		overrides[config.KeyServerAddress] = opts.address
	}
	if flagSet.Changed("port") {
		overrides[config.KeyServerPort] = strconv.Itoa(opts.port)
	}
	if flagSet.Changed("log-level") {
		overrides[config.KeyLogLevel] = opts.logLevel
	}

	settings, err := config.Load(config.LoadOptions{
		Path:      opts.configFile,
		Explicit:  flagSet.Changed("config-file"),
		Flags:     overrides,
		ErrWriter: stderr,
	})
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.printConfig {
		return settings.WriteYAML(stdout)
	}

	logger := newLogger(settings, stderr)
	slog.SetDefault(logger)

	app, err := build(settings, opts.dryRun, logger)
	if err != nil {
		return err
	}

	if opts.sweepOnce {
		return sweepOnce(ctx, app.publisher, stdout)
	}
	return serve(ctx, settings, app, logger)
}

func newLogger(settings *config.Settings, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: settings.SlogLevel()}
	if settings.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

type application struct {
	publisher *preview.Publisher
	registry  *prometheus.Registry
	metrics   *metrics.Prom
}

// build wires the GitHub client, the artifact store and the publisher.
func build(settings *config.Settings, dryRun bool, logger *slog.Logger) (*application, error) {
	userAgent := actions.DefaultUserAgent + "/" + version

	httpClient, err := actions.NewHTTPClient(actions.ClientConfig{
		Endpoint:   settings.GitHub.Endpoint,
		Token:      settings.GitHub.Token,
		MaxRetries: settings.GitHub.MaxRetries,
		RetryWait:  settings.GitHub.RetryWait,
		Timeout:    settings.GitHub.Timeout,
		UserAgent:  userAgent,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create HTTP client: %w", err)
	}
	ghClient, err := actions.NewGitHubClient(httpClient, settings.GitHub.Endpoint, userAgent)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	resolver, err := actions.NewResolver(actions.ResolverConfig{
		Client:   ghClient,
		JobLabel: settings.GitHub.JobLabel,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	locker := &artifact.Locker{}
	fetcher := artifact.NewFetcher(artifact.FetcherConfig{
		Client:  httpClient,
		MaxSize: settings.MaxArtifactSize,
		Locker:  locker,
		Logger:  logger,
	})
	sweeper := artifact.NewSweeper(artifact.SweepConfig{
		Root:          settings.PreviewsPath,
		RetentionDays: settings.RetentionDays,
		DryRun:        dryRun,
		Locker:        locker,
		Logger:        logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := metrics.NewProm("docpreviewer", registry)

	publisher, err := preview.NewPublisher(preview.Config{
		Resolver: resolver,
		Fetcher:  fetcher,
		Sweeper:  sweeper,
		Layout:   preview.Layout{Root: settings.PreviewsPath, PublicURL: settings.Server.URL},
		Notifier: notifierFor(settings, logger),
		Metrics:  prom,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{publisher: publisher, registry: registry, metrics: prom}, nil
}

func notifierFor(settings *config.Settings, logger *slog.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if url := settings.Notify.WebhookURL; url != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(url, nil))
	}
	if url := settings.Notify.SlackWebhookURL; url != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(url))
	}
	return notify.Combine(logger, notifiers...)
}

func sweepOnce(ctx context.Context, publisher *preview.Publisher, stdout io.Writer) error {
	result, err := publisher.SweepNow(ctx)
	publisher.Wait()
	if result != nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}

func serve(ctx context.Context, settings *config.Settings, app *application, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(server.Config{
		Publisher:    app.publisher,
		OwnerAllowed: settings.OwnerAllowed,
		Metrics:      metrics.Handler(app.registry),
		Requests:     app.metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := srv.HTTPServer(settings.ListenAddress())
	listener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
	}

	sweepCtx, stopSweeps := context.WithCancel(ctx)
	defer stopSweeps()
	if settings.SweepInterval > 0 {
		go app.publisher.RunPeriodicSweeps(sweepCtx, settings.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			"addr", listener.Addr().String(),
			"previews_path", settings.PreviewsPath,
			"retention_days", settings.RetentionDays,
			"version", version,
		)
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	stopSweeps()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	app.publisher.Wait()
	logger.Info("server stopped")
	return nil
}
