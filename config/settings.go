package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "/etc/doc-previewer/config.toml"

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "DOCPREVIEWER_"

// Configuration keys.
const (
	KeyPreviewsPath    = "previews_path"
	KeyRetentionDays   = "retention_days"
	KeyMaxArtifactSize = "max_artifact_size"
	KeySweepInterval   = "sweep_interval"

	KeyServerAddress = "server.address"
	KeyServerPort    = "server.port"
	KeyServerURL     = "server.url"

	KeyGitHubEndpoint      = "github.endpoint"
	KeyGitHubToken         = "github.token"
	KeyGitHubAllowedOwners = "github.allowed_owners"
	KeyGitHubJobLabel      = "github.job_label"
	KeyGitHubMaxRetries    = "github.max_retries"
	KeyGitHubRetryWait     = "github.retry_wait"
	KeyGitHubTimeout       = "github.timeout"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"

	KeyNotifyWebhookURL      = "notify.webhook_url"
	KeyNotifySlackWebhookURL = "notify.slack_webhook_url"
)

// Defaults returns the built-in value of every key.
func Defaults() map[string]string {
	return map[string]string{
		KeyPreviewsPath:    "/var/doc-previewer",
		KeyRetentionDays:   "14",
		KeyMaxArtifactSize: "524288000",
		KeySweepInterval:   "0",

		KeyServerAddress: "0.0.0.0",
		KeyServerPort:    "8000",
		KeyServerURL:     "https://doc-previewer.pydata.org/",

		KeyGitHubEndpoint:      "https://api.github.com/",
		KeyGitHubToken:         "",
		KeyGitHubAllowedOwners: "",
		KeyGitHubJobLabel:      "Doc Build and Upload",
		KeyGitHubMaxRetries:    "3",
		KeyGitHubRetryWait:     "1s",
		KeyGitHubTimeout:       "5m",

		KeyLogLevel:  "info",
		KeyLogFormat: "text",

		KeyNotifyWebhookURL:      "",
		KeyNotifySlackWebhookURL: "",
	}
}

// Settings is the validated service configuration. It is built once at
// startup and shared read-only.
type Settings struct {
	PreviewsPath    string
	RetentionDays   float64
	MaxArtifactSize int64
	SweepInterval   time.Duration

	Server ServerSettings
	GitHub GitHubSettings
	Log    LogSettings
	Notify NotifySettings

	resolved *Resolved
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Address string
	Port    int

	// URL is the public base URL previews are served under.
	URL string
}

// GitHubSettings configures API access.
type GitHubSettings struct {
	Endpoint string
	Token    string

	// AllowedOwners restricts which owners may publish. Empty allows all.
	AllowedOwners []string

	JobLabel   string
	MaxRetries int
	RetryWait  time.Duration
	Timeout    time.Duration
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string
	Format string
}

// NotifySettings configures event delivery. Empty URLs are disabled.
type NotifySettings struct {
	WebhookURL      string
	SlackWebhookURL string
}

// LoadOptions controls where settings are read from.
type LoadOptions struct {
	// Path is the config file. Defaults to DefaultPath.
	Path string

	// Explicit marks Path as chosen by the operator, making a missing file
	// an error.
	Explicit bool

	// Flags override every other source, keyed like Defaults.
	Flags map[string]string

	// ErrWriter receives resolver warnings. Defaults to os.Stderr.
	ErrWriter io.Writer
}

// Load resolves, parses and validates settings.
// Priority (highest to lowest): flags > env > file > defaults.
func Load(opts LoadOptions) (*Settings, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}

	resolver := NewResolver(ResolverConfig{
		EnvPrefix: EnvPrefix,
		Path:      path,
		Required:  opts.Explicit,
		Defaults:  Defaults(),
		ErrWriter: opts.ErrWriter,
	})
	resolved, err := resolver.ResolveWithFlags(opts.Flags)
	if err != nil {
		return nil, err
	}

	settings, err := FromResolved(resolved)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// FromResolved parses resolved values into Settings without validating
// them.
func FromResolved(r *Resolved) (*Settings, error) {
	p := parser{r: r}
	s := &Settings{
		PreviewsPath:    r.Get(KeyPreviewsPath),
		RetentionDays:   p.float(KeyRetentionDays),
		MaxArtifactSize: p.bytes(KeyMaxArtifactSize),
		SweepInterval:   p.duration(KeySweepInterval),
		Server: ServerSettings{
			Address: r.Get(KeyServerAddress),
			Port:    p.int(KeyServerPort),
			URL:     r.Get(KeyServerURL),
		},
		GitHub: GitHubSettings{
			Endpoint:      r.Get(KeyGitHubEndpoint),
			Token:         r.Get(KeyGitHubToken),
			AllowedOwners: splitList(r.Get(KeyGitHubAllowedOwners)),
			JobLabel:      r.Get(KeyGitHubJobLabel),
			MaxRetries:    p.int(KeyGitHubMaxRetries),
			RetryWait:     p.duration(KeyGitHubRetryWait),
			Timeout:       p.duration(KeyGitHubTimeout),
		},
		Log: LogSettings{
			Level:  strings.ToLower(r.Get(KeyLogLevel)),
			Format: strings.ToLower(r.Get(KeyLogFormat)),
		},
		Notify: NotifySettings{
			WebhookURL:      r.Get(KeyNotifyWebhookURL),
			SlackWebhookURL: r.Get(KeyNotifySlackWebhookURL),
		},
		resolved: r,
	}
	if p.err != nil {
		return nil, p.err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if s.GitHub.Token == "" {
		return fmt.Errorf("%s is required (set it in the config file or %s)",
			KeyGitHubToken, EnvVar(EnvPrefix, KeyGitHubToken))
	}
	if s.PreviewsPath == "" {
		return fmt.Errorf("%s is required", KeyPreviewsPath)
	}
	if s.RetentionDays <= 0 {
		return fmt.Errorf("%s must be positive, got %v", KeyRetentionDays, s.RetentionDays)
	}
	if s.MaxArtifactSize <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyMaxArtifactSize, s.MaxArtifactSize)
	}
	if s.SweepInterval < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeySweepInterval, s.SweepInterval)
	}
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", KeyServerPort, s.Server.Port)
	}
	if err := checkURL(KeyServerURL, s.Server.URL); err != nil {
		return err
	}
	if err := checkURL(KeyGitHubEndpoint, s.GitHub.Endpoint); err != nil {
		return err
	}
	if s.GitHub.MaxRetries < 0 {
		return fmt.Errorf("%s must not be negative, got %d", KeyGitHubMaxRetries, s.GitHub.MaxRetries)
	}
	if _, err := parseLevel(s.Log.Level); err != nil {
		return err
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		return fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, s.Log.Format)
	}
	return nil
}

// ListenAddress returns the host:port to listen on.
func (s *Settings) ListenAddress() string {
	return net.JoinHostPort(s.Server.Address, strconv.Itoa(s.Server.Port))
}

// OwnerAllowed reports whether owner may publish previews.
func (s *Settings) OwnerAllowed(owner string) bool {
	if len(s.GitHub.AllowedOwners) == 0 {
		return true
	}
	for _, allowed := range s.GitHub.AllowedOwners {
		if allowed == owner {
			return true
		}
	}
	return false
}

// SlogLevel returns the configured log level, or info when it is invalid.
func (s *Settings) SlogLevel() slog.Level {
	level, err := parseLevel(s.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// Source returns where key's value came from.
func (s *Settings) Source(key string) Source {
	if s.resolved == nil {
		return ""
	}
	return s.resolved.Source(key)
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return l, nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parser records the first parse failure so FromResolved can read every
// key in one pass.
type parser struct {
	r   *Resolved
	err error
}

func (p *parser) fail(key, value, kind string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q for %s (from %s)", kind, value, key, p.r.Source(key))
	}
}

func (p *parser) int(key string) int {
	value := strings.TrimSpace(p.r.Get(key))
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, "integer")
	}
	return n
}

func (p *parser) float(key string) float64 {
	value := strings.TrimSpace(p.r.Get(key))
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, "number")
	}
	return f
}

// bytes accepts a plain byte count or a humanized size such as "500MiB".
func (p *parser) bytes(key string) int64 {
	value := strings.TrimSpace(p.r.Get(key))
	n, err := humanize.ParseBytes(value)
	if err != nil || n > 1<<62 {
		p.fail(key, value, "size")
		return 0
	}
	return int64(n)
}

// duration accepts a Go duration string. A bare "0" disables.
func (p *parser) duration(key string) time.Duration {
	value := strings.TrimSpace(p.r.Get(key))
	if value == "0" || value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, "duration")
	}
	return d
}
