package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ResolverConfig configures the layered config resolver.
type ResolverConfig struct {
	// EnvPrefix is prepended to key names for environment variable lookup.
	// Dots and dashes map to underscores, so with EnvPrefix "MYAPP_" the key
	// "github.token" maps to MYAPP_GITHUB_TOKEN.
	EnvPrefix string

	// Path is the config file. Its extension selects the format: .toml,
	// .yaml or .yml.
	Path string

	// Required makes a missing Path an error. Otherwise a missing file is
	// skipped.
	Required bool

	// Defaults provides the default values for configuration keys. Only
	// keys listed here are read from the file and the environment.
	Defaults map[string]string

	// ErrWriter is where warnings are written.
	// Defaults to os.Stderr if nil.
	ErrWriter io.Writer
}

// Resolver handles layered configuration resolution.
type Resolver struct {
	config ResolverConfig

	// Warnings collects non-fatal issues during resolution.
	Warnings []string
}

// NewResolver creates a new configuration resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	resolver := &Resolver{config: cfg}
	if cfg.ErrWriter == nil {
		resolver.config.ErrWriter = os.Stderr
	}
	return resolver
}

// warn adds a warning and optionally prints it.
func (r *Resolver) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
	if r.config.ErrWriter != nil {
		fmt.Fprintf(r.config.ErrWriter, "Warning: %s\n", msg)
	}
}

// Resolved holds the final merged configuration.
type Resolved struct {
	values  map[string]string
	sources map[string]Source
}

// Get returns the value for a key, or empty string if not set.
func (c *Resolved) Get(key string) string {
	return c.values[key]
}

// Source returns the source of a key's value.
func (c *Resolved) Source(key string) Source {
	return c.sources[key]
}

// GetWithSource returns both the value and its source.
func (c *Resolved) GetWithSource(key string) (string, Source) {
	return c.values[key], c.sources[key]
}

// All returns a copy of all key-value pairs.
func (c *Resolved) All() map[string]string {
	result := make(map[string]string, len(c.values))
	for k, v := range c.values {
		result[k] = v
	}
	return result
}

// Keys returns all configuration keys, sorted.
func (c *Resolved) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve builds the final config by merging all sources.
// Priority (highest to lowest): env > file > defaults.
func (r *Resolver) Resolve() (*Resolved, error) {
	cfg := &Resolved{
		values:  make(map[string]string),
		sources: make(map[string]Source),
	}

	r.applyDefaults(cfg)
	if err := r.applyFile(cfg); err != nil {
		return nil, err
	}
	r.applyEnv(cfg)

	return cfg, nil
}

// ResolveWithFlags resolves config and applies flag overrides. Empty flag
// values are ignored.
func (r *Resolver) ResolveWithFlags(flags map[string]string) (*Resolved, error) {
	cfg, err := r.Resolve()
	if err != nil {
		return nil, err
	}

	for key, value := range flags {
		if value != "" {
			cfg.values[key] = value
			cfg.sources[key] = SourceFlag
		}
	}

	return cfg, nil
}

func (r *Resolver) applyDefaults(cfg *Resolved) {
	for key, value := range r.config.Defaults {
		cfg.values[key] = value
		cfg.sources[key] = SourceDefault
	}
}

func (r *Resolver) applyFile(cfg *Resolved) error {
	if r.config.Path == "" {
		return nil
	}

	data, err := os.ReadFile(r.config.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !r.config.Required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	parsed, err := decode(r.config.Path, data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", r.config.Path, err)
	}

	flat := make(map[string]any)
	flatten("", parsed, flat)

	for key, value := range flat {
		if _, known := r.config.Defaults[key]; !known {
			r.warn(fmt.Sprintf("unknown key %q in %s", key, r.config.Path))
			continue
		}
		strVal, ok := toString(value)
		if !ok {
			return fmt.Errorf("parse %s: unsupported value for %s: %v", r.config.Path, key, value)
		}
		cfg.values[key] = strVal
		cfg.sources[key] = SourceFile
	}
	return nil
}

func (r *Resolver) applyEnv(cfg *Resolved) {
	if r.config.EnvPrefix == "" {
		return
	}

	for key := range r.config.Defaults {
		if value := os.Getenv(EnvVar(r.config.EnvPrefix, key)); value != "" {
			cfg.values[key] = value
			cfg.sources[key] = SourceEnv
		}
	}
}

// EnvVar returns the environment variable consulted for key.
func EnvVar(prefix, key string) string {
	return prefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func decode(path string, data []byte) (map[string]any, error) {
	parsed := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return parsed, nil
}

// flatten turns nested tables into dotted keys.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(full, nested, out)
			continue
		}
		out[full] = value
	}
}

// toString renders a decoded scalar or list. Lists are joined with commas.
func toString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case int, int64, uint64, float64:
		return fmt.Sprintf("%v", val), true
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := toString(item)
			if !ok {
				return "", false
			}
			items = append(items, s)
		}
		return strings.Join(items, ","), true
	default:
		return "", false
	}
}
