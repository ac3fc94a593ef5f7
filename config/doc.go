// Package config loads the service configuration from layered sources.
//
// Values are resolved with clear precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (DOCPREVIEWER_ prefix)
//  3. The config file (TOML or YAML, chosen by extension)
//  4. Built-in defaults (lowest priority)
//
// # Basic Usage
//
//	settings, err := config.Load(config.LoadOptions{
//	    Path:     "/etc/doc-previewer/config.toml",
//	    Explicit: true,
//	})
//	fmt.Println(settings.ListenAddress())           // "0.0.0.0:8000"
//	fmt.Println(settings.Source(config.KeyServerPort)) // "default"
//
// # Keys
//
// Nested tables in the file flatten to dotted keys, so
//
//	[github]
//	token = "..."
//	allowed_owners = ["pydata", "pandas-dev"]
//
// sets github.token and github.allowed_owners. The matching environment
// variables replace dots and dashes with underscores:
//
//	DOCPREVIEWER_GITHUB_TOKEN=ghp_...
//	DOCPREVIEWER_GITHUB_ALLOWED_OWNERS=pydata,pandas-dev
//
// # Config Sources
//
// Each resolved value tracks where it came from:
//   - "default": Built-in default value
//   - "file": The config file
//   - "env": Environment variable
//   - "flag": Command-line flag
//
// Settings.WriteYAML prints the effective values with their sources and
// redacts secrets.
package config
