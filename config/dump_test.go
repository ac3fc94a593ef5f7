package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSettings_WriteYAML(t *testing.T) {
	t.Setenv("DOCPREVIEWER_SERVER_PORT", "9000")

	s, err := Load(LoadOptions{
		Path: filepath.Join(t.TempDir(), "absent.toml"),
		Flags: map[string]string{
			KeyGitHubToken:           "ghp_secret",
			KeyNotifySlackWebhookURL: "https://hooks.slack.com/services/T/B/X",
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var buf bytes.Buffer
	if err := s.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	out := buf.String()

	for _, secret := range []string{"ghp_secret", "hooks.slack.com"} {
		if strings.Contains(out, secret) {
			t.Errorf("dump leaks %q:\n%s", secret, out)
		}
	}
	for _, want := range []string{"# flag", "# env", "# default"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing source comment %q:\n%s", want, out)
		}
	}

	var parsed struct {
		PreviewsPath string `yaml:"previews_path"`
		Server       struct {
			Port int `yaml:"port"`
		} `yaml:"server"`
		GitHub struct {
			Token    string `yaml:"token"`
			JobLabel string `yaml:"job_label"`
		} `yaml:"github"`
		Notify struct {
			WebhookURL string `yaml:"webhook_url"`
		} `yaml:"notify"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("dump is not valid YAML: %v\n%s", err, out)
	}
	if parsed.PreviewsPath != "/var/doc-previewer" || parsed.Server.Port != 9000 {
		t.Errorf("parsed = %+v", parsed)
	}
	if parsed.GitHub.Token != redacted || parsed.GitHub.JobLabel != "Doc Build and Upload" {
		t.Errorf("github = %+v", parsed.GitHub)
	}
	if parsed.Notify.WebhookURL != "" {
		t.Errorf("unset secret should stay empty, got %q", parsed.Notify.WebhookURL)
	}
}

func TestSettings_WriteYAMLUnresolved(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Settings{}).WriteYAML(&buf); err == nil {
		t.Error("WriteYAML() should fail without resolved sources")
	}
}
