package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Uploads.MaxBytes != 50*1024*1024 {
		t.Fatalf("expected 50 MiB cap, got %d", cfg.Uploads.MaxBytes)
	}
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated template invalid: %v", err)
	}
}

func TestExtensionAllowed(t *testing.T) {
	cfg := Default()
	for _, name := range []string{"a.txt", "b.PDF", "minutes.docx", "sheet.xlsx"} {
		if !cfg.ExtensionAllowed(name) {
			t.Errorf("expected %s allowed", name)
		}
	}
	for _, name := range []string{"tool.exe", "script.sh", "noext", ""} {
		if cfg.ExtensionAllowed(name) {
			t.Errorf("expected %s rejected", name)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero cap", func(c *Config) { c.Uploads.MaxBytes = 0 }, "max_bytes"},
		{"no extensions", func(c *Config) { c.Uploads.AllowedExtensions = nil }, "allowed_extensions"},
		{"dotted extension", func(c *Config) { c.Uploads.AllowedExtensions = []string{".txt"} }, "without a leading dot"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "llama-at-home" }, "provider"},
		{"mail port", func(c *Config) { c.Mail.Host = "smtp.example.com"; c.Mail.Port = 0 }, "mail.port"},
		{"webhook interval", func(c *Config) { c.Webhooks.URLs = []string{"http://x"}; c.Webhooks.PollInterval = 0 }, "poll_interval"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestApplyEnvOverlaysSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.OpenAI.APIKey = "from-yaml"
	cfg.Mail.Password = "from-yaml"

	t.Setenv("OD_OPENAI_API_KEY", "sk-env")
	t.Setenv("OD_ANTHROPIC_API_KEY", "ak-env")
	t.Setenv("OD_MAIL_PASSWORD", "smtp-env")
	t.Setenv("OD_WEBHOOK_SECRET", "")
	cfg.Webhooks.Secret = "from-yaml"

	cfg.ApplyEnv()
	if cfg.LLM.OpenAI.APIKey != "sk-env" {
		t.Fatalf("expected env openai key, got %q", cfg.LLM.OpenAI.APIKey)
	}
	if cfg.LLM.Anthropic.APIKey != "ak-env" {
		t.Fatalf("expected env anthropic key, got %q", cfg.LLM.Anthropic.APIKey)
	}
	if cfg.Mail.Password != "smtp-env" {
		t.Fatalf("expected env mail password, got %q", cfg.Mail.Password)
	}
	// unset env leaves the file value alone
	if cfg.Webhooks.Secret != "from-yaml" {
		t.Fatalf("expected yaml webhook secret kept, got %q", cfg.Webhooks.Secret)
	}
}

func TestLoadOptional(t *testing.T) {
	workspace := t.TempDir()

	cfg, err := LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if cfg.Uploads.MaxBytes != Default().Uploads.MaxBytes {
		t.Fatalf("expected defaults when no file exists")
	}

	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	raw := "uploads:\n  max_bytes: 1024\n  allowed_extensions: [txt]\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load with file: %v", err)
	}
	if cfg.Uploads.MaxBytes != 1024 {
		t.Fatalf("expected file override, got %d", cfg.Uploads.MaxBytes)
	}

	if err := os.WriteFile(path, []byte("uploads: [not-a-map]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(workspace); err == nil {
		t.Fatalf("expected parse error")
	}
}
