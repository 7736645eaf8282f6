package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models officedesk.yml.
type Config struct {
	Uploads  Uploads  `yaml:"uploads"`
	Mail     Mail     `yaml:"mail"`
	LLM      LLM      `yaml:"llm"`
	Semantic Semantic `yaml:"semantic"`
	Webhooks Webhooks `yaml:"webhooks"`
}

type Uploads struct {
	MaxBytes          int64    `yaml:"max_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type Mail struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type LLM struct {
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	OpenAI    Provider `yaml:"openai"`
	Anthropic Provider `yaml:"anthropic"`
}

type Provider struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type Semantic struct {
	BaseURL  string        `yaml:"base_url"`
	ProbeTTL time.Duration `yaml:"probe_ttl"`
}

type Webhooks struct {
	URLs         []string      `yaml:"urls"`
	Secret       string        `yaml:"secret"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run od init or create it from the default template", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the workspace defaults when no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// ApplyEnv overlays secrets from the environment onto cfg. Keys set in
// the environment (or a .env file loaded at startup) win over the YAML
// file, so credentials never have to live in officedesk.yml.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OD_OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("OD_ANTHROPIC_API_KEY"); v != "" {
		c.LLM.Anthropic.APIKey = v
	}
	if v := os.Getenv("OD_MAIL_PASSWORD"); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv("OD_WEBHOOK_SECRET"); v != "" {
		c.Webhooks.Secret = v
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("config.uploads.max_bytes must be positive")
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		return fmt.Errorf("config.uploads.allowed_extensions is required")
	}
	for _, ext := range c.Uploads.AllowedExtensions {
		if ext == "" || strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed extension %q must be bare, without a leading dot", ext)
		}
	}
	switch c.LLM.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("config.llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.Mail.Host != "" && c.Mail.Port <= 0 {
		return fmt.Errorf("config.mail.port is required when mail.host is set")
	}
	if len(c.Webhooks.URLs) > 0 && c.Webhooks.PollInterval <= 0 {
		return fmt.Errorf("config.webhooks.poll_interval must be positive when urls are configured")
	}
	return nil
}

// ExtensionAllowed reports whether a filename's extension is in the allow-list.
func (c *Config) ExtensionAllowed(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range c.Uploads.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".officedesk", "officedesk.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `uploads:
  max_bytes: 52428800
  allowed_extensions: [txt, pdf, png, jpg, jpeg, gif, doc, docx, xls, xlsx, csv]

mail:
  host: ""
  port: 587
  username: ""
  password: ""
  from: ""

llm:
  provider: openai
  model: ""
  openai:
    base_url: https://api.openai.com/v1
    api_key: ""
    model: gpt-4o-mini
  anthropic:
    base_url: https://api.anthropic.com
    api_key: ""
    model: claude-3-5-sonnet-20241022

semantic:
  base_url: ""
  probe_ttl: 30s

webhooks:
  urls: []
  secret: ""
  poll_interval: 5s
`
