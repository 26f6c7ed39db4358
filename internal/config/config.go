package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	DefaultTTL         = 300
	DefaultMaxPerLine  = 50
	DefaultConcurrency = 4
	DefaultInterval    = 15 * time.Minute
	DefaultTimeout     = 20 * time.Second
	DefaultFormat      = "html"
)

// SyncConfig describes which record is managed and how candidates are picked for it.
type SyncConfig struct {
	Domain      string            `yaml:"domain"`
	Subdomain   string            `yaml:"subdomain"`
	TTL         int               `yaml:"ttl"`
	MaxPerLine  int               `yaml:"max_per_line"`
	Families    []string          `yaml:"families"`
	Lines       map[string]string `yaml:"lines"`
	Concurrency int               `yaml:"concurrency"`
	Interval    time.Duration     `yaml:"interval"`
	DryRun      bool              `yaml:"dry_run"`
	Source      SourceConfig      `yaml:"source"`
	Report      ReportConfig      `yaml:"report"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// SourceConfig points at the measurement page.
type SourceConfig struct {
	URL     string        `yaml:"url"`
	Format  string        `yaml:"format"` // html|json
	Timeout time.Duration `yaml:"timeout"`
}

// ReportConfig holds output paths; an empty path disables that format.
type ReportConfig struct {
	JSONPath string `yaml:"json_path"`
	TextPath string `yaml:"text_path"`
}

// NotifyConfig selects the notification sink. Kind may be empty, "telegram" or "webhook".
type NotifyConfig struct {
	Kind     string `yaml:"kind"`
	URL      string `yaml:"url"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// LoadSyncConfig reads a YAML sync config, expands ${ENV_VAR} references in
// secrets and applies defaults.
func LoadSyncConfig(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sync config file: %w", err)
	}

	var cfg SyncConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sync config file: %w", err)
	}

	cfg.Notify.URL = os.ExpandEnv(cfg.Notify.URL)
	cfg.Notify.BotToken = os.ExpandEnv(cfg.Notify.BotToken)
	cfg.Notify.ChatID = os.ExpandEnv(cfg.Notify.ChatID)

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *SyncConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerLine == 0 {
		cfg.MaxPerLine = DefaultMaxPerLine
	}
	if len(cfg.Families) == 0 {
		cfg.Families = []string{"ipv4", "ipv6"}
	}
	if len(cfg.Lines) == 0 {
		cfg.Lines = DefaultLines()
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Source.Format == "" {
		cfg.Source.Format = DefaultFormat
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = DefaultTimeout
	}
}

// Validate performs minimal validation for required fields.
func Validate(cfg *SyncConfig) error {
	if cfg.Domain == "" {
		return fmt.Errorf("sync config: missing required field 'domain'")
	}
	if cfg.TTL < 0 {
		return fmt.Errorf("sync config: ttl must be positive, got %d", cfg.TTL)
	}
	if cfg.MaxPerLine < 0 {
		return fmt.Errorf("sync config: max_per_line must be positive, got %d", cfg.MaxPerLine)
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("sync config: concurrency must be positive, got %d", cfg.Concurrency)
	}
	for _, f := range cfg.Families {
		if f != "ipv4" && f != "ipv6" {
			return fmt.Errorf("sync config: unknown family %q", f)
		}
	}
	if cfg.Source.URL == "" {
		return fmt.Errorf("sync config: missing required field 'source.url'")
	}
	if !slices.Contains([]string{"html", "json"}, cfg.Source.Format) {
		return fmt.Errorf("sync config: unknown source format %q", cfg.Source.Format)
	}
	switch cfg.Notify.Kind {
	case "":
	case "telegram":
		if cfg.Notify.BotToken == "" || cfg.Notify.ChatID == "" {
			return fmt.Errorf("sync config: telegram notify requires bot_token and chat_id")
		}
	case "webhook":
		if cfg.Notify.URL == "" {
			return fmt.Errorf("sync config: webhook notify requires url")
		}
	default:
		return fmt.Errorf("sync config: unknown notify kind %q", cfg.Notify.Kind)
	}
	return nil
}

// RecordName returns the managed record name, the bare domain for the apex.
func (c *SyncConfig) RecordName() string {
	if c.Subdomain == "" || c.Subdomain == "@" {
		return c.Domain
	}
	return c.Subdomain + "." + c.Domain
}

// FamilyEnabled reports whether records are managed for the given family.
func (c *SyncConfig) FamilyEnabled(family string) bool {
	return slices.Contains(c.Families, family)
}
