package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSyncConfig(t *testing.T) {
	content := `domain: example.com
subdomain: cdn
ttl: 600
max_per_line: 10
families: [ipv4]
interval: 5m
source:
  url: https://measure.example/cloudflare.html
  format: json
report:
  json_path: out/bestip.json
`
	cfg, err := LoadSyncConfig(writeFile(t, "sync.yaml", content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RecordName() != "cdn.example.com" {
		t.Errorf("expected record name 'cdn.example.com', got %q", cfg.RecordName())
	}
	if cfg.TTL != 600 {
		t.Errorf("expected ttl 600, got %d", cfg.TTL)
	}
	if cfg.MaxPerLine != 10 {
		t.Errorf("expected max_per_line 10, got %d", cfg.MaxPerLine)
	}
	if !cfg.FamilyEnabled("ipv4") || cfg.FamilyEnabled("ipv6") {
		t.Errorf("expected only ipv4 enabled, got %v", cfg.Families)
	}
	if cfg.Interval != 5*time.Minute {
		t.Errorf("expected interval 5m, got %s", cfg.Interval)
	}
	if cfg.Source.Format != "json" {
		t.Errorf("expected source format 'json', got %q", cfg.Source.Format)
	}
	if cfg.Report.JSONPath != "out/bestip.json" {
		t.Errorf("expected json report path, got %q", cfg.Report.JSONPath)
	}
}

func TestLoadSyncConfig_Defaults(t *testing.T) {
	content := `domain: example.com
source:
  url: https://measure.example/cloudflare.html
`
	cfg, err := LoadSyncConfig(writeFile(t, "sync.yaml", content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.TTL != DefaultTTL {
		t.Errorf("expected default ttl %d, got %d", DefaultTTL, cfg.TTL)
	}
	if cfg.MaxPerLine != DefaultMaxPerLine {
		t.Errorf("expected default max_per_line %d, got %d", DefaultMaxPerLine, cfg.MaxPerLine)
	}
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, cfg.Concurrency)
	}
	if cfg.Source.Format != "html" {
		t.Errorf("expected default format 'html', got %q", cfg.Source.Format)
	}
	if len(cfg.Lines) != 4 {
		t.Errorf("expected 4 default lines, got %d", len(cfg.Lines))
	}
	// Apex record when no subdomain is set.
	if cfg.RecordName() != "example.com" {
		t.Errorf("expected apex record name, got %q", cfg.RecordName())
	}
}

func TestLoadSyncConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing domain", "source:\n  url: https://x\n"},
		{"missing source url", "domain: example.com\n"},
		{"unknown family", "domain: example.com\nfamilies: [ipx]\nsource:\n  url: https://x\n"},
		{"unknown format", "domain: example.com\nsource:\n  url: https://x\n  format: csv\n"},
		{"negative ttl", "domain: example.com\nttl: -1\nsource:\n  url: https://x\n"},
		{"telegram without chat", "domain: example.com\nsource:\n  url: https://x\nnotify:\n  kind: telegram\n  bot_token: t\n"},
		{"unknown notify", "domain: example.com\nsource:\n  url: https://x\nnotify:\n  kind: pager\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadSyncConfig(writeFile(t, "sync.yaml", tt.content)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadSyncConfig_NotifyEnvExpansion(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "token-from-env")

	content := `domain: example.com
source:
  url: https://x
notify:
  kind: telegram
  bot_token: "${TEST_BOT_TOKEN}"
  chat_id: "42"
`
	cfg, err := LoadSyncConfig(writeFile(t, "sync.yaml", content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Notify.BotToken != "token-from-env" {
		t.Errorf("expected bot_token 'token-from-env', got %q", cfg.Notify.BotToken)
	}
}

func TestLoadSyncConfig_MissingFile(t *testing.T) {
	if _, err := LoadSyncConfig("/nonexistent/path/sync.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLineMapLookup(t *testing.T) {
	lm := NewLineMap(DefaultLines())

	tests := []struct {
		tag  string
		want string
	}{
		{"default", "default_view"},
		{"telecom", "Dianxin"},
		{"unicom", "Liantong"},
		{"mobile", "Yidong"},
		{"overseas", "default_view"}, // unknown falls back
		{"", "default_view"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := lm.Lookup(tt.tag); got != tt.want {
				t.Errorf("Lookup(%q): got %q, want %q", tt.tag, got, tt.want)
			}
		})
	}
}

func TestLineMapLookup_NoDefaultEntry(t *testing.T) {
	lm := NewLineMap(map[string]string{"telecom": "Dianxin"})

	if got := lm.Lookup("mobile"); got != DefaultProviderLine {
		t.Errorf("expected fallback %q, got %q", DefaultProviderLine, got)
	}
	if !lm.Known("telecom") || lm.Known("mobile") {
		t.Error("Known reported wrong membership")
	}
	if tags := lm.Tags(); len(tags) != 1 || tags[0] != "telecom" {
		t.Errorf("unexpected tags %v", tags)
	}
}

func TestLineMap_Nil(t *testing.T) {
	var lm *LineMap

	if got := lm.Lookup("telecom"); got != DefaultProviderLine {
		t.Errorf("expected %q from a nil map, got %q", DefaultProviderLine, got)
	}
	if lm.Known("telecom") {
		t.Error("nil map should know no tags")
	}
	if tags := lm.Tags(); len(tags) != 0 {
		t.Errorf("expected no tags, got %v", tags)
	}
}
