package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
db:
  host: 10.0.0.5
  port: 3307
  database: racetiming

bus:
  addr: 10.0.0.6:6379
  db: 2

http:
  listen_addr: :9090
  jwt_secret: supersecret

archive:
  cron: "30 1 * * *"
  location: America/New_York
  bucket: racetiming-archives
  region: us-east-1

notify:
  slack:
    enabled: true
    bot_token: xoxb-abc
    channel_id: C123
`

const minimalYAML = `
db:
  database: racetiming
http:
  jwt_secret: secret
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DB.Host != "10.0.0.5" {
		t.Errorf("DB.Host = %q, want %q", cfg.DB.Host, "10.0.0.5")
	}
	if cfg.DB.Port != 3307 {
		t.Errorf("DB.Port = %d, want %d", cfg.DB.Port, 3307)
	}
	if cfg.Bus.Addr != "10.0.0.6:6379" {
		t.Errorf("Bus.Addr = %q, want %q", cfg.Bus.Addr, "10.0.0.6:6379")
	}
	if cfg.Bus.DB != 2 {
		t.Errorf("Bus.DB = %d, want 2", cfg.Bus.DB)
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Errorf("HTTP.ListenAddr = %q, want %q", cfg.HTTP.ListenAddr, ":9090")
	}
	if cfg.Archive.Cron != "30 1 * * *" {
		t.Errorf("Archive.Cron = %q, want %q", cfg.Archive.Cron, "30 1 * * *")
	}
	if cfg.Archive.Location != "America/New_York" {
		t.Errorf("Archive.Location = %q, want %q", cfg.Archive.Location, "America/New_York")
	}
	if cfg.Notify.Slack.ChannelID != "C123" {
		t.Errorf("Notify.Slack.ChannelID = %q, want %q", cfg.Notify.Slack.ChannelID, "C123")
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DB.Host != "127.0.0.1" {
		t.Errorf("DB.Host = %q, want default %q", cfg.DB.Host, "127.0.0.1")
	}
	if cfg.DB.Port != 3306 {
		t.Errorf("DB.Port = %d, want default %d", cfg.DB.Port, 3306)
	}
	if cfg.Bus.Addr != "127.0.0.1:6379" {
		t.Errorf("Bus.Addr = %q, want default %q", cfg.Bus.Addr, "127.0.0.1:6379")
	}
	if cfg.Archive.Cron != "0 0 * * *" {
		t.Errorf("Archive.Cron = %q, want default %q", cfg.Archive.Cron, "0 0 * * *")
	}
	if cfg.Archive.RetryAttempts != 3 {
		t.Errorf("Archive.RetryAttempts = %d, want default 3", cfg.Archive.RetryAttempts)
	}
	if cfg.Orchestrator.ScanIntervalSec != 10 {
		t.Errorf("Orchestrator.ScanIntervalSec = %d, want default 10", cfg.Orchestrator.ScanIntervalSec)
	}
}

func TestParse_MissingDatabase(t *testing.T) {
	_, err := Parse([]byte(`http:
  jwt_secret: x
`))
	if err == nil {
		t.Fatal("expected error for missing db.database")
	}
	if !strings.Contains(err.Error(), "db.database is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db.database is required")
	}
}

func TestParse_MissingJWTSecret(t *testing.T) {
	_, err := Parse([]byte(`db:
  database: racetiming
`))
	if err == nil {
		t.Fatal("expected error for missing http.jwt_secret")
	}
	if !strings.Contains(err.Error(), "http.jwt_secret is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "http.jwt_secret is required")
	}
}

func TestParse_InvalidLocation(t *testing.T) {
	_, err := Parse([]byte(`db:
  database: racetiming
http:
  jwt_secret: x
archive:
  location: Not/A_Zone
`))
	if err == nil {
		t.Fatal("expected error for invalid archive.location")
	}
	if !strings.Contains(err.Error(), "archive.location") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "archive.location")
	}
}

func TestParse_SlackEnabledRequiresToken(t *testing.T) {
	_, err := Parse([]byte(`db:
  database: racetiming
http:
  jwt_secret: x
notify:
  slack:
    enabled: true
    channel_id: C1
`))
	if err == nil {
		t.Fatal("expected error for slack enabled without bot_token")
	}
	if !strings.Contains(err.Error(), "notify.slack.bot_token is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "notify.slack.bot_token is required")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte(":::invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DB.Database != "racetiming" {
		t.Errorf("DB.Database = %q, want %q", cfg.DB.Database, "racetiming")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("RTB_TEST_TOKEN", "resolved-value")
	cfg, err := Parse([]byte(`db:
  database: racetiming
http:
  jwt_secret: x
notify:
  slack:
    enabled: true
    bot_token: "${RTB_TEST_TOKEN}"
    channel_id: C1
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Notify.Slack.BotToken != "resolved-value" {
		t.Errorf("Notify.Slack.BotToken = %q, want %q", cfg.Notify.Slack.BotToken, "resolved-value")
	}
}

func TestWorkerEnv(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := cfg.WorkerEnv()
	if env["db_host"] != "10.0.0.5" {
		t.Errorf("WorkerEnv()[db_host] = %q, want %q", env["db_host"], "10.0.0.5")
	}
	if env["bus_addr"] != "10.0.0.6:6379" {
		t.Errorf("WorkerEnv()[bus_addr] = %q, want %q", env["bus_addr"], "10.0.0.6:6379")
	}
}
