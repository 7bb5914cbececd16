// Package config provides YAML-based configuration loading for rtb.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Config is the top-level rtb configuration, loaded from config.yaml.
type Config struct {
	DB           DBConfig           `yaml:"db"`
	Bus          BusConfig          `yaml:"bus"`
	HTTP         HTTPConfig         `yaml:"http"`
	Processor    ProcessorConfig    `yaml:"processor"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Archive      ArchiveConfig      `yaml:"archive"`
	ControlLog   ControlLogConfig   `yaml:"control_log"`
	Notify       NotifyConfig       `yaml:"notify"`
}

// DBConfig holds connection settings for the timing store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// BusConfig holds connection settings for the Redis-backed bus.
type BusConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig controls the push-hub/health gin server.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// ProcessorConfig holds the per-event processor's timing tunables (§4.C).
type ProcessorConfig struct {
	IngestIdleMS      int `yaml:"ingest_idle_ms"`
	RenewEverySec     int `yaml:"renew_every_sec"`
	SnapshotEverySec  int `yaml:"snapshot_every_sec"`
	ControlLogEverySec int `yaml:"control_log_every_sec"`
	DrainTimeoutSec   int `yaml:"drain_timeout_sec"`
}

// OrchestratorConfig holds the cluster control plane's tunables (§4.H).
type OrchestratorConfig struct {
	ScanIntervalSec   int    `yaml:"scan_interval_sec"`
	ExpiredTimeoutMin int    `yaml:"expired_timeout_min"`
	DrainWaitSec      int    `yaml:"drain_wait_sec"`
	ProcessorImage    string `yaml:"processor_image"`
	LoggerImage       string `yaml:"logger_image"`
	ControlLogImage   string `yaml:"control_log_image"`
	ServicePort       int    `yaml:"service_port"`
}

// ArchiveConfig holds the daily archive/purge service's settings (§4.I).
type ArchiveConfig struct {
	Cron             string `yaml:"cron"`
	Location         string `yaml:"location"`
	RetryAttempts    int    `yaml:"retry_attempts"`
	RetrySpacingSec  int    `yaml:"retry_spacing_sec"`
	ExceptionWaitMin int    `yaml:"exception_wait_min"`
	PurgeAfterHours  int    `yaml:"purge_after_hours"`
	Bucket           string `yaml:"bucket"`
	Region           string `yaml:"region"`
}

// ControlLogConfig holds the sanctioning-body control-log poller's settings (§4.F).
type ControlLogConfig struct {
	BaseURL         string `yaml:"base_url"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
}

// NotifyConfig holds ops-alert chat bridge credentials, resolved against
// the environment the same way the teacher resolves Telegraph's tokens.
// Railyard's TelegraphConfig also carried an SMTP-era notion of digest
// schedules; this rewrite carries forward only the Slack/Discord leaves,
// since internal/notify never grew a mail adapter (see DESIGN.md).
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack-specific credentials.
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"` // xoxb-...
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord-specific credentials.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.Bus.Addr == "" {
		c.Bus.Addr = "127.0.0.1:6379"
	}
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}

	if c.Processor.IngestIdleMS == 0 {
		c.Processor.IngestIdleMS = 250
	}
	if c.Processor.RenewEverySec == 0 {
		c.Processor.RenewEverySec = 120
	}
	if c.Processor.SnapshotEverySec == 0 {
		c.Processor.SnapshotEverySec = 5
	}
	if c.Processor.ControlLogEverySec == 0 {
		c.Processor.ControlLogEverySec = 30
	}
	if c.Processor.DrainTimeoutSec == 0 {
		c.Processor.DrainTimeoutSec = 15
	}

	if c.Orchestrator.ScanIntervalSec == 0 {
		c.Orchestrator.ScanIntervalSec = 10
	}
	if c.Orchestrator.ExpiredTimeoutMin == 0 {
		c.Orchestrator.ExpiredTimeoutMin = 10
	}
	if c.Orchestrator.DrainWaitSec == 0 {
		c.Orchestrator.DrainWaitSec = 15
	}
	if c.Orchestrator.ServicePort == 0 {
		c.Orchestrator.ServicePort = 8080
	}

	if c.Archive.Cron == "" {
		c.Archive.Cron = "0 0 * * *"
	}
	if c.Archive.Location == "" {
		c.Archive.Location = "UTC"
	}
	if c.Archive.RetryAttempts == 0 {
		c.Archive.RetryAttempts = 3
	}
	if c.Archive.RetrySpacingSec == 0 {
		c.Archive.RetrySpacingSec = 300
	}
	if c.Archive.ExceptionWaitMin == 0 {
		c.Archive.ExceptionWaitMin = 60
	}
	if c.Archive.PurgeAfterHours == 0 {
		c.Archive.PurgeAfterHours = 24
	}

	if c.ControlLog.PollIntervalSec == 0 {
		c.ControlLog.PollIntervalSec = 15
	}

	// Resolve env vars in secret fields.
	c.Bus.Password = resolveEnvVars(c.Bus.Password)
	c.HTTP.JWTSecret = resolveEnvVars(c.HTTP.JWTSecret)
	c.Notify.Slack.BotToken = resolveEnvVars(c.Notify.Slack.BotToken)
	c.Notify.Discord.BotToken = resolveEnvVars(c.Notify.Discord.BotToken)
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.DB.Database == "" {
		errs = append(errs, "db.database is required")
	}
	if c.HTTP.JWTSecret == "" {
		errs = append(errs, "http.jwt_secret is required")
	}
	if _, err := time.LoadLocation(c.Archive.Location); err != nil {
		errs = append(errs, fmt.Sprintf("archive.location %q is invalid: %v", c.Archive.Location, err))
	}
	if c.Notify.Slack.Enabled && c.Notify.Slack.BotToken == "" {
		errs = append(errs, "notify.slack.bot_token is required when notify.slack.enabled is true")
	}
	if c.Notify.Slack.Enabled && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when notify.slack.enabled is true")
	}
	if c.Notify.Discord.Enabled && c.Notify.Discord.BotToken == "" {
		errs = append(errs, "notify.discord.bot_token is required when notify.discord.enabled is true")
	}
	if c.Notify.Discord.Enabled && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when notify.discord.enabled is true")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location parses Archive.Location, already validated by validate().
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Archive.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkerEnv builds the shared env vars the orchestrator layers under each
// per-process event_id/org_id pair (§4.H.5/§6.6): DB and bus connection
// info every worker job needs to reach the same timing store and cache.
func (c *Config) WorkerEnv() map[string]string {
	return map[string]string{
		"db_host":     c.DB.Host,
		"db_port":     fmt.Sprintf("%d", c.DB.Port),
		"db_database": c.DB.Database,
		"bus_addr":    c.Bus.Addr,
	}
}

// resolveEnvVars replaces ${VAR_NAME} tokens in s with the corresponding
// environment variable value. Unset variables resolve to empty string.
func resolveEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
