// Package config handles loading and validating mlinzi configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for mlinzi.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.mlinzi/data. Override: MLINZI_DATA_DIR env var.
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`   // nil = SQLite under the data directory
	Telegram      TelegramConfig       `json:"telegram" yaml:"telegram"`
	Sandbox       *SandboxConfig       `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	Update        *UpdateConfig        `json:"update,omitempty" yaml:"update,omitempty"`
	HTTP          *HTTPConfig          `json:"http,omitempty" yaml:"http,omitempty"`                   // nil = ops server disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Log           *LogConfig           `json:"log,omitempty" yaml:"log,omitempty"`
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data directory.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: <data_dir>/mlinzi.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`                                 // Override: MLINZI_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 10
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 2
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// TelegramConfig configures the Telegram transport.
// Bot token can be set here or via TELEGRAM_BOT_TOKEN env var.
// Environment variable takes precedence over config value.
type TelegramConfig struct {
	BotToken           string          `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	AllowedUsers       []int64         `json:"allowed_users" yaml:"allowed_users"` // Telegram user ids allowed to run commands. Empty = deny all.
	PollTimeoutSeconds int             `json:"poll_timeout_seconds" yaml:"poll_timeout_seconds"`
	RateLimit          RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// PollTimeout returns the long-polling timeout. Default: 30s.
func (t *TelegramConfig) PollTimeout() time.Duration {
	if t.PollTimeoutSeconds > 0 {
		return time.Duration(t.PollTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// RateLimitConfig configures per-user rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// SandboxConfig bounds the shell and diagnostic commands.
type SandboxConfig struct {
	ShellTimeoutSeconds   int `json:"shell_timeout_seconds" yaml:"shell_timeout_seconds"`     // Default: 120
	SysinfoTimeoutSeconds int `json:"sysinfo_timeout_seconds" yaml:"sysinfo_timeout_seconds"` // Default: 60
}

// ShellTimeout returns the hard bound for shell snippets.
func (s *SandboxConfig) ShellTimeout() time.Duration {
	if s != nil && s.ShellTimeoutSeconds > 0 {
		return time.Duration(s.ShellTimeoutSeconds) * time.Second
	}
	return 120 * time.Second
}

// SysinfoTimeout returns the bound for the system information probe.
func (s *SandboxConfig) SysinfoTimeout() time.Duration {
	if s != nil && s.SysinfoTimeoutSeconds > 0 {
		return time.Duration(s.SysinfoTimeoutSeconds) * time.Second
	}
	return 60 * time.Second
}

// UpdateConfig configures the self-update flow.
type UpdateConfig struct {
	RepoDir       string `json:"repo_dir,omitempty" yaml:"repo_dir,omitempty"`           // Git working tree. Default: located from the working directory. Override: MLINZI_REPO_DIR.
	LockFile      string `json:"lock_file,omitempty" yaml:"lock_file,omitempty"`         // Default: go.sum
	ToolchainDir  string `json:"toolchain_dir,omitempty" yaml:"toolchain_dir,omitempty"` // Isolated Go toolchain root (contains bin/go). Override: MLINZI_TOOLCHAIN.
	BuildTarget   string `json:"build_target,omitempty" yaml:"build_target,omitempty"`   // Default: ./cmd/mlinzi
	CheckSchedule string `json:"check_schedule,omitempty" yaml:"check_schedule,omitempty"` // Cron spec for the upstream check. Empty = disabled.
	NotifyChatID  int64  `json:"notify_chat_id,omitempty" yaml:"notify_chat_id,omitempty"` // Chat told about available updates.
}

// LockFilePath returns the dependency lock file, relative to the repository root.
func (u *UpdateConfig) LockFilePath() string {
	if u != nil && u.LockFile != "" {
		return u.LockFile
	}
	return "go.sum"
}

// Target returns the package built into the running executable.
func (u *UpdateConfig) Target() string {
	if u != nil && u.BuildTarget != "" {
		return u.BuildTarget
	}
	return "./cmd/mlinzi"
}

// Repo returns the configured work tree directory. Empty = the working directory.
func (u *UpdateConfig) Repo() string {
	if u == nil {
		return ""
	}
	return u.RepoDir
}

// Toolchain returns the isolated Go toolchain root, or "" when dependencies
// are left to the operator.
func (u *UpdateConfig) Toolchain() string {
	if u == nil {
		return ""
	}
	return u.ToolchainDir
}

// Schedule returns the upstream check cron spec, or "" when disabled.
func (u *UpdateConfig) Schedule() string {
	if u == nil {
		return ""
	}
	return u.CheckSchedule
}

// NotifyChat returns the chat told about available updates.
func (u *UpdateConfig) NotifyChat() int64 {
	if u == nil {
		return 0
	}
	return u.NotifyChatID
}

// HTTPConfig configures the ops HTTP server.
type HTTPConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"` // Default: 127.0.0.1:9090
}

// Addr returns the listen address.
func (h *HTTPConfig) Addr() string {
	if h != nil && h.ListenAddr != "" {
		return h.ListenAddr
	}
	return "127.0.0.1:9090"
}

// ObservabilityConfig configures metrics, tracing, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "mlinzi"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// HealthConfig configures dependency checks for the readiness probe.
type HealthConfig struct {
	IncludeDB bool `json:"include_db" yaml:"include_db"`
}

// AnomalyConfig configures threshold-based anomaly detection on command failures.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`                       // debug, info (default), warn, error
	File       string `json:"file,omitempty" yaml:"file,omitempty"`     // Tee logs to a rotating file when set.
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`           // Default: 10
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`           // Default: 3
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`         // Default: 7
	Compress   bool   `json:"compress" yaml:"compress"`
}

// DefaultConfigPath returns the default config file path (~/.mlinzi/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/mlinzi.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".mlinzi", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Secrets and paths can be overridden by environment variables, which take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".mlinzi", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv layers environment variable overrides on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("MLINZI_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MLINZI_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{}
		}
		if c.Storage.Driver == "" {
			c.Storage.Driver = "postgres"
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("MLINZI_TOOLCHAIN"); v != "" {
		if c.Update == nil {
			c.Update = &UpdateConfig{}
		}
		c.Update.ToolchainDir = v
	}
	if v := os.Getenv("MLINZI_REPO_DIR"); v != "" {
		if c.Update == nil {
			c.Update = &UpdateConfig{}
		}
		c.Update.RepoDir = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".mlinzi", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the SQLite database path, honouring storage.sqlite.path.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		if p, err := resolvePath(c.Storage.SQLite.Path); err == nil {
			return p
		}
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "mlinzi.db")
}

// StorageDriverName returns the effective storage driver name.
func (c *Config) StorageDriverName() string {
	if c.Storage != nil {
		return c.Storage.StorageDriver()
	}
	return "sqlite"
}

func (c *Config) validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if len(c.Telegram.AllowedUsers) == 0 {
		return fmt.Errorf("telegram.allowed_users must list at least one user id")
	}
	if c.Telegram.PollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.poll_timeout_seconds must not be negative")
	}
	if c.Telegram.RateLimit.RequestsPerMinute < 0 || c.Telegram.RateLimit.BurstSize < 0 {
		return fmt.Errorf("telegram.rate_limit values must not be negative")
	}

	switch c.StorageDriverName() {
	case "sqlite":
	case "postgres":
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (or set MLINZI_DB_DSN)")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
	}

	if c.Sandbox != nil {
		if c.Sandbox.ShellTimeoutSeconds < 0 {
			return fmt.Errorf("sandbox.shell_timeout_seconds must not be negative")
		}
		if c.Sandbox.SysinfoTimeoutSeconds < 0 {
			return fmt.Errorf("sandbox.sysinfo_timeout_seconds must not be negative")
		}
	}

	if c.Update != nil && c.Update.CheckSchedule != "" {
		if _, err := cron.ParseStandard(c.Update.CheckSchedule); err != nil {
			return fmt.Errorf("update.check_schedule %q: %w", c.Update.CheckSchedule, err)
		}
		if c.Update.NotifyChatID == 0 {
			return fmt.Errorf("update.notify_chat_id is required when update.check_schedule is set")
		}
	}

	if c.Log != nil {
		switch strings.ToLower(c.Log.Level) {
		case "", "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("log.level %q is not supported", c.Log.Level)
		}
	}
	return nil
}
