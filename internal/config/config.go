// Package config handles loading and validating skillrouter configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/skillrouter/internal/router"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for skillrouter.
type Config struct {
	LogLevel       string               `json:"log_level,omitempty" yaml:"log_level,omitempty"` // debug, info, warn, error. Default: info.
	Catalog        CatalogConfig        `json:"catalog" yaml:"catalog"`
	Routing        RoutingConfig        `json:"routing" yaml:"routing"`
	Storage        *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = decision log disabled
	Observability  *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Gateways       GatewaysConfig       `json:"gateways" yaml:"gateways"`
	HealthSchedule string               `json:"health_schedule,omitempty" yaml:"health_schedule,omitempty"` // Cron expression. Empty = disabled.
}

// CatalogConfig configures skill discovery.
type CatalogConfig struct {
	SkillsDirs            []string `json:"skills_dirs" yaml:"skills_dirs"`                                             // Override: SKILLROUTER_SKILLS_DIR (comma-separated).
	Patterns              []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`                               // Doublestar globs relative to each dir. Default: */SKILL.md.
	PollIntervalSeconds   int      `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`                         // Watcher rescan fallback. 0 = no watcher (rescan per request).
	IncludeCommandBridges *bool    `json:"include_command_bridges,omitempty" yaml:"include_command_bridges,omitempty"` // Default: true.
	KeywordsFile          string   `json:"keywords_file,omitempty" yaml:"keywords_file,omitempty"`                     // Keyword tables override. Empty = built-in tables.
	UseDatabase           bool     `json:"use_database" yaml:"use_database"`                                           // Also route to skills registered in storage.
	SeedDatabase          bool     `json:"seed_database" yaml:"seed_database"`                                         // Copy file-based skills into storage on start.
}

// PollInterval returns the watcher rescan interval. 0 = watcher disabled.
func (c *CatalogConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds > 0 {
		return time.Duration(c.PollIntervalSeconds) * time.Second
	}
	return 0
}

// CommandBridges reports whether slash-command bridges join the catalog.
func (c *CatalogConfig) CommandBridges() bool {
	return c.IncludeCommandBridges == nil || *c.IncludeCommandBridges
}

// RoutingConfig configures the dual gate.
type RoutingConfig struct {
	ConfidenceThreshold  float64 `json:"confidence_threshold" yaml:"confidence_threshold"`   // Default: 0.8
	UncertaintyThreshold float64 `json:"uncertainty_threshold" yaml:"uncertainty_threshold"` // Default: 0.35
}

// Thresholds returns the configured gate, filling defaults for unset values.
func (r *RoutingConfig) Thresholds() router.Thresholds {
	t := router.DefaultThresholds()
	if r.ConfidenceThreshold > 0 {
		t.Confidence = r.ConfidenceThreshold
	}
	if r.UncertaintyThreshold > 0 {
		t.Uncertainty = r.UncertaintyThreshold
	}
	return t
}

// StorageConfig configures the decision log and skill registry backend.
type StorageConfig struct {
	Driver                string                 `json:"driver" yaml:"driver"`                                   // "sqlite" (default) or "postgres".
	SQLite                *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`               // SQLite-specific settings.
	Postgres              *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`           // PostgreSQL-specific settings.
	DecisionRetentionDays int                    `json:"decision_retention_days" yaml:"decision_retention_days"` // 0 = keep forever.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// Retention returns how long decisions are kept. 0 = forever.
func (s *StorageConfig) Retention() time.Duration {
	if s != nil && s.DecisionRetentionDays > 0 {
		return time.Duration(s.DecisionRetentionDays) * 24 * time.Hour
	}
	return 0
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: ~/.skillrouter/skillrouter.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`                                 // Override: SKILLROUTER_DB_DSN.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ObservabilityConfig configures metrics, tracing and miss-rate alerts.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// AnomalyEnabled reports whether routing miss-rate detection is on.
func (o *ObservabilityConfig) AnomalyEnabled() bool {
	return o != nil && o.Anomaly != nil && o.Anomaly.Enabled
}

// AnomalyConfig configures detection of routing degradation: a sliding
// window over route outcomes that warns when too many requests end
// without a recommendation passing the gate.
type AnomalyConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	WindowSeconds     int     `json:"window_seconds" yaml:"window_seconds"`           // Default: 300
	MissRateThreshold float64 `json:"miss_rate_threshold" yaml:"miss_rate_threshold"` // e.g. 0.5. 0 = never warn.
	MinSamples        int     `json:"min_samples" yaml:"min_samples"`                 // Default: 5
}

// MetricsEnabled reports whether Prometheus metrics are collected.
func (o *ObservabilityConfig) MetricsEnabled() bool {
	return o != nil && o.Metrics != nil && o.Metrics.Enabled
}

// TracingEnabled reports whether OpenTelemetry tracing is configured.
func (o *ObservabilityConfig) TracingEnabled() bool {
	return o != nil && o.Tracing != nil && o.Tracing.Enabled
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`                           // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`                           // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"`                   // Default: "skillrouter"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`                     // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`                           // Skip TLS for dev
	Environment string  `json:"environment,omitempty" yaml:"environment,omitempty"` // deployment.environment resource attribute
}

// GatewaysConfig configures the network surfaces.
type GatewaysConfig struct {
	HTTP      *HTTPGatewayConfig      `json:"http,omitempty" yaml:"http,omitempty"`
	WebSocket *WebSocketGatewayConfig `json:"websocket,omitempty" yaml:"websocket,omitempty"` // Mounted on the HTTP server.
}

// HTTPGatewayConfig configures the HTTP API gateway.
type HTTPGatewayConfig struct {
	Enabled             bool            `json:"enabled" yaml:"enabled"`
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"` // Override: SKILLROUTER_LISTEN_ADDR. Default: ":8080".
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	APIKeys             []string        `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // Bearer tokens. Empty = no auth. Override: SKILLROUTER_API_KEY.
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (h *HTTPGatewayConfig) Addr() string {
	if h != nil && h.ListenAddr != "" {
		return h.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request body cap with a default of 64 KiB.
func (h *HTTPGatewayConfig) MaxRequestSize() int64 {
	if h != nil && h.MaxRequestSizeBytes > 0 {
		return h.MaxRequestSizeBytes
	}
	return 64 << 10
}

// WebSocketGatewayConfig configures persistent routing sessions.
type WebSocketGatewayConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Path               string `json:"path" yaml:"path"`                                 // Default: "/ws/route".
	Token              string `json:"token" yaml:"token"`                               // Shared session token. Empty = HTTP API keys apply.
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds"` // Default: 300.
}

// WSPath returns the WebSocket path with a default of "/ws/route".
func (w *WebSocketGatewayConfig) WSPath() string {
	if w != nil && w.Path != "" {
		return w.Path
	}
	return "/ws/route"
}

// IdleTimeout returns the session idle timeout with a default of 5m.
func (w *WebSocketGatewayConfig) IdleTimeout() time.Duration {
	if w != nil && w.IdleTimeoutSeconds > 0 {
		return time.Duration(w.IdleTimeoutSeconds) * time.Second
	}
	return 5 * time.Minute
}

// RateLimitConfig configures per-client rate limiting for a gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Catalog: CatalogConfig{
			SkillsDirs: []string{filepath.Join(".opencode", "skill")},
		},
	}
}

// DefaultConfigPath returns the default config file path (~/.skillrouter/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/skillrouter.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".skillrouter", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. Any other read or validation error is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return finish(Default())
	}
	return nil, err
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("SKILLROUTER_SKILLS_DIR"); v != "" {
		var dirs []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				dirs = append(dirs, d)
			}
		}
		c.Catalog.SkillsDirs = dirs
	}
	if v := os.Getenv("SKILLROUTER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SKILLROUTER_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{}
		}
		c.Storage.Driver = "postgres"
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("SKILLROUTER_LISTEN_ADDR"); v != "" {
		if c.Gateways.HTTP == nil {
			c.Gateways.HTTP = &HTTPGatewayConfig{Enabled: true}
		}
		c.Gateways.HTTP.ListenAddr = v
	}
	if v := os.Getenv("SKILLROUTER_API_KEY"); v != "" {
		if c.Gateways.HTTP == nil {
			c.Gateways.HTTP = &HTTPGatewayConfig{Enabled: true}
		}
		c.Gateways.HTTP.APIKeys = append(c.Gateways.HTTP.APIKeys, v)
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

// SQLitePath returns the SQLite database path, defaulting under ~/.skillrouter.
func (c *Config) SQLitePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		if resolved, err := resolvePath(c.Storage.SQLite.Path); err == nil {
			return resolved
		}
		return c.Storage.SQLite.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "skillrouter.db"
	}
	return filepath.Join(home, ".skillrouter", "skillrouter.db")
}

var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func (c *Config) validate() error {
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level %q is not supported (use debug, info, warn, or error)", c.LogLevel)
	}
	if len(c.Catalog.SkillsDirs) == 0 {
		return fmt.Errorf("catalog.skills_dirs must contain at least one directory")
	}
	if c.Catalog.PollIntervalSeconds < 0 {
		return fmt.Errorf("catalog.poll_interval_seconds must not be negative")
	}
	if (c.Catalog.UseDatabase || c.Catalog.SeedDatabase) && c.Storage == nil {
		return fmt.Errorf("catalog.use_database and catalog.seed_database require storage")
	}

	if r := c.Routing.ConfidenceThreshold; r < 0 || r > 1 {
		return fmt.Errorf("routing.confidence_threshold must be within [0, 1] (got %v)", r)
	}
	if r := c.Routing.UncertaintyThreshold; r < 0 || r > 1 {
		return fmt.Errorf("routing.uncertainty_threshold must be within [0, 1] (got %v)", r)
	}

	// Storage driver validation.
	if c.Storage != nil {
		switch c.Storage.StorageDriver() {
		case "sqlite":
		case "postgres":
			if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage.postgres.dsn is required (set SKILLROUTER_DB_DSN env var)")
			}
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
		if c.Storage.DecisionRetentionDays < 0 {
			return fmt.Errorf("storage.decision_retention_days must not be negative")
		}
	}

	if c.Observability.TracingEnabled() {
		switch c.Observability.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", c.Observability.Tracing.Protocol)
		}
		if sr := c.Observability.Tracing.SampleRate; sr < 0 || sr > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be within [0, 1]")
		}
	}
	if c.Observability.AnomalyEnabled() {
		a := c.Observability.Anomaly
		if a.MissRateThreshold < 0 || a.MissRateThreshold > 1 {
			return fmt.Errorf("observability.anomaly.miss_rate_threshold must be within [0, 1]")
		}
		if a.WindowSeconds < 0 || a.MinSamples < 0 {
			return fmt.Errorf("observability.anomaly values must not be negative")
		}
	}

	if ws := c.Gateways.WebSocket; ws != nil && ws.Enabled {
		if c.Gateways.HTTP == nil || !c.Gateways.HTTP.Enabled {
			return fmt.Errorf("gateways.websocket requires gateways.http to be enabled")
		}
		if !strings.HasPrefix(ws.WSPath(), "/") {
			return fmt.Errorf("gateways.websocket.path must start with /")
		}
	}
	if h := c.Gateways.HTTP; h != nil {
		if h.RateLimit.RequestsPerMinute < 0 || h.RateLimit.BurstSize < 0 {
			return fmt.Errorf("gateways.http.rate_limit values must not be negative")
		}
	}

	if c.HealthSchedule != "" {
		if _, err := ParseSchedule(c.HealthSchedule); err != nil {
			return fmt.Errorf("health_schedule: %w", err)
		}
	}
	return nil
}

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}
