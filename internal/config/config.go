// Package config loads and validates daemon configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/jobcore/internal/jobs"
	"github.com/JakeFAU/jobcore/internal/policy/ratelimit"
	"github.com/JakeFAU/jobcore/internal/publisher/redis"
	"github.com/JakeFAU/jobcore/internal/resolve/gcs"
	"github.com/JakeFAU/jobcore/internal/resolve/local"
	"github.com/JakeFAU/jobcore/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. JOBCORE_SERVER_PORT.
const EnvPrefix = "JOBCORE"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Admission ratelimit.Config `mapstructure:"admission"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	UI        UIConfig         `mapstructure:"ui"`
	Progress  ProgressConfig   `mapstructure:"progress"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Store     StoreConfig      `mapstructure:"store"`
	DB        DBConfig         `mapstructure:"db"`
	SQLite    SQLiteConfig     `mapstructure:"sqlite"`
	Resolve   local.Config     `mapstructure:"resolve"`
	GCS       GCSConfig        `mapstructure:"gcs"`
	Publisher PublisherConfig  `mapstructure:"publisher"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Redis     redis.Config     `mapstructure:"redis"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig sizes the worker pool and bounds how many finished jobs
// stay in memory.
type SchedulerConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	Namespace        string        `mapstructure:"namespace"`
	Retain           int           `mapstructure:"retain"`
	RetainFor        time.Duration `mapstructure:"retain_for"`
}

// UIConfig controls result delivery. Operations overrides the delivery
// metadata per "manager.method".
type UIConfig struct {
	DefaultSilentAfter time.Duration            `mapstructure:"default_silent_after"`
	DefaultMessage     string                   `mapstructure:"default_message"`
	Operations         map[string]jobs.Metadata `mapstructure:"operations"`
}

// ProgressConfig tunes the event hub and selects its sinks.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogSink        bool          `mapstructure:"log_sink"`
	PrometheusSink bool          `mapstructure:"prometheus_sink"`
	StoreSink      bool          `mapstructure:"store_sink"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects the run store: memory, postgres or sqlite.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// GCSConfig enables gs:// path resolution.
type GCSConfig struct {
	Enabled bool `mapstructure:"enabled"`
	gcs.Config `mapstructure:",squash"`
}

// PublisherConfig selects where completion messages go: none, memory,
// pubsub or redis.
type PublisherConfig struct {
	Backend string `mapstructure:"backend"`
	Topic   string `mapstructure:"topic"`
}

// PubSubConfig holds the Google Cloud project used for Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// Load builds a Config from an optional .env file, an optional config file
// and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("admission.rps", 0.0)
	v.SetDefault("admission.burst", 10)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("scheduler.progress_interval", 100*time.Millisecond)
	v.SetDefault("scheduler.namespace", "jobcore.managers")
	v.SetDefault("scheduler.retain", 1000)
	v.SetDefault("scheduler.retain_for", time.Hour)
	v.SetDefault("ui.default_silent_after", time.Duration(0))
	v.SetDefault("ui.default_message", "Show result")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("progress.log_sink", true)
	v.SetDefault("progress.prometheus_sink", true)
	v.SetDefault("progress.store_sink", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("db.table", "job_runs")
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("sqlite.path", "jobcore.db")
	v.SetDefault("resolve.base_dir", ".")
	v.SetDefault("gcs.enabled", false)
	v.SetDefault("publisher.backend", "none")
	v.SetDefault("publisher.topic", "jobcore-completions")
	v.SetDefault("redis.connect_timeout", 5*time.Second)
	v.SetDefault("redis.retry_attempts", 3)
	v.SetDefault("redis.retry_interval", time.Second)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "jobcore")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Admission.RPS < 0 {
		return fmt.Errorf("admission.rps must be >= 0")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	if c.Scheduler.QueueDepth < 0 {
		return fmt.Errorf("scheduler.queue_depth must be >= 0")
	}
	if c.Scheduler.Retain < 0 || c.Scheduler.RetainFor < 0 {
		return fmt.Errorf("scheduler.retain and scheduler.retain_for must be >= 0")
	}
	if c.UI.DefaultSilentAfter < 0 {
		return fmt.Errorf("ui.default_silent_after must be >= 0")
	}
	for name, meta := range c.UI.Operations {
		if meta.SilentAfter < 0 {
			return fmt.Errorf("ui.operations.%s.silent_after must be >= 0", name)
		}
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.backend is postgres")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path must be set when store.backend is sqlite")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Publisher.Backend {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when publisher.backend is pubsub")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url must be set when publisher.backend is redis")
		}
	default:
		return fmt.Errorf("unknown publisher.backend %q", c.Publisher.Backend)
	}
	if c.Publisher.Backend != "none" && c.Publisher.Topic == "" {
		return fmt.Errorf("publisher.topic must be set when a publisher is configured")
	}
	if c.GCS.Enabled && c.GCS.Bucket == "" {
		return fmt.Errorf("gcs.bucket must be set when gcs is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}
