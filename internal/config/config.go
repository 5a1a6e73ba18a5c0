// Package config loads service configuration from YAML and AML_* environment
// variables.
package config

import "time"

// Config is the root configuration
type Config struct {
	Environment string          `mapstructure:"environment" validate:"oneof=development staging production test"`
	Server      ServerConfig    `mapstructure:"server"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Rules       RulesConfig     `mapstructure:"rules"`
	Watchlist   WatchlistConfig `mapstructure:"watchlist"`
	Graph       GraphConfig     `mapstructure:"graph"`
	Alerting    AlertingConfig  `mapstructure:"alerting"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// DatabaseConfig selects the primary store. ConnMaxLifetime is in seconds.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// RedisConfig enables distributed per-customer locks and the customer cache
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db" validate:"gte=0"`
	LockPrefix string        `mapstructure:"lock_prefix"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig enables the asynchronous graph feed and decision events
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

// AuditConfig selects the ledger store: "file" (JSONL) or "sql"
type AuditConfig struct {
	Store    string `mapstructure:"store" validate:"oneof=file sql"`
	FilePath string `mapstructure:"file_path"`
}

type RulesConfig struct {
	StructuringLowerBound   string        `mapstructure:"structuring_lower_bound" validate:"required,numeric"`
	ReportingThreshold      string        `mapstructure:"reporting_threshold" validate:"required,numeric"`
	StructuringScore        float64       `mapstructure:"structuring_score" validate:"gte=0"`
	VelocityWindow          time.Duration `mapstructure:"velocity_window" validate:"gt=0"`
	VelocityMaxTransactions int64         `mapstructure:"velocity_max_transactions" validate:"gt=0"`
	VelocityScore           float64       `mapstructure:"velocity_score" validate:"gte=0"`
	SanctionsScore          float64       `mapstructure:"sanctions_score" validate:"gte=0"`
}

// WatchlistConfig points at an optional YAML sanctions list. Without a file
// the built-in list is used.
type WatchlistConfig struct {
	File      string  `mapstructure:"file"`
	Threshold float64 `mapstructure:"threshold" validate:"gte=0,lte=100"`
	Watch     bool    `mapstructure:"watch"`
	Scorer    string  `mapstructure:"scorer" validate:"oneof=indel levenshtein"`
}

// GraphConfig selects the graph store: "memory" or "sql"
type GraphConfig struct {
	Store        string        `mapstructure:"store" validate:"oneof=memory sql"`
	MinHops      int           `mapstructure:"min_hops" validate:"gte=2"`
	MaxHops      int           `mapstructure:"max_hops" validate:"gtefield=MinHops"`
	RingLimit    int           `mapstructure:"ring_limit" validate:"gt=0"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	Lookback     time.Duration `mapstructure:"lookback"`
	MaxEdges     int           `mapstructure:"max_edges" validate:"gte=0"`
}

type AlertingConfig struct {
	Threshold   float64       `mapstructure:"threshold" validate:"gte=0"`
	QueueSize   int           `mapstructure:"queue_size" validate:"gt=0"`
	Workers     int           `mapstructure:"workers" validate:"gt=0"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	Email       EmailConfig   `mapstructure:"email"`
	Webhook     WebhookConfig `mapstructure:"webhook"`
}

type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// TelemetryConfig enables span and metric export to stdout
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}
