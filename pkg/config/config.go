// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Collector, Dashboard, Sheets, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Collector CollectorConfig `yaml:"collector"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	FunnelEvents string `yaml:"funnelEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CollectorConfig controls the event-collection service: per-key rate limits,
// recorder session-state retention, and the live-stats RPC listener.
type CollectorConfig struct {
	DefaultRateLimit int           `yaml:"defaultRateLimit"`
	SessionIdleTTL   time.Duration `yaml:"sessionIdleTTL"`
	MaxStepIndex     int           `yaml:"maxStepIndex"`
	RPCPort          int           `yaml:"rpcPort"`
}

// DashboardConfig controls the admin dashboard service.
type DashboardConfig struct {
	Port            int    `yaml:"port"`
	DefaultPageSize int    `yaml:"defaultPageSize"`
	MaxPageSize     int    `yaml:"maxPageSize"`
	CollectorRPC    string `yaml:"collectorRpc"`
}

// SheetsConfig holds the spreadsheet-mirror credentials and tab names.
// Credentials carry no defaults; the mirror fails fast when they are missing.
type SheetsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SpreadsheetID string `yaml:"spreadsheetId"`
	ClientID      string `yaml:"clientId"`
	ClientSecret  string `yaml:"clientSecret"`
	RefreshToken  string `yaml:"refreshToken"`
	SessionsTab   string `yaml:"sessionsTab"`
	StepsTab      string `yaml:"stepsTab"`
}

// Validate checks that every credential required to reach the spreadsheet is
// present. Called by the mirror at startup so a misconfigured deployment dies
// immediately instead of dropping rows at runtime.
func (s SheetsConfig) Validate() error {
	missing := make([]string, 0, 4)
	if s.SpreadsheetID == "" {
		missing = append(missing, "spreadsheetId")
	}
	if s.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if s.ClientSecret == "" {
		missing = append(missing, "clientSecret")
	}
	if s.RefreshToken == "" {
		missing = append(missing, "refreshToken")
	}
	if len(missing) > 0 {
		return fmt.Errorf("sheets config missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development. Sheets credentials deliberately have no defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "funnelanalytics",
			User:            "funnelanalytics",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "funnelanalytics-group",
			Topics: KafkaTopics{
				FunnelEvents: "funnel-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Collector: CollectorConfig{
			DefaultRateLimit: 600,
			SessionIdleTTL:   30 * time.Minute,
			MaxStepIndex:     50,
			RPCPort:          9001,
		},
		Dashboard: DashboardConfig{
			Port:            8082,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			CollectorRPC:    "localhost:9001",
		},
		Sheets: SheetsConfig{
			Enabled:     false,
			SessionsTab: "Sessions",
			StepsTab:    "StepEvents",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FA_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FA_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FA_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FA_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FA_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FA_DASHBOARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Dashboard.Port = port
		}
	}
	if v := os.Getenv("FA_DASHBOARD_COLLECTOR_RPC"); v != "" {
		cfg.Dashboard.CollectorRPC = v
	}
	if v := os.Getenv("FA_COLLECTOR_RPC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Collector.RPCPort = port
		}
	}
	if v := os.Getenv("FA_SHEETS_ENABLED"); v != "" {
		cfg.Sheets.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("FA_SHEETS_SPREADSHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("FA_SHEETS_CLIENT_ID"); v != "" {
		cfg.Sheets.ClientID = v
	}
	if v := os.Getenv("FA_SHEETS_CLIENT_SECRET"); v != "" {
		cfg.Sheets.ClientSecret = v
	}
	if v := os.Getenv("FA_SHEETS_REFRESH_TOKEN"); v != "" {
		cfg.Sheets.RefreshToken = v
	}
	if v := os.Getenv("FA_SHEETS_SESSIONS_TAB"); v != "" {
		cfg.Sheets.SessionsTab = v
	}
	if v := os.Getenv("FA_SHEETS_STEPS_TAB"); v != "" {
		cfg.Sheets.StepsTab = v
	}
}
