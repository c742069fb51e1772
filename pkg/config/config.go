package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Database struct {
		DSN            string        `yaml:"dsn"`
		MaxConns       int32         `yaml:"max_conns"`
		MinConns       int32         `yaml:"min_conns"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"database"`
	Source struct {
		BaseURL   string        `yaml:"base_url"`
		Pool      string        `yaml:"pool"`
		Interval  string        `yaml:"interval"`
		BatchSize int           `yaml:"batch_size"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"` // requests per second, negative disables
		RateBurst int           `yaml:"rate_burst"`
	} `yaml:"source"`
	Ingestion struct {
		Enabled        bool          `yaml:"enabled"`
		BackoffInitial time.Duration `yaml:"backoff_initial"`
		BackoffMax     time.Duration `yaml:"backoff_max"`
	} `yaml:"ingestion"`
	Query struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"query"`
	Cache struct {
		Type       string `yaml:"type"`
		MemorySize int    `yaml:"memory_size"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Mirror struct {
		Type string `yaml:"type"`
	} `yaml:"mirror"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		ClientID     string   `yaml:"client_id"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		Table        string        `yaml:"table"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file and fills unset values with defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	return &c, nil
}

// LoadWithEnv loads config from YAML, overrides with environment variables and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("MIDGARD_BASE_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv("MIDGARD_POOL"); v != "" {
		c.Source.Pool = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		host, port, err := splitHostPort(v)
		if err != nil {
			return nil, fmt.Errorf("CLICKHOUSE_ADDR: %w", err)
		}
		c.ClickHouse.Host, c.ClickHouse.Port = host, port
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 10 * time.Second
	}
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://midgard.ninerealms.com"
	}
	if c.Source.Pool == "" {
		c.Source.Pool = "BTC.BTC"
	}
	if c.Source.Interval == "" {
		c.Source.Interval = "hour"
	}
	if c.Source.BatchSize == 0 {
		c.Source.BatchSize = 400
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.RateLimit == 0 {
		c.Source.RateLimit = 2
	}
	if c.Source.RateBurst == 0 {
		c.Source.RateBurst = 4
	}
	if c.Ingestion.BackoffInitial == 0 {
		c.Ingestion.BackoffInitial = 5 * time.Second
	}
	if c.Ingestion.BackoffMax == 0 {
		c.Ingestion.BackoffMax = 5 * time.Minute
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Cache.MemorySize == 0 {
		c.Cache.MemorySize = 1024
	}
	if c.Mirror.Type == "" {
		c.Mirror.Type = "none"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "midgard.intervals"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "midgard"
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "interval_events"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (or DATABASE_URL)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, ok := BucketWidth(c.Source.Interval); !ok {
		return fmt.Errorf("source.interval must be one of 5min, hour, day, got '%s'", c.Source.Interval)
	}
	if c.Source.BatchSize < 1 || c.Source.BatchSize > 400 {
		return fmt.Errorf("source.batch_size must be within [1, 400], got %d", c.Source.BatchSize)
	}
	if c.Ingestion.BackoffMax < c.Ingestion.BackoffInitial {
		return fmt.Errorf("ingestion.backoff_max must be >= ingestion.backoff_initial")
	}
	switch c.Cache.Type {
	case "none", "memory":
	case "redis", "layered":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for cache.type '%s'", c.Cache.Type)
		}
	default:
		return fmt.Errorf("cache.type must be 'none', 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	switch c.Mirror.Type {
	case "none":
	case "kafka", "clickhouse", "both":
		if c.MirrorKafka() && len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when mirroring to kafka")
		}
		if c.MirrorClickHouse() && c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when mirroring to clickhouse")
		}
	default:
		return fmt.Errorf("mirror.type must be 'none', 'kafka', 'clickhouse' or 'both', got '%s'", c.Mirror.Type)
	}
	return nil
}

// MirrorKafka reports whether newly inserted intervals are published to Kafka.
func (c *Config) MirrorKafka() bool { return c.Mirror.Type == "kafka" || c.Mirror.Type == "both" }

// MirrorClickHouse reports whether newly inserted intervals are archived in ClickHouse.
func (c *Config) MirrorClickHouse() bool {
	return c.Mirror.Type == "clickhouse" || c.Mirror.Type == "both"
}

// BucketWidth maps a source interval name to the width of one bucket.
func BucketWidth(interval string) (time.Duration, bool) {
	switch interval {
	case "5min":
		return 5 * time.Minute, true
	case "hour":
		return time.Hour, true
	case "day":
		return 24 * time.Hour, true
	}
	return 0, false
}

func splitHostPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("port: %w", err)
	}
	return addr[:i], port, nil
}
