package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "database:\n  dsn: postgres://localhost/midgard\n"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, "https://midgard.ninerealms.com", c.Source.BaseURL)
	assert.Equal(t, "BTC.BTC", c.Source.Pool)
	assert.Equal(t, "hour", c.Source.Interval)
	assert.Equal(t, 400, c.Source.BatchSize)
	assert.Equal(t, 5*time.Second, c.Ingestion.BackoffInitial)
	assert.Equal(t, "memory", c.Cache.Type)
	assert.Equal(t, "none", c.Mirror.Type)
	assert.NoError(t, c.Validate())
}

func TestLoadKeepsFileValues(t *testing.T) {
	c, err := Load(writeConfig(t, `
server:
  port: 8080
source:
  interval: day
  batch_size: 50
query:
  cache_ttl: 1m
`))
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "day", c.Source.Interval)
	assert.Equal(t, 50, c.Source.BatchSize)
	assert.Equal(t, time.Minute, c.Query.CacheTTL)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/midgard")
	t.Setenv("MIDGARD_BASE_URL", "http://midgard.local")
	t.Setenv("MIDGARD_POOL", "ETH.ETH")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CLICKHOUSE_ADDR", "ch:9000")

	c, err := LoadWithEnv(writeConfig(t, "database:\n  dsn: postgres://file/midgard\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/midgard", c.Database.DSN)
	assert.Equal(t, "http://midgard.local", c.Source.BaseURL)
	assert.Equal(t, "ETH.ETH", c.Source.Pool)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "redis:6379", c.Cache.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, 9000, c.ClickHouse.Port)
}

func TestLoadWithEnvRejectsBadValues(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: postgres://file/midgard\n")

	t.Run("port", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "not-a-port")
		_, err := LoadWithEnv(path)
		assert.ErrorContains(t, err, "HTTP_PORT")
	})
	t.Run("clickhouse addr", func(t *testing.T) {
		t.Setenv("CLICKHOUSE_ADDR", "no-port")
		_, err := LoadWithEnv(path)
		assert.ErrorContains(t, err, "CLICKHOUSE_ADDR")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.applyDefaults()
		c.Database.DSN = "postgres://localhost/midgard"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"port range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"interval", func(c *Config) { c.Source.Interval = "week" }, "source.interval"},
		{"batch size", func(c *Config) { c.Source.BatchSize = 401 }, "source.batch_size"},
		{"backoff", func(c *Config) { c.Ingestion.BackoffMax = time.Second }, "backoff_max"},
		{"cache type", func(c *Config) { c.Cache.Type = "disk" }, "cache.type"},
		{"redis addr", func(c *Config) { c.Cache.Type = "layered" }, "cache.redis.addr"},
		{"mirror type", func(c *Config) { c.Mirror.Type = "s3" }, "mirror.type"},
		{"kafka brokers", func(c *Config) { c.Mirror.Type = "kafka" }, "kafka.brokers"},
		{"clickhouse host", func(c *Config) { c.Mirror.Type = "clickhouse" }, "clickhouse.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}

	assert.NoError(t, base().Validate())
}

func TestMirrorSelection(t *testing.T) {
	c := &Config{}
	c.Mirror.Type = "both"
	assert.True(t, c.MirrorKafka())
	assert.True(t, c.MirrorClickHouse())

	c.Mirror.Type = "kafka"
	assert.True(t, c.MirrorKafka())
	assert.False(t, c.MirrorClickHouse())
}

func TestBucketWidth(t *testing.T) {
	d, ok := BucketWidth("5min")
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, d)

	d, ok = BucketWidth("day")
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)

	_, ok = BucketWidth("week")
	assert.False(t, ok)
}
