package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds pool settings applied on top of the DSN.
type ClientConfig struct {
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// WithPoolSize sets pool limits.
func WithPoolSize(maxConns, minConns int32) ClientOption {
	return func(c *ClientConfig) {
		c.MaxConns = maxConns
		c.MinConns = minConns
	}
}

// WithConnectTimeout bounds connect and the startup ping.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnectTimeout = d
	}
}

// Client wraps pgxpool.Pool for dependency injection.
type Client struct {
	*pgxpool.Pool
}

// NewClient creates a connection pool and verifies it with a ping.
func NewClient(ctx context.Context, dsn string, opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		MaxConns:       10,
		ConnectTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Close closes the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// SQLSTATE class 08: connection exception
const pgErrClassConnection = "08"

// IsUnavailableError reports whether err means the server could not be used:
// dial and network failures, a closed pool, or a connection exception. A
// statement the server rejected for any other reason is not.
func IsUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgErrClassConnection)
	}
	return true
}

// IsNotFoundError checks if err indicates no rows found.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
