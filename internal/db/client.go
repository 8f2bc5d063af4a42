// Package db provides the Postgres metadata store behind the search
// pipeline: book and author records, authoritative page counts, and the
// stored translations the merger joins onto ranked results.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/maktabah/bahith/internal/circuitbreaker"
)

// Config holds connection pool settings.
type Config struct {
	URL             string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.IdleConnections == 0 {
		c.IdleConnections = 5
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 5 * time.Minute
	}
}

// Client wraps the connection pool with a circuit breaker so a dead
// database sheds load fast instead of stacking timeouts.
type Client struct {
	db     *sqlx.DB
	cb     *circuitbreaker.Breaker
	logger *zap.Logger
}

// NewClient opens the pool and verifies connectivity.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.applyDefaults()
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database client initialized",
		zap.Int("max_connections", cfg.MaxConnections))
	return newClient(db, logger), nil
}

// newClient wires an existing pool; tests hand in sqlmock here.
func newClient(db *sqlx.DB, logger *zap.Logger) *Client {
	return &Client{
		db:     db,
		cb:     circuitbreaker.New("postgres", circuitbreaker.DatabaseConfig(), logger),
		logger: logger,
	}
}

// execute runs fn through the breaker. A missing row is a miss, not a
// backend failure, so sql.ErrNoRows never counts against the breaker.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	var callErr error
	err := c.cb.Execute(ctx, func() error {
		callErr = fn()
		if errors.Is(callErr, sql.ErrNoRows) {
			return nil
		}
		return callErr
	})
	if err != nil {
		return err
	}
	return callErr
}

// Ping verifies connectivity with a short deadline.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.execute(ctx, func() error { return c.db.PingContext(ctx) })
}

// Stats exposes pool statistics for health reporting.
func (c *Client) Stats() sql.DBStats { return c.db.Stats() }

// Close releases the pool.
func (c *Client) Close() error { return c.db.Close() }
