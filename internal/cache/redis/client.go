// Package redis implements the engine's coordination primitives on
// go-redis/v9: the engine lease and mutation lock, the event signal bus and
// the relayer rate limiter.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// clientName identifies engine connections in CLIENT LIST.
const clientName = "betengine"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis Client and pings it to verify connectivity.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		ClientName: clientName,
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// EvictionPolicy returns the server's maxmemory-policy. Managed services that
// refuse CONFIG GET return an empty policy and no error.
func (c *Client) EvictionPolicy(ctx context.Context) (string, error) {
	res, err := c.rdb.ConfigGet(ctx, "maxmemory-policy").Result()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") ||
			strings.Contains(strings.ToUpper(err.Error()), "NOPERM") {
			return "", nil
		}
		return "", fmt.Errorf("redis: config get maxmemory-policy: %w", err)
	}
	return res["maxmemory-policy"], nil
}

// EvictionSafe reports whether policy keeps lock keys and event streams
// under memory pressure. Every policy other than noeviction may drop the
// engine lease or the mutation lock, both of which carry a TTL. An unknown
// policy is reported as safe.
func EvictionSafe(policy string) bool {
	return policy == "" || policy == "noeviction"
}
