// Package redis connects the gallery to an optional Redis server used as a
// shared session store when more than one gallery process serves the same
// users.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gallery-core/internal/infrastructure/config"
)

const defaultPingTimeout = 5 * time.Second

var (
	// ErrDisabled is returned by Connect when redis.enabled is false.
	ErrDisabled = errors.New("redis: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping did not succeed.
	ErrConnectionFailed = errors.New("redis: connection failed")
)

// Client wraps a go-redis client. It satisfies goredis.Cmdable through
// embedding, so it can be handed directly to the session store.
type Client struct {
	*goredis.Client
}

// NewClient builds a client from a redis:// URL without contacting the server.
func NewClient(rawURL string) (*Client, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Client{Client: goredis.NewClient(opts)}, nil
}

// Connect builds a client and verifies the server answers PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c, err := NewClient(cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := c.HealthCheck(ctx); err != nil {
		c.Client.Close() //nolint:errcheck // already returning the ping error
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// HealthCheck pings the server with a bounded timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
