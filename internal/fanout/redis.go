package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"solana-swap-feed/internal/domain"
)

// DefaultRedisChannel is the pub/sub channel notifications are published on.
const DefaultRedisChannel = "swaps:live"

// RedisPublisher publishes notifications on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher from a redis:// URL or a host:port address.
func NewRedisPublisher(addr, channel string) (*RedisPublisher, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: redis.NewClient(opts), channel: channel}, nil
}

// Compile-time interface check.
var _ Publisher = (*RedisPublisher)(nil)

// Name implements Publisher.
func (p *RedisPublisher) Name() string { return "redis" }

// Ping checks connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Publish sends n as JSON to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
