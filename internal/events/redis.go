package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes messages with Redis PUBLISH.
type RedisPublisher struct {
	redis redis.UniversalClient
}

// NewRedisPublisher returns a Publisher backed by client.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, message string) error {
	if err := p.redis.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", channel, err)
	}
	return nil
}
