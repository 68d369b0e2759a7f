package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher sends serialized events to a Pub/Sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Channel() string {
	return p.channel
}

// PublishRaw publishes data and returns the number of subscribers that received it.
func (p *Publisher) PublishRaw(ctx context.Context, data []byte) (int64, error) {
	n, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return n, nil
}
