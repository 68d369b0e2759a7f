package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

// RedisPublisher fans events out over Redis Pub/Sub as JSON.
type RedisPublisher struct {
	pub *redisclient.Publisher
}

func NewRedisPublisher(pub *redisclient.Publisher) *RedisPublisher {
	return &RedisPublisher{pub: pub}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.ID, err)
	}
	_, err = p.pub.PublishRaw(ctx, data)
	return err
}
