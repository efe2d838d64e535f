package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"escrowIndexer/internal/model"
)

const defaultChannel = "EVENT_JOB_STATUS_CHANGED"

// RedisPublisher publishes status changes on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisClient creates and verifies a Redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// PublishStatusChange implements Publisher.
func (p *RedisPublisher) PublishStatusChange(ctx context.Context, change model.StatusChange) error {
	payload, err := Message(change)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, payload).Err()
}

// Message renders the wire payload for a status change.
func Message(change model.StatusChange) ([]byte, error) {
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		model.StatusChange
	}{
		Type:         defaultChannel,
		StatusChange: change,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal status change: %w", err)
	}
	return payload, nil
}
