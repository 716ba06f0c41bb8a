package output

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chairgate/pkg/codec"
	"chairgate/pkg/model"
)

// Publisher is the subset of *redis.Client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes each record on a pub/sub channel. Nothing is stored;
// records published while no subscriber listens are gone.
type RedisSink struct {
	client  Publisher
	channel string
	codec   codec.Codec
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channel,
		codec:   codec.Default,
	}
}

func (r *RedisSink) Write(ctx context.Context, rec model.Record) error {
	payload, err := r.codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.channel, err)
	}
	return nil
}
