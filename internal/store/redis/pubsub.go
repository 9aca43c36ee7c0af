package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const roomPrefix = "room:"

// PubSub wraps a Redis client for relay fan-out.
type PubSub struct {
	client *redis.Client
}

// New connects to Redis and pings it.
func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

// Publish sends payload on channel.
func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// PSubscribe listens on every channel matching pattern.
func (ps *PubSub) PSubscribe(ctx context.Context, pattern string) (<-chan []byte, func(), error) {
	sub := ps.client.PSubscribe(ctx, pattern)
	return ps.stream(ctx, sub, "redis.PubSub.PSubscribe")
}

func (ps *PubSub) stream(ctx context.Context, sub *redis.PubSub, caller string) (<-chan []byte, func(), error) {
	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("%s: receive confirmation: %w", caller, err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// RoomChannel returns the Redis channel name for a board room.
func RoomChannel(roomID string) string {
	return roomPrefix + roomID
}

// RoomPattern matches every room channel.
func RoomPattern() string {
	return roomPrefix + "*"
}
