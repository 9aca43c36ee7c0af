package relay

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	redisstore "github.com/gosuda/pinboard/internal/store/redis"
)

// Broker is the pub/sub transport behind RedisBridge.
// *redisstore.PubSub satisfies this interface.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	PSubscribe(ctx context.Context, pattern string) (<-chan []byte, func(), error)
}

// RedisBridge fans broadcasts out to other relay instances over Redis
// pub/sub. Publishes are queued and sent by one goroutine so frames keep
// their order; a full queue drops the frame.
type RedisBridge struct {
	broker Broker
	queue  chan RemoteMessage
}

// NewRedisBridge starts the publisher goroutine, which runs until ctx is
// cancelled.
func NewRedisBridge(ctx context.Context, broker Broker, buffer int) *RedisBridge {
	if buffer < 1 {
		buffer = 1
	}
	b := &RedisBridge{
		broker: broker,
		queue:  make(chan RemoteMessage, buffer),
	}
	go b.publishLoop(ctx)
	return b
}

// Publish queues msg for the publisher goroutine, dropping it when the
// queue is full.
func (b *RedisBridge) Publish(msg RemoteMessage) {
	select {
	case b.queue <- msg:
	default:
		log.Debug().Str("room", msg.Room).Msg("relay: bridge queue full, dropping frame")
	}
}

// Subscribe streams messages published by every instance on room channels.
func (b *RedisBridge) Subscribe(ctx context.Context) (<-chan RemoteMessage, error) {
	raw, cleanup, err := b.broker.PSubscribe(ctx, redisstore.RoomPattern())
	if err != nil {
		return nil, fmt.Errorf("relay.RedisBridge.Subscribe: %w", err)
	}

	out := make(chan RemoteMessage, 64)
	go func() {
		defer close(out)
		defer cleanup()
		for payload := range raw {
			var msg RemoteMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Warn().Err(err).Msg("relay: undecodable bridge message")
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *RedisBridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("relay: encode bridge message")
				continue
			}
			if err := b.broker.Publish(ctx, redisstore.RoomChannel(msg.Room), payload); err != nil {
				log.Warn().Err(err).Str("room", msg.Room).Msg("relay: bridge publish failed")
			}
		}
	}
}
