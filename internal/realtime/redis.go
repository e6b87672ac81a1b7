package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes events over a Redis pub/sub channel so that any number
// of API processes reach every relay process.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	buffer  int
	logger  *slog.Logger
}

// NewRedisBus returns a bus on Channel using client.
func NewRedisBus(client redis.UniversalClient, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:  client,
		channel: Channel,
		buffer:  DefaultBuffer,
		logger:  logger.With("component", "redis_bus"),
	}
}

// Publish encodes event and publishes it.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("realtime: publish %s: %w", event.Type, err)
	}
	return nil
}

// Subscribe confirms the subscription with the server before returning.
func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", b.channel, err)
	}

	sub := &redisSubscription{ps: ps, ch: make(chan Event, b.buffer)}
	go sub.pump(ctx, b.logger)
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Event
	once sync.Once
}

func (s *redisSubscription) pump(ctx context.Context, logger *slog.Logger) {
	defer close(s.ch)
	messages := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := Decode([]byte(msg.Payload))
			if err != nil {
				logger.WarnContext(ctx, "discarding malformed event", "error", err)
				continue
			}
			select {
			case s.ch <- event:
			default:
				logger.WarnContext(ctx, "subscriber queue full, event dropped",
					"event_type", event.Type, "meeting_id", event.MeetingID)
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}
