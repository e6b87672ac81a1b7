package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// LocalBus fans events out to subscribers in the same process. A subscriber
// whose queue is full misses the event rather than stalling publishers.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[*localSubscription]struct{}
	buffer int
	logger *slog.Logger
}

// NewLocalBus returns an in-process bus. buffer <= 0 selects DefaultBuffer.
func NewLocalBus(buffer int, logger *slog.Logger) *LocalBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		subs:   make(map[*localSubscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "local_bus"),
	}
}

// Publish delivers event to every current subscriber without blocking.
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.logger.WarnContext(ctx, "subscriber queue full, event dropped",
				"event_type", event.Type, "meeting_id", event.MeetingID)
		}
	}
	return nil
}

// Subscribe registers a new subscriber. It is closed when ctx ends.
func (b *LocalBus) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &localSubscription{bus: b, ch: make(chan Event, b.buffer), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers reports how many subscriptions are open.
func (b *LocalBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type localSubscription struct {
	bus  *LocalBus
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *localSubscription) Events() <-chan Event { return s.ch }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
		close(s.ch)
	})
	return nil
}
