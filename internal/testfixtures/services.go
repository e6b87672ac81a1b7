package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/meetgrid/internal/application"
	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/persistence/memory"
	"github.com/example/meetgrid/internal/realtime"
)

// ServiceFactory assists tests with constructing application services using
// deterministic tokens and clocks.
type ServiceFactory struct {
	Clock  *Clock
	Tokens *TokenGenerator
	Events *EventRecorder
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:  NewClock(time.Time{}),
		Tokens: NewTokenGenerator(),
		Events: &EventRecorder{},
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// MeetingServiceDeps captures the overridable dependencies of a meeting
// service. Zero fields fall back to the factory defaults and an in-memory store.
type MeetingServiceDeps struct {
	Meetings  persistence.MeetingRepository
	Events    realtime.Publisher
	Limiter   application.OriginLimiter
	PublicURL string
	Logger    *slog.Logger
}

// NewMeetingService builds a meeting service wired to the factory's clock,
// tokens and event recorder.
func (f *ServiceFactory) NewMeetingService(deps MeetingServiceDeps) *application.MeetingService {
	meetings := deps.Meetings
	if meetings == nil {
		meetings = memory.New(f.Clock.NowFunc())
	}
	var events realtime.Publisher = f.Events
	if deps.Events != nil {
		events = deps.Events
	}
	publicURL := deps.PublicURL
	if publicURL == "" {
		publicURL = "http://meetgrid.test"
	}
	return application.NewMeetingService(application.MeetingServiceDeps{
		Meetings:  meetings,
		Tokens:    f.Tokens,
		Events:    events,
		Limiter:   deps.Limiter,
		Now:       f.Clock.NowFunc(),
		PublicURL: publicURL,
		Logger:    deps.Logger,
	})
}

// EventRecorder is a Publisher that keeps every event in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []realtime.Event
	Err    error
}

// Publish records event and returns Err.
func (r *EventRecorder) Publish(_ context.Context, event realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []realtime.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]realtime.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// Reset forgets recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
