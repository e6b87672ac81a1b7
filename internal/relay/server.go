package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/example/meetgrid/internal/realtime"
)

// Options configures a relay Server.
type Options struct {
	// AllowedOrigins lists browser origins permitted to connect. Empty or "*"
	// allows any origin.
	AllowedOrigins []string
	// InboundRate bounds client messages per second, with InboundBurst on top.
	InboundRate  rate.Limit
	InboundBurst int
	Logger       *slog.Logger
}

const (
	defaultInboundRate  = rate.Limit(5)
	defaultInboundBurst = 10
)

// Server upgrades websocket connections and forwards bus events to rooms.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger
}

type update struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// NewServer returns a relay with an empty hub.
func NewServer(opts Options) *Server {
	if opts.InboundRate <= 0 {
		opts.InboundRate = defaultInboundRate
	}
	if opts.InboundBurst <= 0 {
		opts.InboundBurst = defaultInboundBurst
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:    NewHub(),
		opts:   opts,
		logger: logger.With("component", "relay"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub exposes the room registry.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.ContainsFunc(s.opts.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(strings.TrimRight(allowed, "/"), origin)
	})
}

// ServeHTTP upgrades the request and starts the client's pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	c := newClient(s.hub, conn, rate.NewLimiter(s.opts.InboundRate, s.opts.InboundBurst),
		s.logger.With("remote_addr", r.RemoteAddr))

	go c.writePump()
	go c.readPump(context.WithoutCancel(r.Context()))
}

// Run forwards every event from the bus to its meeting room until ctx ends or
// the subscription closes.
func (s *Server) Run(ctx context.Context, bus realtime.Subscriber) error {
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	s.logger.InfoContext(ctx, "relay subscribed to bus")
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("relay: bus subscription closed")
			}
			s.forward(ctx, event)
		}
	}
}

func (s *Server) forward(ctx context.Context, event realtime.Event) {
	msg, err := json.Marshal(update{Event: "update", Data: event.Payload()})
	if err != nil {
		s.logger.ErrorContext(ctx, "encode update", "error", err, "event_type", event.Type)
		return
	}
	n := s.hub.Broadcast(event.MeetingID, msg)
	s.logger.DebugContext(ctx, "event forwarded",
		"event_type", event.Type, "meeting_id", event.MeetingID, "recipients", n)
}
