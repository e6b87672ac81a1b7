package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/example/meetgrid/internal/token"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 64
)

type clientAction struct {
	Action    string `json:"action"`
	MeetingID string `json:"meetingId"`
}

type ack struct {
	Event     string `json:"event"`
	MeetingID string `json:"meetingId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// client is one websocket connection. rooms and closed are guarded by the
// hub's mutex.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	inbound *rate.Limiter
	logger  *slog.Logger

	rooms  map[string]struct{}
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, inbound *rate.Limiter, logger *slog.Logger) *client {
	return &client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		inbound: inbound,
		logger:  logger,
		rooms:   make(map[string]struct{}),
	}
}

// readPump handles join and leave actions until the connection ends, then
// removes the client from every room.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WarnContext(ctx, "unexpected close", "error", err)
			}
			return
		}
		if !c.inbound.Allow() {
			c.logger.WarnContext(ctx, "inbound message rate exceeded")
			c.replyError("rate limited")
			continue
		}

		var action clientAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.replyError("invalid message")
			continue
		}
		if !token.ValidMeetingID(action.MeetingID) {
			c.replyError("invalid meetingId")
			continue
		}

		switch action.Action {
		case "join":
			c.hub.join(c, action.MeetingID)
			c.reply(ack{Event: "joined", MeetingID: action.MeetingID})
		case "leave":
			c.hub.leave(c, action.MeetingID)
			c.reply(ack{Event: "left", MeetingID: action.MeetingID})
		default:
			c.replyError("unknown action")
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) reply(a ack) {
	msg, err := json.Marshal(a)
	if err != nil {
		return
	}
	c.hub.reply(c, msg)
}

func (c *client) replyError(message string) {
	c.reply(ack{Event: "error", Message: message})
}
