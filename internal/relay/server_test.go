package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/meetgrid/internal/realtime"
	"github.com/example/meetgrid/internal/relay"
)

type message struct {
	Event     string         `json:"event"`
	MeetingID string         `json:"meetingId"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
}

func startRelay(t *testing.T, opts relay.Options) (*httptest.Server, *realtime.LocalBus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Logger = logger
	srv := relay.NewServer(opts)
	bus := realtime.NewLocalBus(0, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, bus) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		require.NoError(t, <-done)
	})
	return ts, bus
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, action, meetingID string) message {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"action": action, "meetingId": meetingID}))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestRelayDeliversOnlyToJoinedRoom(t *testing.T) {
	ts, bus := startRelay(t, relay.Options{})

	member := dial(t, ts, nil)
	outsider := dial(t, ts, nil)

	assert.Equal(t, message{Event: "joined", MeetingID: "meetingAAA"}, send(t, member, "join", "meetingAAA"))
	assert.Equal(t, message{Event: "joined", MeetingID: "meetingBBB"}, send(t, outsider, "join", "meetingBBB"))

	require.NoError(t, bus.Publish(context.Background(), realtime.Event{
		Type:      realtime.SlotsUpdated,
		MeetingID: "meetingAAA",
		UserID:    "00000000-0000-4000-8000-000000000001",
		Slots:     []string{"d0_h9"},
	}))

	got := read(t, member)
	assert.Equal(t, "update", got.Event)
	assert.Equal(t, "SLOTS_UPDATED", got.Data["type"])
	assert.Equal(t, "00000000-0000-4000-8000-000000000001", got.Data["userId"])
	assert.Equal(t, []any{"d0_h9"}, got.Data["slots"])
	assert.NotContains(t, got.Data, "meetingId")

	require.NoError(t, outsider.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := outsider.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestRelayLeaveStopsDelivery(t *testing.T) {
	ts, bus := startRelay(t, relay.Options{})
	conn := dial(t, ts, nil)

	send(t, conn, "join", "meetingAAA")
	assert.Equal(t, message{Event: "left", MeetingID: "meetingAAA"}, send(t, conn, "leave", "meetingAAA"))
	send(t, conn, "join", "meetingCCC")

	require.NoError(t, bus.Publish(context.Background(), realtime.Event{Type: realtime.MeetingFrozen, MeetingID: "meetingAAA"}))
	require.NoError(t, bus.Publish(context.Background(), realtime.Event{Type: realtime.MeetingUnfrozen, MeetingID: "meetingCCC"}))

	got := read(t, conn)
	assert.Equal(t, "MEETING_UNFROZEN", got.Data["type"])
}

func TestRelayRejectsMalformedActions(t *testing.T) {
	ts, _ := startRelay(t, relay.Options{})
	conn := dial(t, ts, nil)

	assert.Equal(t, "invalid meetingId", send(t, conn, "join", "../etc").Message)
	assert.Equal(t, "unknown action", send(t, conn, "dance", "meetingAAA").Message)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "invalid message", read(t, conn).Message)
}

func TestRelayOriginCheck(t *testing.T) {
	ts, _ := startRelay(t, relay.Options{AllowedOrigins: []string{"https://app.example"}})
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, ts, http.Header{"Origin": {"https://app.example"}})
	assert.Equal(t, "joined", send(t, conn, "join", "meetingAAA").Event)
}

func TestUpdateEnvelopeShape(t *testing.T) {
	payload := realtime.Event{Type: realtime.GuestRequested, MeetingID: "meetingAAA", RequestID: "req_0000000000000001", Name: "Dana"}.Payload()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"GUEST_REQUEST","requestId":"req_0000000000000001","name":"Dana"}`, string(raw))
}
