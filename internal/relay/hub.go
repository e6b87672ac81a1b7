// Package relay pushes bus events to websocket clients grouped in rooms, one
// room per meeting.
package relay

import (
	"sync"
)

// Hub tracks which clients are in which meeting room.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *Hub) join(c *client, meetingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	members := h.rooms[meetingID]
	if members == nil {
		members = make(map[*client]struct{})
		h.rooms[meetingID] = members
	}
	members[c] = struct{}{}
	c.rooms[meetingID] = struct{}{}
}

func (h *Hub) leave(c *client, meetingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, meetingID)
}

func (h *Hub) leaveLocked(c *client, meetingID string) {
	delete(c.rooms, meetingID)
	if members, ok := h.rooms[meetingID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, meetingID)
		}
	}
}

// remove takes the client out of every room and closes its send queue.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if c.closed {
		return
	}
	for meetingID := range c.rooms {
		h.leaveLocked(c, meetingID)
	}
	c.closed = true
	close(c.send)
}

// Broadcast queues msg for every member of the meeting's room. Members whose
// queue is full are disconnected.
func (h *Hub) Broadcast(meetingID string, msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.rooms[meetingID] {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.removeLocked(c)
		}
	}
	return delivered
}

// Members reports how many clients are in the meeting's room.
func (h *Hub) Members(meetingID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[meetingID])
}

// Rooms reports how many rooms have at least one member.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// reply queues a direct message to one client, dropping it when the queue is
// full or closed.
func (h *Hub) reply(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
