package realtime

import "sync"

// sendBuffer is the per-connection outbound queue depth. A connection whose
// buffer is full drops further messages rather than blocking a broadcast.
const sendBuffer = 256

// Identity is the authenticated principal behind a connection, resolved once
// at connect time and immutable for the connection's lifetime.
type Identity struct {
	ID       string
	Username string
	Email    string
}

// Conn is one live socket. The hub and registry never touch the network;
// they enqueue framed messages on Send and a single writer goroutine owned
// by the transport drains them.
type Conn struct {
	ID       string
	Identity Identity

	send chan []byte

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}
}

func newConn(id string, identity Identity) *Conn {
	return &Conn{
		ID:       id,
		Identity: identity,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]struct{}),
	}
}

// Send exposes the outbound queue for the transport's writer goroutine.
// The channel is closed when the connection is dropped.
func (c *Conn) Send() <-chan []byte {
	return c.send
}

// enqueue queues a framed message without blocking. It reports false when
// the buffer is full or the connection is already closed. The closed check
// and the channel send happen under the same lock as closeSend, so a caller
// holding a stale connection snapshot cannot send on a closed channel.
func (c *Conn) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) addRoom(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[sessionID] = struct{}{}
}

// removeRoom reports whether the connection was subscribed to the room.
func (c *Conn) removeRoom(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[sessionID]
	delete(c.rooms, sessionID)
	return ok
}

func (c *Conn) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}
