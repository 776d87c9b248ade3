package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
	"github.com/tunetogether/backend/internal/store"
)

// SessionStore is the durable state the hub reads and writes. Playback and
// chat mutations are persisted before any subscriber sees them.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (store.Session, error)
	UpdateSessionPlayback(ctx context.Context, sessionID string, upd store.PlaybackUpdate, at time.Time) error
	CreateChatMessage(ctx context.Context, m store.ChatMessage) error
}

// Hub routes events between connections and session rooms. Each room has its
// own mutex held across the durable write and the broadcast enqueue, so all
// subscribers observe a room's mutations in the order they were accepted
// while distinct rooms proceed concurrently.
type Hub struct {
	sessions SessionStore
	auth     *Authorizer
	registry *Registry

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	mu      sync.Mutex
	conns   map[*Conn]struct{}
	defunct bool
}

func NewHub(sessions SessionStore, auth *Authorizer, registry *Registry) *Hub {
	return &Hub{
		sessions: sessions,
		auth:     auth,
		registry: registry,
		rooms:    make(map[string]*room),
	}
}

// Registry exposes the connection registry for the transport layer.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) room(sessionID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[sessionID]
	if r == nil {
		r = &room{conns: make(map[*Conn]struct{})}
		h.rooms[sessionID] = r
	}
	return r
}

// withRoom runs fn with the room's lock held. A room marked defunct was
// deleted between lookup and lock, so the lookup is retried.
func (h *Hub) withRoom(sessionID string, fn func(*room)) {
	for {
		r := h.room(sessionID)
		r.mu.Lock()
		if r.defunct {
			r.mu.Unlock()
			continue
		}
		fn(r)
		r.mu.Unlock()
		return
	}
}

// removeFromRoom drops the connection from the room, runs fn with the lock
// still held if the connection was actually subscribed, and garbage-collects
// the room once empty.
func (h *Hub) removeFromRoom(sessionID string, c *Conn, fn func(*room)) {
	var target *room
	h.withRoom(sessionID, func(r *room) {
		if _, ok := r.conns[c]; !ok {
			return
		}
		delete(r.conns, c)
		c.removeRoom(sessionID)
		if fn != nil {
			fn(r)
		}
		if len(r.conns) == 0 {
			r.defunct = true
			target = r
		}
	})
	if target != nil {
		h.mu.Lock()
		if h.rooms[sessionID] == target {
			delete(h.rooms, sessionID)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) lookupSession(ctx context.Context, sessionID string) (store.Session, error) {
	sess, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Session{}, ErrSessionNotFound
		}
		return store.Session{}, xerrors.New(ErrCollaboratorUnavailable, err)
	}
	return sess, nil
}

// Subscribe authorizes the user against the session's privacy model and adds
// the connection to the room. Existing subscribers get user_joined; the
// joiner alone gets the joined_session acknowledgement.
func (h *Hub) Subscribe(ctx context.Context, c *Conn, sessionID string) error {
	if sessionID == "" {
		return ErrBadRequest
	}
	sess, err := h.lookupSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := h.auth.Authorize(ctx, c.Identity.ID, &sess, ActionSubscribe); err != nil {
		return err
	}

	joined := mustEncodeEvent(EventUserJoined, UserJoinedEvent{
		SessionID: sessionID,
		UserID:    c.Identity.ID,
		Username:  c.Identity.Username,
	})
	ack := mustEncodeEvent(EventJoinedSession, JoinedSessionEvent{SessionID: sessionID})

	h.withRoom(sessionID, func(r *room) {
		for other := range r.conns {
			if other != c {
				other.enqueue(joined)
			}
		}
		r.conns[c] = struct{}{}
		c.addRoom(sessionID)
		c.enqueue(ack)
	})

	slog.Debug("room subscribe",
		"session_id", sessionID,
		"user_id", c.Identity.ID,
		"conn_id", c.ID,
	)
	return nil
}

// Unsubscribe removes the connection from the room and tells the remaining
// subscribers. The leaver gets left_session only on an explicit leave.
func (h *Hub) Unsubscribe(c *Conn, sessionID string, ack bool) error {
	if sessionID == "" {
		return ErrBadRequest
	}
	left := mustEncodeEvent(EventUserLeft, UserLeftEvent{
		SessionID: sessionID,
		UserID:    c.Identity.ID,
		Username:  c.Identity.Username,
	})
	h.removeFromRoom(sessionID, c, func(r *room) {
		for other := range r.conns {
			other.enqueue(left)
		}
	})
	if ack {
		c.enqueue(mustEncodeEvent(EventLeftSession, LeftSessionEvent{SessionID: sessionID}))
	}
	return nil
}

// PublishPlaybackUpdate persists a host's partial playback mutation and then
// broadcasts exactly the accepted fields to the whole room, sender included.
// The room lock is held across both steps.
func (h *Hub) PublishPlaybackUpdate(ctx context.Context, c *Conn, ev SessionUpdateEvent) error {
	if ev.SessionID == "" {
		return ErrBadRequest
	}
	upd := store.PlaybackUpdate{
		IsPlaying:   ev.IsPlaying,
		PositionMs:  ev.PositionMs,
		TrackID:     ev.TrackID,
		TrackName:   ev.TrackName,
		TrackArtist: ev.TrackArtist,
	}
	if upd.IsEmpty() {
		return ErrBadRequest
	}
	sess, err := h.lookupSession(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	if err := h.auth.Authorize(ctx, c.Identity.ID, &sess, ActionMutatePlayback); err != nil {
		return err
	}

	msg := mustEncodeEvent(EventSessionUpdated, SessionUpdatedEvent{
		SessionID: ev.SessionID,
		Updates: PlaybackUpdates{
			IsPlaying:   ev.IsPlaying,
			PositionMs:  ev.PositionMs,
			TrackID:     ev.TrackID,
			TrackName:   ev.TrackName,
			TrackArtist: ev.TrackArtist,
		},
	})

	var opErr error
	h.withRoom(ev.SessionID, func(r *room) {
		if err := h.sessions.UpdateSessionPlayback(ctx, ev.SessionID, upd, time.Now().UTC()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				opErr = ErrSessionNotFound
			} else {
				opErr = xerrors.New(ErrCollaboratorUnavailable, err)
			}
			return
		}
		for other := range r.conns {
			other.enqueue(msg)
		}
	})
	return opErr
}

// PublishChat persists a chat line with a server-assigned identity and
// timestamp, then broadcasts it to the room including the sender.
func (h *Hub) PublishChat(ctx context.Context, c *Conn, ev ChatMessageEvent) error {
	if ev.SessionID == "" || strings.TrimSpace(ev.Message) == "" {
		return ErrBadRequest
	}
	sess, err := h.lookupSession(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	if err := h.auth.Authorize(ctx, c.Identity.ID, &sess, ActionSendChat); err != nil {
		return err
	}

	record := store.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: ev.SessionID,
		UserID:    c.Identity.ID,
		Username:  c.Identity.Username,
		Message:   ev.Message,
		CreatedAt: time.Now().UTC(),
	}
	msg := mustEncodeEvent(EventChatMessage, ChatBroadcastEvent{
		SessionID: record.SessionID,
		UserID:    record.UserID,
		Username:  record.Username,
		Message:   record.Message,
		Timestamp: record.CreatedAt,
	})

	var opErr error
	h.withRoom(ev.SessionID, func(r *room) {
		if err := h.sessions.CreateChatMessage(ctx, record); err != nil {
			opErr = xerrors.New(ErrCollaboratorUnavailable, err)
			return
		}
		for other := range r.conns {
			other.enqueue(msg)
		}
	})
	return opErr
}

// BroadcastSessionUpdated fans a session change accepted over HTTP out to the
// room's current subscribers. No room is created when nobody is subscribed.
func (h *Hub) BroadcastSessionUpdated(sessionID string, ev SessionUpdatedEvent) {
	h.mu.Lock()
	r := h.rooms[sessionID]
	h.mu.Unlock()
	if r == nil {
		return
	}
	msg := mustEncodeEvent(EventSessionUpdated, ev)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defunct {
		return
	}
	for c := range r.conns {
		c.enqueue(msg)
	}
}

// NotifyUser pushes a targeted event to every live connection of a user.
// Users with no open connection are silently skipped.
func (h *Hub) NotifyUser(userID, event string, payload any) {
	conns := h.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		return
	}
	msg, err := encodeEvent(event, payload)
	if err != nil {
		slog.Error("encode targeted event", "error", err, "event", event)
		return
	}
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// DropConnection tears down a disconnected socket: the connection leaves
// every subscribed room with a user_left broadcast but no personal
// acknowledgement, and the registry entry is removed.
func (h *Hub) DropConnection(c *Conn) {
	for _, sessionID := range c.roomList() {
		left := mustEncodeEvent(EventUserLeft, UserLeftEvent{
			SessionID: sessionID,
			UserID:    c.Identity.ID,
			Username:  c.Identity.Username,
		})
		h.removeFromRoom(sessionID, c, func(r *room) {
			for other := range r.conns {
				other.enqueue(left)
			}
		})
	}
	h.registry.Unregister(c.ID)
	c.closeSend()
}

// RoomSize reports the number of subscribers in a room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.Lock()
	r := h.rooms[sessionID]
	h.mu.Unlock()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
