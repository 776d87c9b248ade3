package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tunetogether/backend/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler owns the WebSocket endpoint. Identity is resolved before the
// upgrade; a request without a valid credential never becomes a socket.
type Handler struct {
	hub       *Hub
	resolver  *IdentityResolver
	readLimit int64
	upgrader  websocket.Upgrader
}

func NewHandler(hub *Hub, resolver *IdentityResolver, readLimit int64) *Handler {
	return &Handler{
		hub:       hub,
		resolver:  resolver,
		readLimit: readLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients authenticate with the token itself; the
			// Origin header is not part of the trust model here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS authenticates the request, upgrades it, and runs the connection's
// read loop until the peer goes away.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.resolver.Resolve(ctx, CredentialFromRequest(r))
	if err != nil {
		logging.LogSecurityEvent(ctx, logging.SecurityEventSocketRejected, "socket connection rejected")
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogErrorWithStatus(ctx, http.StatusBadRequest, "websocket upgrade failed", err)
		return
	}

	c := newConn(uuid.New().String(), identity)
	h.hub.Registry().Register(c)

	slog.Info("socket connected",
		"conn_id", c.ID,
		"user_id", identity.ID,
		"username", identity.Username,
	)

	go h.writePump(ws, c)

	c.enqueue(mustEncodeEvent(EventConnected, ConnectedEvent{
		UserID:   identity.ID,
		Username: identity.Username,
	}))

	h.readPump(ws, c)
}

func (h *Handler) readPump(ws *websocket.Conn, c *Conn) {
	defer func() {
		h.hub.DropConnection(c)
		ws.Close()
		slog.Info("socket disconnected", "conn_id", c.ID, "user_id", c.Identity.ID)
	}()

	ws.SetReadLimit(h.readLimit)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("socket read error", "conn_id", c.ID, "error", err)
			}
			return
		}
		h.dispatch(c, raw)
	}
}

// dispatch decodes one inbound frame and routes it. Operation failures are
// reported to the sender as an error event; they never end the connection.
func (h *Handler) dispatch(c *Conn, raw []byte) {
	ctx := context.Background()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, ErrBadRequest)
		return
	}

	var err error
	switch env.Event {
	case EventJoinSession:
		var ev JoinSessionEvent
		if err = json.Unmarshal(env.Data, &ev); err != nil {
			err = ErrBadRequest
			break
		}
		err = h.hub.Subscribe(ctx, c, ev.SessionID)
	case EventLeaveSession:
		var ev LeaveSessionEvent
		if err = json.Unmarshal(env.Data, &ev); err != nil {
			err = ErrBadRequest
			break
		}
		err = h.hub.Unsubscribe(c, ev.SessionID, true)
	case EventSessionUpdate:
		var ev SessionUpdateEvent
		if err = json.Unmarshal(env.Data, &ev); err != nil {
			err = ErrBadRequest
			break
		}
		err = h.hub.PublishPlaybackUpdate(ctx, c, ev)
	case EventChatMessage:
		var ev ChatMessageEvent
		if err = json.Unmarshal(env.Data, &ev); err != nil {
			err = ErrBadRequest
			break
		}
		err = h.hub.PublishChat(ctx, c, ev)
	default:
		err = ErrBadRequest
	}

	if err != nil {
		h.sendError(c, err)
	}
}

// sendError maps an operation failure to the client-facing error event,
// hiding internal detail behind the sentinel messages.
func (h *Handler) sendError(c *Conn, err error) {
	msg := ErrCollaboratorUnavailable.Error()
	for _, sentinel := range []error{
		ErrBadRequest, ErrSessionNotFound, ErrAccessDenied,
		ErrNotHost, ErrCollaboratorUnavailable,
	} {
		if errors.Is(err, sentinel) {
			msg = sentinel.Error()
			break
		}
	}
	c.enqueue(mustEncodeEvent(EventError, ErrorEvent{Message: msg}))
}

func (h *Handler) writePump(ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
