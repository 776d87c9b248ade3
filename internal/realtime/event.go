package realtime

import (
	"encoding/json"
	"time"

	"github.com/mdobak/go-xerrors"
)

// Event names carried in the wire envelope. Client events arrive over the
// socket; server events are pushed to subscribers or targeted connections.
const (
	// Client -> server.
	EventJoinSession   = "join_session"
	EventLeaveSession  = "leave_session"
	EventSessionUpdate = "session_update"
	EventChatMessage   = "chat:message"

	// Server -> client.
	EventConnected         = "connected"
	EventJoinedSession     = "joined_session"
	EventLeftSession       = "left_session"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventSessionUpdated    = "session_updated"
	EventSessionInvitation = "session_invitation"
	EventSessionRequest    = "session_request"
	EventNotification      = "notification"
	EventError             = "error"
)

// Envelope is the wire framing for every socket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinSessionEvent subscribes the connection to a session room.
type JoinSessionEvent struct {
	SessionID string `json:"session_id"`
}

// LeaveSessionEvent unsubscribes the connection from a session room.
type LeaveSessionEvent struct {
	SessionID string `json:"session_id"`
}

// SessionUpdateEvent is a partial playback mutation from the session host.
// Absent fields leave the corresponding stored value untouched.
type SessionUpdateEvent struct {
	SessionID   string  `json:"session_id"`
	IsPlaying   *bool   `json:"is_playing,omitempty"`
	PositionMs  *int64  `json:"position_ms,omitempty"`
	TrackID     *string `json:"track_id,omitempty"`
	TrackName   *string `json:"track_name,omitempty"`
	TrackArtist *string `json:"track_artist,omitempty"`
}

// ChatMessageEvent is an inbound chat line for a session room.
type ChatMessageEvent struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ConnectedEvent acknowledges a successful connect after identity resolution.
type ConnectedEvent struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// JoinedSessionEvent acknowledges a room subscription to the joiner only.
type JoinedSessionEvent struct {
	SessionID string `json:"session_id"`
}

// LeftSessionEvent acknowledges an explicit room unsubscribe to the leaver.
type LeftSessionEvent struct {
	SessionID string `json:"session_id"`
}

// UserJoinedEvent tells existing subscribers that a user entered the room.
type UserJoinedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

// UserLeftEvent tells remaining subscribers that a user left the room.
type UserLeftEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

// PlaybackUpdates is an accepted partial playback change, nested under the
// updates key of a session_updated broadcast.
type PlaybackUpdates struct {
	IsPlaying   *bool   `json:"is_playing,omitempty"`
	PositionMs  *int64  `json:"position_ms,omitempty"`
	TrackID     *string `json:"track_id,omitempty"`
	TrackName   *string `json:"track_name,omitempty"`
	TrackArtist *string `json:"track_artist,omitempty"`
}

// SessionUpdatedEvent carries exactly the accepted partial playback update
// to every subscriber of the room, sender included.
type SessionUpdatedEvent struct {
	SessionID string          `json:"session_id"`
	Updates   PlaybackUpdates `json:"updates"`
}

// ChatBroadcastEvent is a chat line fanned out to a room with the
// server-assigned timestamp.
type ChatBroadcastEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a rejected operation back to the originating connection.
type ErrorEvent struct {
	Message string `json:"message"`
}

// encodeEvent frames a payload in the wire envelope. Payload types are all
// plain structs, so marshalling only fails on programmer error.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.New("encode event payload", err)
	}
	raw, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, xerrors.New("encode event envelope", err)
	}
	return raw, nil
}

// mustEncodeEvent is encodeEvent for payloads built by the hub itself.
func mustEncodeEvent(event string, payload any) []byte {
	raw, err := encodeEvent(event, payload)
	if err != nil {
		panic(err)
	}
	return raw
}
