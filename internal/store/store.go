// Package store implements the durable persistence layer over sqlite.
// It owns the entity types and all SQL; callers never see raw rows.
package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store provides query methods over the sqlite database.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Privacy types for sessions.
const (
	PrivacyPublic  = "public"
	PrivacyFriends = "friends"
	PrivacyPrivate = "private"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type FriendRequest struct {
	ID          string
	SenderID    string
	RecipientID string
	Status      string
	CreatedAt   time.Time
}

type SessionMember struct {
	UserID   string
	Username string
	JoinedAt time.Time
}

type Session struct {
	ID           string
	Name         string
	Description  string
	HostID       string
	HostUsername string
	Platform     string
	TrackID      string
	TrackName    string
	TrackArtist  string
	IsPlaying    bool
	PositionMs   int64
	PrivacyType  string
	ShareKey     string
	Members      []SessionMember
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasMember reports whether the given user is in the session's member list.
func (s *Session) HasMember(userID string) bool {
	for _, m := range s.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type SessionInvitation struct {
	ID        string
	SessionID string
	InviterID string
	InviteeID string
	Status    string
	CreatedAt time.Time
}

type SessionRequest struct {
	ID          string
	SessionID   string
	RequesterID string
	Status      string
	CreatedAt   time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	SessionID string
	IsRead    bool
	CreatedAt time.Time
}

type ChatMessage struct {
	ID        string
	SessionID string
	UserID    string
	Username  string
	Message   string
	CreatedAt time.Time
}

// PlaybackUpdate is a partial playback-state mutation. Nil fields are left
// untouched by UpdateSessionPlayback.
type PlaybackUpdate struct {
	IsPlaying   *bool
	PositionMs  *int64
	TrackID     *string
	TrackName   *string
	TrackArtist *string
}

// IsEmpty reports whether no field is set.
func (u PlaybackUpdate) IsEmpty() bool {
	return u.IsPlaying == nil && u.PositionMs == nil &&
		u.TrackID == nil && u.TrackName == nil && u.TrackArtist == nil
}

// SessionInfoUpdate is a partial update of session metadata (host-only REST path).
type SessionInfoUpdate struct {
	Name        *string
	Description *string
	Playback    PlaybackUpdate
}

// normalizePrivacy coerces the legacy is_private flag into a privacy type.
// Rows written before the privacy model carry a NULL privacy_type; everything
// past this read boundary sees only "public", "friends", or "private".
func normalizePrivacy(privacy sql.NullString, legacyPrivate bool) string {
	if privacy.Valid && privacy.String != "" {
		return privacy.String
	}
	if legacyPrivate {
		return PrivacyPrivate
	}
	return PrivacyPublic
}
