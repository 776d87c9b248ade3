package models

import "time"

// Auth
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Friends
type FriendRequestCreate struct {
	RecipientID       string `json:"recipient_id,omitempty"`
	RecipientEmail    string `json:"recipient_email,omitempty"`
	RecipientUsername string `json:"recipient_username,omitempty"`
}

type FriendRequestResponse struct {
	ID                string    `json:"id"`
	SenderID          string    `json:"sender_id"`
	SenderUsername    string    `json:"sender_username"`
	SenderEmail       string    `json:"sender_email"`
	RecipientID       string    `json:"recipient_id"`
	RecipientUsername string    `json:"recipient_username"`
	RecipientEmail    string    `json:"recipient_email"`
	Status            string    `json:"status"` // "pending", "accepted", "rejected"
	CreatedAt         time.Time `json:"created_at"`
}

type FriendResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Sessions
type SessionCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Platform    string `json:"platform"`
	TrackID     string `json:"track_id,omitempty"`
	TrackName   string `json:"track_name,omitempty"`
	TrackArtist string `json:"track_artist,omitempty"`
	PrivacyType string `json:"privacy_type,omitempty"` // "public", "friends", "private"
}

type SessionJoinByKeyRequest struct {
	ShareKey string `json:"share_key"`
}

type SessionUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	TrackID     *string `json:"track_id,omitempty"`
	TrackName   *string `json:"track_name,omitempty"`
	TrackArtist *string `json:"track_artist,omitempty"`
	IsPlaying   *bool   `json:"is_playing,omitempty"`
	PositionMs  *int64  `json:"position_ms,omitempty"`
}

type SessionMemberResponse struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type SessionResponse struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	HostID       string                  `json:"host_id"`
	HostUsername string                  `json:"host_username"`
	Platform     string                  `json:"platform"`
	TrackID      string                  `json:"track_id,omitempty"`
	TrackName    string                  `json:"track_name,omitempty"`
	TrackArtist  string                  `json:"track_artist,omitempty"`
	IsPlaying    bool                    `json:"is_playing"`
	PositionMs   int64                   `json:"position_ms"`
	PrivacyType  string                  `json:"privacy_type"`
	ShareKey     string                  `json:"share_key,omitempty"`
	Members      []SessionMemberResponse `json:"members"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// Session invitations
type SessionInvitationResponse struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	SessionName     string    `json:"session_name"`
	InviterID       string    `json:"inviter_id"`
	InviterUsername string    `json:"inviter_username"`
	InviteeID       string    `json:"invitee_id"`
	Status          string    `json:"status"` // "pending", "accepted", "rejected"
	CreatedAt       time.Time `json:"created_at"`
}

// Session join requests
type SessionRequestResponse struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	RequesterID       string    `json:"requester_id"`
	RequesterUsername string    `json:"requester_username"`
	Status            string    `json:"status"` // "pending", "accepted", "declined"
	CreatedAt         time.Time `json:"created_at"`
}

// Notifications
type NotificationResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"` // "request_accepted", "invitation", ...
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat history
type ChatMessageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Generic responses
type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
