package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunetogether/backend/internal/logging"
	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/realtime"
	"github.com/tunetogether/backend/internal/services"
	"github.com/tunetogether/backend/internal/store"
)

const chatHistoryLimit = 50

// SessionHandler manages session lifecycle and membership over HTTP. Live
// subscribers are informed of accepted changes through the hub.
type SessionHandler struct {
	store     *store.Store
	hub       *realtime.Hub
	shareKeys *services.ShareKeyService
}

func NewSessionHandler(st *store.Store, hub *realtime.Hub, shareKeys *services.ShareKeyService) *SessionHandler {
	return &SessionHandler{store: st, hub: hub, shareKeys: shareKeys}
}

// Create starts a new session with the caller as host and first member.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req models.SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "name and platform are required")
		return
	}
	if req.PrivacyType == "" {
		req.PrivacyType = store.PrivacyPublic
	}
	switch req.PrivacyType {
	case store.PrivacyPublic, store.PrivacyFriends, store.PrivacyPrivate:
	default:
		writeError(w, http.StatusBadRequest, "privacy_type must be 'public', 'friends', or 'private'")
		return
	}

	shareKey, err := h.shareKeys.Generate(r.Context())
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create session", err)
		return
	}

	now := time.Now().UTC()
	sess := store.Session{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Description:  req.Description,
		HostID:       user.ID,
		HostUsername: user.Username,
		Platform:     req.Platform,
		TrackID:      req.TrackID,
		TrackName:    req.TrackName,
		TrackArtist:  req.TrackArtist,
		PrivacyType:  req.PrivacyType,
		ShareKey:     shareKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateSession(r.Context(), sess); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create session", err)
		return
	}

	created, err := h.store.GetSession(r.Context(), sess.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(created))
}

// List returns the sessions visible to the caller: their own, sessions they
// are a member of, public sessions, and friends-only sessions of friends.
// ?private_only=true restricts to sessions the caller hosts or belongs to.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	privateOnly := r.URL.Query().Get("private_only") == "true"

	friendIDs, err := h.store.ListFriendIDs(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list friends", err)
		return
	}

	sessions, err := h.store.ListSessionsFor(r.Context(), user.ID, friendIDs, privateOnly)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list sessions", err)
		return
	}

	resp := make([]models.SessionResponse, len(sessions))
	for i, s := range sessions {
		resp[i] = sessionResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single session, subject to the privacy model.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}

	visible, err := h.canView(r.Context(), user.ID, &sess)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check access", err)
		return
	}
	if !visible {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "session view denied")
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// Update applies a host's partial session change and fans it out to the room.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "session update by non-host")
		writeError(w, http.StatusForbidden, "only host can update session")
		return
	}

	var req models.SessionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := store.SessionInfoUpdate{
		Name:        req.Name,
		Description: req.Description,
		Playback: store.PlaybackUpdate{
			IsPlaying:   req.IsPlaying,
			PositionMs:  req.PositionMs,
			TrackID:     req.TrackID,
			TrackName:   req.TrackName,
			TrackArtist: req.TrackArtist,
		},
	}
	if upd.Name == nil && upd.Description == nil && upd.Playback.IsEmpty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := h.store.UpdateSessionInfo(r.Context(), sess.ID, upd, time.Now().UTC()); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to update session", err)
		return
	}

	if !upd.Playback.IsEmpty() {
		h.hub.BroadcastSessionUpdated(sess.ID, realtime.SessionUpdatedEvent{
			SessionID: sess.ID,
			Updates: realtime.PlaybackUpdates{
				IsPlaying:   req.IsPlaying,
				PositionMs:  req.PositionMs,
				TrackID:     req.TrackID,
				TrackName:   req.TrackName,
				TrackArtist: req.TrackArtist,
			},
		})
	}

	updated, err := h.store.GetSession(r.Context(), sess.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(updated))
}

// Delete removes a session. Host only.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "session delete by non-host")
		writeError(w, http.StatusForbidden, "only host can delete session")
		return
	}

	if err := h.store.DeleteSession(r.Context(), sess.ID); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to delete session", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "session deleted"})
}

// Join adds the caller to a session's member list, subject to the privacy model.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID == user.ID || sess.HasMember(user.ID) {
		writeError(w, http.StatusBadRequest, "already a member of this session")
		return
	}

	visible, err := h.canView(r.Context(), user.ID, &sess)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check access", err)
		return
	}
	if !visible {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "session join denied")
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	added, err := h.store.AddSessionMember(r.Context(), sess.ID, store.SessionMember{
		UserID:   user.ID,
		Username: user.Username,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to join session", err)
		return
	}
	if !added {
		writeError(w, http.StatusBadRequest, "already a member of this session")
		return
	}

	joined, err := h.store.GetSession(r.Context(), sess.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(joined))
}

// JoinByKey adds the caller to the session identified by a share key.
// Knowing the key stands in for the privacy check, like an invitation.
func (h *SessionHandler) JoinByKey(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req models.SessionJoinByKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ShareKey = strings.TrimSpace(req.ShareKey)
	if req.ShareKey == "" {
		writeError(w, http.StatusBadRequest, "share_key is required")
		return
	}

	sess, err := h.store.GetSessionByShareKey(r.Context(), req.ShareKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	if sess.HostID == user.ID || sess.HasMember(user.ID) {
		writeError(w, http.StatusBadRequest, "already a member of this session")
		return
	}

	added, err := h.store.AddSessionMember(r.Context(), sess.ID, store.SessionMember{
		UserID:   user.ID,
		Username: user.Username,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to join session", err)
		return
	}
	if !added {
		writeError(w, http.StatusBadRequest, "already a member of this session")
		return
	}

	joined, err := h.store.GetSession(r.Context(), sess.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(joined))
}

// Leave removes the caller from the member list. The host cannot leave.
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID == user.ID {
		writeError(w, http.StatusBadRequest, "host cannot leave the session")
		return
	}
	if !sess.HasMember(user.ID) {
		writeError(w, http.StatusBadRequest, "not a member of this session")
		return
	}

	if err := h.store.RemoveSessionMember(r.Context(), sess.ID, user.ID); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to leave session", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "left session"})
}

// Messages returns recent chat history for a session's members.
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID && !sess.HasMember(user.ID) {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "chat history access denied")
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	messages, err := h.store.ListSessionMessages(r.Context(), sess.ID, chatHistoryLimit)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load messages", err)
		return
	}

	resp := make([]models.ChatMessageResponse, len(messages))
	for i, m := range messages {
		resp[i] = models.ChatMessageResponse{
			ID:        m.ID,
			SessionID: m.SessionID,
			UserID:    m.UserID,
			Username:  m.Username,
			Message:   m.Message,
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) canView(ctx context.Context, userID string, sess *store.Session) (bool, error) {
	return canViewSession(ctx, h.store, userID, sess)
}
