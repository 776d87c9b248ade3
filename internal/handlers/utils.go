// Package handlers implements the HTTP API over the store and the realtime hub.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunetogether/backend/internal/logging"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/store"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response for simple client errors.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response and logs the error with stack trace.
// Use this for server errors where you have an underlying error to log.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	// 401/403 are covered by security event logging
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return
	}

	if status >= 400 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)
	}
}

// loadSession fetches the session from the "id" URL parameter, writing the
// error response itself when the session does not exist.
func loadSession(st *store.Store, w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	sessionID := chi.URLParam(r, "id")
	sess, err := st.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return store.Session{}, false
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return store.Session{}, false
	}
	return sess, true
}

// canViewSession applies the privacy table for read access: host and members
// always, then public admits everyone and friends-only admits friends of the
// host.
func canViewSession(ctx context.Context, st *store.Store, userID string, sess *store.Session) (bool, error) {
	if sess.HostID == userID || sess.HasMember(userID) {
		return true, nil
	}
	switch sess.PrivacyType {
	case store.PrivacyPublic:
		return true, nil
	case store.PrivacyFriends:
		return st.AreFriends(ctx, userID, sess.HostID)
	default:
		return false, nil
	}
}

func userResponse(u store.User) models.UserResponse {
	return models.UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func sessionResponse(s store.Session) models.SessionResponse {
	members := make([]models.SessionMemberResponse, len(s.Members))
	for i, m := range s.Members {
		members[i] = models.SessionMemberResponse{
			UserID:   m.UserID,
			Username: m.Username,
			JoinedAt: m.JoinedAt,
		}
	}
	return models.SessionResponse{
		ID:           s.ID,
		Name:         s.Name,
		Description:  s.Description,
		HostID:       s.HostID,
		HostUsername: s.HostUsername,
		Platform:     s.Platform,
		TrackID:      s.TrackID,
		TrackName:    s.TrackName,
		TrackArtist:  s.TrackArtist,
		IsPlaying:    s.IsPlaying,
		PositionMs:   s.PositionMs,
		PrivacyType:  s.PrivacyType,
		ShareKey:     s.ShareKey,
		Members:      members,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func notificationResponse(n store.Notification) models.NotificationResponse {
	return models.NotificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		SessionID: n.SessionID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
