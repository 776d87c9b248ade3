package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tunetogether/backend/internal/logging"
	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/realtime"
	"github.com/tunetogether/backend/internal/store"
)

// InvitationHandler manages session invitations and join requests. Accepted
// state is written durably first; live connections of the affected user are
// then informed through the hub.
type InvitationHandler struct {
	store *store.Store
	hub   *realtime.Hub
}

func NewInvitationHandler(st *store.Store, hub *realtime.Hub) *InvitationHandler {
	return &InvitationHandler{store: st, hub: hub}
}

// Invite sends a session invitation from the host to a friend.
func (h *InvitationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	friendID := chi.URLParam(r, "friendId")

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "invite by non-host")
		writeError(w, http.StatusForbidden, "only host can invite")
		return
	}

	invitee, err := h.store.GetUserByID(r.Context(), friendID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load user", err)
		return
	}

	areFriends, err := h.store.AreFriends(r.Context(), user.ID, invitee.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check friendship", err)
		return
	}
	if !areFriends {
		writeError(w, http.StatusBadRequest, "can only invite friends")
		return
	}
	if sess.HasMember(invitee.ID) {
		writeError(w, http.StatusBadRequest, "user is already a member")
		return
	}

	pending, err := h.store.HasPendingInvitation(r.Context(), sess.ID, invitee.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check invitations", err)
		return
	}
	if pending {
		writeError(w, http.StatusBadRequest, "invitation already pending")
		return
	}

	inv := store.SessionInvitation{
		ID:        uuid.New().String(),
		SessionID: sess.ID,
		InviterID: user.ID,
		InviteeID: invitee.ID,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateSessionInvitation(r.Context(), inv); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create invitation", err)
		return
	}

	resp := models.SessionInvitationResponse{
		ID:              inv.ID,
		SessionID:       sess.ID,
		SessionName:     sess.Name,
		InviterID:       user.ID,
		InviterUsername: user.Username,
		InviteeID:       invitee.ID,
		Status:          inv.Status,
		CreatedAt:       inv.CreatedAt,
	}
	h.hub.NotifyUser(invitee.ID, realtime.EventSessionInvitation, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// ListInvitations returns the caller's pending invitations.
func (h *InvitationHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	invitations, err := h.store.ListPendingInvitations(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list invitations", err)
		return
	}

	resp := make([]models.SessionInvitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		item, err := h.invitationResponse(r.Context(), inv)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Session or inviter deleted since the invite; skip it.
				continue
			}
			writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load invitation", err)
			return
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AcceptInvitation accepts a pending invitation addressed to the caller and
// adds them to the session once the status change is durable.
func (h *InvitationHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	invitationID := chi.URLParam(r, "id")

	inv, err := h.store.GetPendingInvitation(r.Context(), invitationID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invitation not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load invitation", err)
		return
	}

	if err := h.store.UpdateInvitationStatus(r.Context(), inv.ID, "accepted"); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to accept invitation", err)
		return
	}
	if _, err := h.store.AddSessionMember(r.Context(), inv.SessionID, store.SessionMember{
		UserID:   user.ID,
		Username: user.Username,
		JoinedAt: time.Now().UTC(),
	}); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to join session", err)
		return
	}

	sess, err := h.store.GetSession(r.Context(), inv.SessionID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// RejectInvitation declines a pending invitation addressed to the caller.
func (h *InvitationHandler) RejectInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	invitationID := chi.URLParam(r, "id")

	inv, err := h.store.GetPendingInvitation(r.Context(), invitationID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invitation not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load invitation", err)
		return
	}

	if err := h.store.UpdateInvitationStatus(r.Context(), inv.ID, "rejected"); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to reject invitation", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "invitation rejected"})
}

// RequestJoin asks the host for membership in a public or friends-only session.
func (h *InvitationHandler) RequestJoin(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID == user.ID || sess.HasMember(user.ID) {
		writeError(w, http.StatusBadRequest, "already a member of this session")
		return
	}

	switch sess.PrivacyType {
	case store.PrivacyPublic:
	case store.PrivacyFriends:
		areFriends, err := h.store.AreFriends(r.Context(), user.ID, sess.HostID)
		if err != nil {
			writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check friendship", err)
			return
		}
		if !areFriends {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "join request denied")
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
	default:
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "join request on private session")
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	pending, err := h.store.HasPendingSessionRequest(r.Context(), sess.ID, user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check join requests", err)
		return
	}
	if pending {
		writeError(w, http.StatusBadRequest, "join request already pending")
		return
	}

	req := store.SessionRequest{
		ID:          uuid.New().String(),
		SessionID:   sess.ID,
		RequesterID: user.ID,
		Status:      "pending",
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateSessionRequest(r.Context(), req); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create join request", err)
		return
	}

	resp := models.SessionRequestResponse{
		ID:                req.ID,
		SessionID:         req.SessionID,
		RequesterID:       req.RequesterID,
		RequesterUsername: user.Username,
		Status:            req.Status,
		CreatedAt:         req.CreatedAt,
	}
	h.hub.NotifyUser(sess.HostID, realtime.EventSessionRequest, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// ListJoinRequests returns a session's pending join requests. Host only.
func (h *InvitationHandler) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "join request listing by non-host")
		writeError(w, http.StatusForbidden, "only host can view join requests")
		return
	}

	requests, err := h.store.ListPendingSessionRequests(r.Context(), sess.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list join requests", err)
		return
	}

	resp := make([]models.SessionRequestResponse, 0, len(requests))
	for _, req := range requests {
		requester, err := h.store.GetUserByID(r.Context(), req.RequesterID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load requester", err)
			return
		}
		resp = append(resp, models.SessionRequestResponse{
			ID:                req.ID,
			SessionID:         req.SessionID,
			RequesterID:       req.RequesterID,
			RequesterUsername: requester.Username,
			Status:            req.Status,
			CreatedAt:         req.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// AcceptJoinRequest admits the requester: membership is made durable, the
// requester gets a stored notification, and their live connections get a push.
func (h *InvitationHandler) AcceptJoinRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestId")

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "join request decision by non-host")
		writeError(w, http.StatusForbidden, "only host can accept join requests")
		return
	}

	req, err := h.store.GetPendingSessionRequest(r.Context(), requestID, sess.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "join request not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load join request", err)
		return
	}

	requester, err := h.store.GetUserByID(r.Context(), req.RequesterID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load requester", err)
		return
	}

	if err := h.store.UpdateSessionRequestStatus(r.Context(), req.ID, "accepted"); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to accept join request", err)
		return
	}
	if _, err := h.store.AddSessionMember(r.Context(), sess.ID, store.SessionMember{
		UserID:   requester.ID,
		Username: requester.Username,
		JoinedAt: time.Now().UTC(),
	}); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to add member", err)
		return
	}

	notification := store.Notification{
		ID:        uuid.New().String(),
		UserID:    requester.ID,
		Type:      "request_accepted",
		Title:     "Join request accepted",
		Message:   "Your request to join \"" + sess.Name + "\" was accepted",
		SessionID: sess.ID,
		IsRead:    false,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateNotification(r.Context(), notification); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create notification", err)
		return
	}
	h.hub.NotifyUser(requester.ID, realtime.EventNotification, notificationResponse(notification))

	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "join request accepted"})
}

// DeclineJoinRequest declines a pending join request. Host only.
func (h *InvitationHandler) DeclineJoinRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "requestId")

	sess, ok := loadSession(h.store, w, r)
	if !ok {
		return
	}
	if sess.HostID != user.ID {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventAccessDenied, "join request decision by non-host")
		writeError(w, http.StatusForbidden, "only host can decline join requests")
		return
	}

	req, err := h.store.GetPendingSessionRequest(r.Context(), requestID, sess.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "join request not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load join request", err)
		return
	}

	if err := h.store.UpdateSessionRequestStatus(r.Context(), req.ID, "declined"); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to decline join request", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "join request declined"})
}

func (h *InvitationHandler) invitationResponse(ctx context.Context, inv store.SessionInvitation) (models.SessionInvitationResponse, error) {
	sess, err := h.store.GetSession(ctx, inv.SessionID)
	if err != nil {
		return models.SessionInvitationResponse{}, err
	}
	inviter, err := h.store.GetUserByID(ctx, inv.InviterID)
	if err != nil {
		return models.SessionInvitationResponse{}, err
	}
	return models.SessionInvitationResponse{
		ID:              inv.ID,
		SessionID:       inv.SessionID,
		SessionName:     sess.Name,
		InviterID:       inv.InviterID,
		InviterUsername: inviter.Username,
		InviteeID:       inv.InviteeID,
		Status:          inv.Status,
		CreatedAt:       inv.CreatedAt,
	}, nil
}
