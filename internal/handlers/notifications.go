package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/store"
)

// NotificationHandler serves the durable notification feed, the offline
// counterpart to the hub's targeted pushes.
type NotificationHandler struct {
	store *store.Store
}

func NewNotificationHandler(st *store.Store) *NotificationHandler {
	return &NotificationHandler{store: st}
}

// List returns the caller's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	notifications, err := h.store.ListNotifications(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list notifications", err)
		return
	}
	h.write(w, notifications)
}

// ListUnread returns only unread notifications.
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	notifications, err := h.store.ListUnreadNotifications(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list notifications", err)
		return
	}
	h.write(w, notifications)
}

// MarkRead marks a single notification of the caller as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	notificationID := chi.URLParam(r, "id")

	err := h.store.MarkNotificationRead(r.Context(), notificationID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to mark notification read", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "notification marked read"})
}

// MarkAllRead marks every notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	if err := h.store.MarkAllNotificationsRead(r.Context(), user.ID); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to mark notifications read", err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "all notifications marked read"})
}

func (h *NotificationHandler) write(w http.ResponseWriter, notifications []store.Notification) {
	resp := make([]models.NotificationResponse, len(notifications))
	for i, n := range notifications {
		resp[i] = notificationResponse(n)
	}
	writeJSON(w, http.StatusOK, resp)
}
