package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/store"
)

// FriendHandler manages the social graph: friend requests and friendships.
type FriendHandler struct {
	store *store.Store
}

func NewFriendHandler(st *store.Store) *FriendHandler {
	return &FriendHandler{store: st}
}

// CreateRequest sends a friend request addressed by id, email, or username.
func (h *FriendHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req models.FriendRequestCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recipient, err := h.resolveRecipient(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if errors.Is(err, errNoRecipient) {
			writeError(w, http.StatusBadRequest, "recipient_id, recipient_email, or recipient_username is required")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to resolve recipient", err)
		return
	}

	if recipient.ID == user.ID {
		writeError(w, http.StatusBadRequest, "cannot send a friend request to yourself")
		return
	}

	alreadyFriends, err := h.store.AreFriends(r.Context(), user.ID, recipient.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check friendship", err)
		return
	}
	if alreadyFriends {
		writeError(w, http.StatusBadRequest, "already friends")
		return
	}

	exists, err := h.store.FriendRequestExists(r.Context(), user.ID, recipient.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check friend request", err)
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "friend request already exists")
		return
	}

	fr := store.FriendRequest{
		ID:          uuid.New().String(),
		SenderID:    user.ID,
		RecipientID: recipient.ID,
		Status:      "pending",
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateFriendRequest(r.Context(), fr); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create friend request", err)
		return
	}

	resp, err := h.friendRequestResponse(r.Context(), fr)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load friend request", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

var errNoRecipient = errors.New("no recipient given")

func (h *FriendHandler) resolveRecipient(ctx context.Context, req models.FriendRequestCreate) (store.User, error) {
	switch {
	case req.RecipientID != "":
		return h.store.GetUserByID(ctx, req.RecipientID)
	case req.RecipientEmail != "":
		return h.store.GetUserByEmail(ctx, req.RecipientEmail)
	case req.RecipientUsername != "":
		return h.store.GetUserByUsername(ctx, req.RecipientUsername)
	default:
		return store.User{}, errNoRecipient
	}
}

// ListRequests returns the caller's pending friend requests, sent and received.
func (h *FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	requests, err := h.store.ListPendingFriendRequests(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list friend requests", err)
		return
	}

	resp := make([]models.FriendRequestResponse, 0, len(requests))
	for _, fr := range requests {
		item, err := h.friendRequestResponse(r.Context(), fr)
		if err != nil {
			writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load friend request", err)
			return
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AcceptRequest accepts a pending request addressed to the caller and writes
// both directions of the friendship edge.
func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "id")

	fr, err := h.store.GetPendingFriendRequest(r.Context(), requestID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "friend request not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load friend request", err)
		return
	}

	if err := h.store.UpdateFriendRequestStatus(r.Context(), fr.ID, "accepted"); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to accept friend request", err)
		return
	}
	if err := h.store.CreateFriendship(r.Context(), fr.SenderID, fr.RecipientID); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create friendship", err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "friend request accepted"})
}

// RejectRequest rejects a pending request addressed to the caller.
func (h *FriendHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	requestID := chi.URLParam(r, "id")

	err := h.store.RejectPendingFriendRequest(r.Context(), requestID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "friend request not found")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to reject friend request", err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "friend request rejected"})
}

// List returns the caller's friends.
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	friends, err := h.store.ListFriends(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to list friends", err)
		return
	}

	resp := make([]models.FriendResponse, len(friends))
	for i, f := range friends {
		resp[i] = models.FriendResponse{
			ID:        f.ID,
			Username:  f.Username,
			Email:     f.Email,
			CreatedAt: f.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Remove dissolves a friendship in both directions.
func (h *FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	friendID := chi.URLParam(r, "id")

	areFriends, err := h.store.AreFriends(r.Context(), user.ID, friendID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check friendship", err)
		return
	}
	if !areFriends {
		writeError(w, http.StatusNotFound, "friend not found")
		return
	}

	if err := h.store.RemoveFriendship(r.Context(), user.ID, friendID); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to remove friend", err)
		return
	}

	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "friend removed"})
}

func (h *FriendHandler) friendRequestResponse(ctx context.Context, fr store.FriendRequest) (models.FriendRequestResponse, error) {
	sender, err := h.store.GetUserByID(ctx, fr.SenderID)
	if err != nil {
		return models.FriendRequestResponse{}, err
	}
	recipient, err := h.store.GetUserByID(ctx, fr.RecipientID)
	if err != nil {
		return models.FriendRequestResponse{}, err
	}
	return models.FriendRequestResponse{
		ID:                fr.ID,
		SenderID:          fr.SenderID,
		SenderUsername:    sender.Username,
		SenderEmail:       sender.Email,
		RecipientID:       fr.RecipientID,
		RecipientUsername: recipient.Username,
		RecipientEmail:    recipient.Email,
		Status:            fr.Status,
		CreatedAt:         fr.CreatedAt,
	}, nil
}
