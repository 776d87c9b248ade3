package handlers

import (
	"net/http"
	"strings"

	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/store"
)

const searchResultLimit = 10

// UserHandler serves user discovery endpoints.
type UserHandler struct {
	users *store.Store
}

func NewUserHandler(users *store.Store) *UserHandler {
	return &UserHandler{users: users}
}

// Search finds users by username or email fragment, excluding the caller.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if len(query) < 2 {
		writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}

	results, err := h.users.SearchUsers(r.Context(), query, user.ID, searchResultLimit)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to search users", err)
		return
	}

	resp := make([]models.UserResponse, len(results))
	for i, u := range results {
		resp[i] = userResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}
