package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tunetogether/backend/internal/crypto"
	"github.com/tunetogether/backend/internal/logging"
	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/models"
	"github.com/tunetogether/backend/internal/services"
	"github.com/tunetogether/backend/internal/store"
)

// AuthHandler manages account lifecycle: signup, login, logout, and the
// current-user endpoint.
type AuthHandler struct {
	users         *store.Store
	authService   *services.AuthService
	tokenDuration time.Duration
}

func NewAuthHandler(users *store.Store, authService *services.AuthService, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{
		users:         users,
		authService:   authService,
		tokenDuration: tokenDuration,
	}
}

// Signup registers a new account and returns a bearer token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	exists, err := h.users.UserExists(r.Context(), req.Email, req.Username)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to check existing users", err)
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "email or username already registered")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to hash password", err)
		return
	}

	user := store.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to create user", err)
		return
	}

	token, err := h.authService.GenerateToken(user.Email)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to generate token", err)
		return
	}

	h.setTokenCookie(w, token)
	writeJSON(w, http.StatusCreated, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Login verifies credentials and issues a bearer token, also set as an
// httpOnly cookie for browser clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadLogin, "login with unknown email")
			writeError(w, http.StatusUnauthorized, "incorrect email or password")
			return
		}
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to look up user", err)
		return
	}

	if !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadLogin, "login with wrong password")
		writeError(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}

	token, err := h.authService.GenerateToken(user.Email)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to generate token", err)
		return
	}

	h.setTokenCookie(w, token)
	writeJSON(w, http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Logout clears the token cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "logged out"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	record, err := h.users.GetUserByID(r.Context(), user.ID)
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to load user", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(record))
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "Bearer " + token,
		Path:     "/",
		MaxAge:   int(h.tokenDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
