package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tunetogether/backend/internal/config"
	"github.com/tunetogether/backend/internal/handlers"
	"github.com/tunetogether/backend/internal/middleware"
	"github.com/tunetogether/backend/internal/realtime"
	"github.com/tunetogether/backend/internal/services"
	"github.com/tunetogether/backend/internal/store"
)

func New(cfg *config.Config, st *store.Store, hub *realtime.Hub) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Services
	authService := services.NewAuthService(cfg.JWTSecret, cfg.TokenDuration)
	shareKeyService := services.NewShareKeyService(st)

	// Handlers
	authHandler := handlers.NewAuthHandler(st, authService, cfg.TokenDuration)
	userHandler := handlers.NewUserHandler(st)
	friendHandler := handlers.NewFriendHandler(st)
	sessionHandler := handlers.NewSessionHandler(st, hub, shareKeyService)
	invitationHandler := handlers.NewInvitationHandler(st, hub)
	notificationHandler := handlers.NewNotificationHandler(st)
	wsHandler := realtime.NewHandler(hub, realtime.NewIdentityResolver(authService, st), cfg.WSReadLimitBytes)

	// Rate limiter for user search
	searchRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	requireAuth := middleware.AuthMiddleware(authService, st)

	// WebSocket endpoint authenticates itself before the upgrade.
	r.Get("/ws", wsHandler.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(requireAuth).Get("/me", authHandler.Me)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(searchRateLimiter.Middleware).Get("/search", userHandler.Search)
		})

		r.Route("/friends", func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/", friendHandler.List)
			r.Delete("/{id}", friendHandler.Remove)
			r.Post("/request", friendHandler.CreateRequest)
			r.Route("/requests", func(r chi.Router) {
				r.Get("/", friendHandler.ListRequests)
				r.Post("/{id}/accept", friendHandler.AcceptRequest)
				r.Post("/{id}/reject", friendHandler.RejectRequest)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)
			r.Post("/join-by-key", sessionHandler.JoinByKey)

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", invitationHandler.ListInvitations)
				r.Post("/{id}/accept", invitationHandler.AcceptInvitation)
				r.Post("/{id}/reject", invitationHandler.RejectInvitation)
			})

			r.Route("/requests/{id}", func(r chi.Router) {
				r.Get("/", invitationHandler.ListJoinRequests)
				r.Post("/{requestId}/accept", invitationHandler.AcceptJoinRequest)
				r.Post("/{requestId}/decline", invitationHandler.DeclineJoinRequest)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Put("/", sessionHandler.Update)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/join", sessionHandler.Join)
				r.Post("/leave", sessionHandler.Leave)
				r.Get("/messages", sessionHandler.Messages)
				r.Post("/request", invitationHandler.RequestJoin)
				r.Post("/invite/{friendId}", invitationHandler.Invite)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/", notificationHandler.List)
			r.Get("/unread", notificationHandler.ListUnread)
			r.Post("/{id}/read", notificationHandler.MarkRead)
			r.Post("/read-all", notificationHandler.MarkAllRead)
		})
	})

	return r
}
