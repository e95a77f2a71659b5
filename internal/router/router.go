package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"dajam-backend/internal/handlers"
	"dajam-backend/internal/middleware"
	"dajam-backend/internal/models"
)

type Handlers struct {
	Sessions     *handlers.SessionHandler
	Participants *handlers.ParticipantHandler
	Rows         *handlers.RowHandler
	WebSocket    http.HandlerFunc
}

func New(jwtAuth *middleware.JWTAuth, h Handlers, frontendURL string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Session creation and joining are open to anyone holding a code, so
	// they are limited per IP. Submissions are limited per participant.
	openLimiter := middleware.NewRateLimiter(30, time.Minute, middleware.ByIP)
	submitLimiter := middleware.NewRateLimiter(120, time.Minute, middleware.ByParticipant)

	requireHost := middleware.RequireRole(models.RoleHost)
	requireModerator := middleware.RequireRole(models.RoleHost, models.RoleModerator)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.With(openLimiter.Middleware).Post("/", h.Sessions.Create)
			r.Get("/public", h.Sessions.ListPublic)

			r.Route("/{id}", func(r chi.Router) {
				r.With(openLimiter.Middleware).Post("/join", h.Participants.Join)
				r.Get("/participants", h.Participants.List)
				r.Get("/rows", h.Rows.List)
				r.Get("/results", h.Sessions.Results)

				// Token in the query string; browsers cannot set headers on
				// websocket upgrades.
				r.Get("/ws", h.WebSocket)

				r.Group(func(r chi.Router) {
					r.Use(jwtAuth.Middleware)
					r.With(submitLimiter.Middleware).Post("/rows", h.Rows.Submit)
					r.With(requireHost).Post("/close", h.Sessions.Close)
					r.With(requireModerator).Post("/participants/{pid}/ban", h.Participants.Ban)
				})
			})
		})

		// Share links resolve here. Kept apart from /sessions/{id}/... so
		// the two parameter routes cannot shadow each other.
		r.Get("/codes/{appType}/{code}", h.Sessions.Load)

		// ──── Participant Routes ────
		r.Route("/participants/me", func(r chi.Router) {
			r.Get("/history", h.Participants.History)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Put("/metadata", h.Participants.UpdateMetadata)
			})
		})
	})

	return r
}
