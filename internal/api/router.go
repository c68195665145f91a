package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/agro-solar-web/internal/identity"
	"github.com/ashureev/agro-solar-web/internal/middleware"
)

// NewRouter wires every route of the server. spa serves the embedded
// frontend; the /dashboard page goes through the page guard first.
func NewRouter(base *Handler, feed, spa http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(base.cfg.AllowedOrigins()))

	// Health stays reachable without a device cookie.
	NewHealthHandler(base.repo).RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(base.repo, base.cfg.IsDevelopment()))

		NewPublicHandler(base).RegisterRoutes(r)
		NewAuthHandler(base).RegisterRoutes(r)
		NewDashboardHandler(base, feed).RegisterRoutes(r)

		guard := middleware.RequireSession(base.SessionView, base.cfg.LoginPath)
		r.With(guard).Handle("/dashboard", spa)
		r.With(guard).Handle("/dashboard/*", spa)

		r.Handle("/*", spa)
	})

	return r
}
