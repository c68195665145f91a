package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agro-solar-web/internal/auth"
	"github.com/ashureev/agro-solar-web/internal/domain"
	"github.com/ashureev/agro-solar-web/internal/store"
)

const (
	healthCheckTimeout = 5 * time.Second

	msgContactSent   = "Message sent successfully!"
	msgContactFailed = "Failed to send message. Try again."
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// PublicHandler serves the unauthenticated helper endpoints.
type PublicHandler struct {
	*Handler
}

// NewPublicHandler creates a new public handler.
func NewPublicHandler(base *Handler) *PublicHandler {
	return &PublicHandler{Handler: base}
}

// RegisterRoutes registers config, location and contact routes.
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/locations", h.GetLocations)
	r.Post("/api/contact", h.Contact)
}

// GetConfig returns what the browser needs to start the OAuth flows.
func (h *PublicHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	gh := auth.GitHubConfig{
		ClientID:    h.cfg.OAuth.GitHubClientID,
		RedirectURL: h.cfg.OAuth.GitHubRedirectURL,
	}
	resp := map[string]interface{}{
		"google_client_id": h.cfg.OAuth.GoogleClientID,
		"github_client_id": h.cfg.OAuth.GitHubClientID,
		"login_path":       h.cfg.LoginPath,
		"landing_path":     h.cfg.LandingPath,
		"upload_max_bytes": h.cfg.UploadMaxBytes,
	}
	if gh.ClientID != "" {
		resp["github_authorize_url"] = gh.AuthorizeURL()
	}
	JSON(w, http.StatusOK, resp)
}

// GetLocations returns the signup location catalog.
func (h *PublicHandler) GetLocations(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"states":    domain.States(),
		"locations": domain.Locations,
	})
}

// Contact relays a contact-form message to the backend.
func (h *PublicHandler) Contact(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	var msg domain.ContactMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := msg.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := c.Backend.Contact(r.Context(), msg); err != nil {
		h.logger.Warn("Contact relay failed", "error", err, "device_id", c.DeviceID)
		Error(w, http.StatusBadGateway, msgContactFailed)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"message": msgContactSent})
}
