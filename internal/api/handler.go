// Package api provides HTTP handlers for the agro-solar web server.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ashureev/agro-solar-web/internal/auth"
	"github.com/ashureev/agro-solar-web/internal/config"
	"github.com/ashureev/agro-solar-web/internal/dashboard"
	"github.com/ashureev/agro-solar-web/internal/device"
	"github.com/ashureev/agro-solar-web/internal/identity"
	"github.com/ashureev/agro-solar-web/internal/store"
)

const maxJSONBody = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	registry *device.Registry
	repo     store.Repository
	hub      *dashboard.Hub
	cfg      *config.Config
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *device.Registry, repo store.Repository, hub *dashboard.Hub, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		repo:     repo,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a JSON body of at most maxJSONBody bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return decodeJSONLimit(w, r, v, maxJSONBody)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

// deviceContext returns the context of the requesting device, creating it on
// first use.
func (h *Handler) deviceContext(r *http.Request) (*device.Context, bool) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		return nil, false
	}
	c, err := h.registry.Get(deviceID)
	if err != nil {
		h.logger.Error("Failed to get device context", "error", err, "device_id", deviceID)
		return nil, false
	}
	return c, true
}

// SessionView resolves the requesting device's session for the route guard.
func (h *Handler) SessionView(r *http.Request) (auth.View, bool) {
	c, ok := h.deviceContext(r)
	if !ok {
		return nil, false
	}
	return c, true
}

// Limiter resolves the requesting device's token bucket.
func (h *Handler) Limiter(r *http.Request) *rate.Limiter {
	c, ok := h.deviceContext(r)
	if !ok {
		return nil
	}
	return c.Limiter
}

// mustDevice writes a 500 and returns false when no device context exists.
func (h *Handler) mustDevice(w http.ResponseWriter, r *http.Request) (*device.Context, bool) {
	c, ok := h.deviceContext(r)
	if !ok {
		Error(w, http.StatusInternalServerError, "device not initialized")
		return nil, false
	}
	return c, true
}
