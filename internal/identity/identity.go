// Package identity provides per-device identity primitives.
package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agro-solar-web/internal/domain"
	"github.com/ashureev/agro-solar-web/internal/store"
)

const (
	DeviceCookieName   = "agro_device_id"
	deviceCookieMaxAge = 30 * 24 * time.Hour
	// lastSeenPrecision limits how often a returning device's row is rewritten.
	lastSeenPrecision = time.Minute
)

type contextKey int

const deviceIDKey contextKey = iota

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithDeviceID returns a copy of ctx carrying deviceID.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func isValidDeviceID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.Version() == 4
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// getOrCreateDeviceID returns the request's device ID, issuing a new one if
// the cookie is missing or invalid.
func getOrCreateDeviceID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if c, err := r.Cookie(DeviceCookieName); err == nil && isValidDeviceID(c.Value) {
		setDeviceCookie(w, c.Value, isDev)
		return c.Value
	}

	id := uuid.NewString()
	setDeviceCookie(w, id, isDev)
	return id
}

func recordDevice(ctx context.Context, repo store.Repository, deviceID string, now time.Time) error {
	device, err := repo.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return repo.UpsertDevice(ctx, &domain.Device{
			DeviceID:    deviceID,
			FirstSeenAt: now,
			LastSeenAt:  now,
		})
	}
	if now.Sub(device.LastSeenAt) < lastSeenPrecision {
		return nil
	}
	return repo.UpdateLastSeen(ctx, deviceID, now)
}

// Middleware assigns every browser a device ID cookie and records the device.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := getOrCreateDeviceID(w, r, isDev)

			if err := recordDevice(r.Context(), repo, deviceID, time.Now()); err != nil {
				http.Error(w, `{"error":"failed to initialize device"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), deviceID)))
		})
	}
}
