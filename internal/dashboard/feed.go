package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/agro-solar-web/internal/identity"
)

// Hub tracks the open metrics feeds of every device so they can be closed
// when the device logs out or is evicted.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]map[string]*websocket.Conn)}
}

// Register adds a feed connection for a device.
func (h *Hub) Register(deviceID, feedID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.active[deviceID]; !ok {
		h.active[deviceID] = make(map[string]*websocket.Conn)
	}
	h.active[deviceID][feedID] = conn
	slog.Debug("Metrics feed registered", "device_id", deviceID, "feed_id", feedID)
}

// Unregister removes a feed connection if it is still the registered one.
func (h *Hub) Unregister(deviceID, feedID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feeds, ok := h.active[deviceID]
	if !ok {
		return
	}
	if current, exists := feeds[feedID]; exists && current == conn {
		delete(feeds, feedID)
		if len(feeds) == 0 {
			delete(h.active, deviceID)
		}
		slog.Debug("Metrics feed unregistered", "device_id", deviceID, "feed_id", feedID)
	}
}

// Count returns the number of open feeds for a device.
func (h *Hub) Count(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[deviceID])
}

// CloseDevice closes every feed of a device.
func (h *Hub) CloseDevice(deviceID string) {
	h.mu.Lock()
	feeds := h.active[deviceID]
	delete(h.active, deviceID)
	h.mu.Unlock()

	for feedID, conn := range feeds {
		_ = conn.Close(websocket.StatusPolicyViolation, "session ended")
		slog.Info("Metrics feed closed", "device_id", deviceID, "feed_id", feedID)
	}
}

// CloseAll closes every open feed.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	devices := make([]string, 0, len(h.active))
	for id := range h.active {
		devices = append(devices, id)
	}
	h.mu.RUnlock()

	for _, id := range devices {
		h.CloseDevice(id)
	}
}

// FeedHandler streams jittered metrics frames over a websocket.
type FeedHandler struct {
	hub           *Hub
	interval      time.Duration
	allowedOrigin string
	isDev         bool
	activity      func(deviceID string)
	now           func() time.Time
}

// FeedOption configures a FeedHandler.
type FeedOption func(*FeedHandler)

// WithActivity registers fn to be called with the device ID every time a
// frame is written, so an open feed counts as device activity.
func WithActivity(fn func(deviceID string)) FeedOption {
	return func(h *FeedHandler) {
		h.activity = fn
	}
}

// NewFeedHandler creates a feed handler that writes one frame per interval.
func NewFeedHandler(hub *Hub, interval time.Duration, allowedOrigin string, isDev bool, opts ...FeedOption) *FeedHandler {
	h := &FeedHandler{
		hub:           hub,
		interval:      interval,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type feedMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept metrics websocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close metrics websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	feedID := uuid.NewString()
	h.hub.Register(deviceID, feedID, ws)
	defer h.hub.Unregister(deviceID, feedID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.readLoop(ctx, ws, deviceID)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.writeLoop(ctx, ws, deviceID)
	}()

	wg.Wait()
}

func (h *FeedHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Metrics websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *FeedHandler) readLoop(ctx context.Context, ws *websocket.Conn, deviceID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("Metrics websocket read error", "error", err, "device_id", deviceID)
			}
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) writeLoop(ctx context.Context, ws *websocket.Conn, deviceID string) {
	rng := rand.New(rand.NewPCG(uint64(h.now().UnixNano()), 0))
	base := Snapshot(h.now())

	if err := writeJSON(ctx, ws, base); err != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := Jitter(base, rng)
			frame.UpdatedAt = h.now().UTC()
			if err := writeJSON(ctx, ws, frame); err != nil {
				if ctx.Err() == nil {
					slog.Debug("Metrics websocket write error", "error", err, "device_id", deviceID)
				}
				return
			}
			if h.activity != nil {
				h.activity(deviceID)
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
