package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ashureev/agro-solar-web/internal/backend"
	"github.com/ashureev/agro-solar-web/internal/dashboard"
	"github.com/ashureev/agro-solar-web/internal/domain"
	"github.com/ashureev/agro-solar-web/internal/middleware"
	"github.com/ashureev/agro-solar-web/internal/upload"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	dashboardHistory    = 5
	multipartOverhead   = 1 << 20
)

// DashboardHandler serves the guarded dashboard API.
type DashboardHandler struct {
	*Handler
	feed http.Handler
}

// NewDashboardHandler creates a new dashboard handler. feed serves the
// live metrics websocket.
func NewDashboardHandler(base *Handler, feed http.Handler) *DashboardHandler {
	return &DashboardHandler{Handler: base, feed: feed}
}

// RegisterRoutes registers the dashboard routes behind the API guard.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSessionAPI(h.SessionView))

		r.Route("/api/dashboard", func(r chi.Router) {
			r.Get("/", h.GetDashboard)
			r.Get("/metrics", h.GetMetrics)
			r.Get("/image", h.GetImage)
			r.Post("/image", h.SelectImage)
			r.Delete("/image", h.ResetImage)
			r.With(middleware.RateLimit(h.Limiter)).Post("/analyze", h.Analyze)
			r.Get("/analyses", h.ListAnalyses)
		})
		if h.feed != nil {
			r.Get("/ws/metrics", h.feed.ServeHTTP)
		}
	})
}

// GetDashboard returns what the dashboard page renders on load.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	history, err := h.repo.ListAnalyses(r.Context(), c.DeviceID, dashboardHistory)
	if err != nil {
		h.logger.Warn("Failed to load analysis history", "error", err, "device_id", c.DeviceID)
		history = nil
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user":     c.Session().User,
		"metrics":  dashboard.Snapshot(time.Now()),
		"upload":   c.Upload.Snapshot(),
		"analyses": nonNil(history),
	})
}

// GetMetrics returns the current metrics snapshot.
func (h *DashboardHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, dashboard.Snapshot(time.Now()))
}

// GetImage returns the selected image bytes for preview.
func (h *DashboardHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}
	img, ok := c.Upload.Image()
	if !ok {
		Error(w, http.StatusNotFound, "no image selected")
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

type pasteRequest struct {
	Items []upload.ClipboardItem `json:"items"`
}

// SelectImage selects an image from a multipart file input or, for JSON
// bodies, from pasted clipboard items.
func (h *DashboardHandler) SelectImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	var err error
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req pasteRequest
		// Clipboard data arrives base64-encoded.
		limit := int64(h.cfg.UploadMaxBytes)*2 + multipartOverhead
		if decodeErr := decodeJSONLimit(w, r, &req, limit); decodeErr != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(decodeErr, &tooLarge) {
				Error(w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
				return
			}
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err = c.Upload.Paste(req.Items)
	case "multipart/form-data":
		img, readErr := h.readMultipartImage(w, r)
		if readErr != nil {
			Error(w, http.StatusBadRequest, readErr.Error())
			return
		}
		err = c.Upload.Select(img)
	default:
		Error(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}

	if err != nil {
		Error(w, selectStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, c.Upload.Snapshot())
}

func (h *DashboardHandler) readMultipartImage(w http.ResponseWriter, r *http.Request) (backend.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.cfg.UploadMaxBytes)+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return backend.Image{}, upload.ErrTooLarge
		}
		return backend.Image{}, errors.New("missing image file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return backend.Image{}, errors.New("failed to read image")
	}
	return backend.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func selectStatus(err error) int {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrNotImage):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

// ResetImage clears the selected image and any result.
func (h *DashboardHandler) ResetImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}
	c.Upload.Reset()
	JSON(w, http.StatusOK, c.Upload.Snapshot())
}

// Analyze submits the selected image for analysis and records the result.
func (h *DashboardHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	out, err := c.Upload.Submit(r.Context(), c.Backend)
	switch {
	case errors.Is(err, upload.ErrNoImage):
		Error(w, http.StatusBadRequest, "Please select an image first")
		return
	case errors.Is(err, upload.ErrUploadInProgress):
		Error(w, http.StatusConflict, "An analysis is already running")
		return
	case errors.Is(err, upload.ErrSuperseded):
		Error(w, http.StatusConflict, "The image changed during analysis")
		return
	case err != nil:
		h.logger.Info("Image analysis failed", "error", err, "device_id", c.DeviceID)
		JSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  c.Upload.Error(),
			"upload": c.Upload.Snapshot(),
		})
		return
	}

	analysis := &domain.Analysis{
		ID:          uuid.NewString(),
		DeviceID:    c.DeviceID,
		Filename:    out.Filename,
		ContentType: out.ContentType,
		Size:        int64(out.Size),
		Prediction:  out.Prediction,
		Message:     out.Message,
		CreatedAt:   time.Now(),
	}
	if err := h.repo.InsertAnalysis(r.Context(), analysis); err != nil {
		h.logger.Error("Failed to record analysis", "error", err, "device_id", c.DeviceID)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"result": out.AnalysisResult,
		"upload": c.Upload.Snapshot(),
	})
}

// ListAnalyses returns the device's analysis history, newest first.
func (h *DashboardHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := h.repo.ListAnalyses(r.Context(), c.DeviceID, limit)
	if err != nil {
		h.logger.Error("Failed to list analyses", "error", err, "device_id", c.DeviceID)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"analyses": nonNil(history)})
}

func nonNil(list []*domain.Analysis) []*domain.Analysis {
	if list == nil {
		return []*domain.Analysis{}
	}
	return list
}
