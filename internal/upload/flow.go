// Package upload implements the dashboard's select-analyze-result flow for one device.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ashureev/agro-solar-web/internal/backend"
)

var (
	// ErrNoImage is returned when there is nothing to analyze.
	ErrNoImage = errors.New("no image selected")
	// ErrNotImage is returned when the selected data is not an image.
	ErrNotImage = errors.New("selected file is not an image")
	// ErrTooLarge is returned when the image exceeds the size limit.
	ErrTooLarge = errors.New("image too large")
	// ErrUploadInProgress is returned when an analysis is already running.
	ErrUploadInProgress = errors.New("upload already in progress")
	// ErrSuperseded is returned when the image changed while its analysis was running.
	ErrSuperseded = errors.New("image replaced during analysis")
)

// State is a step of the flow.
type State int

const (
	StateEmpty State = iota
	StateSelected
	StateUploading
	StateResultReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSelected:
		return "selected"
	case StateUploading:
		return "uploading"
	case StateResultReady:
		return "resultReady"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Analyzer sends an image to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, img backend.Image) (*backend.AnalysisResult, error)
}

// ClipboardItem is one entry of a paste event.
type ClipboardItem struct {
	Type string
	Name string
	Data []byte
}

// Snapshot is what the dashboard renders.
type Snapshot struct {
	State       State                   `json:"state"`
	Filename    string                  `json:"filename,omitempty"`
	ContentType string                  `json:"contentType,omitempty"`
	Size        int                     `json:"size,omitempty"`
	Result      *backend.AnalysisResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// Flow holds the selected image and the latest analysis outcome.
type Flow struct {
	mu       sync.Mutex
	maxBytes int

	image  *backend.Image
	result *backend.AnalysisResult
	errMsg string

	generation  uint64
	inflight    bool
	inflightGen uint64
}

// NewFlow returns an empty flow accepting images up to maxBytes (0 = unlimited).
func NewFlow(maxBytes int) *Flow {
	return &Flow{maxBytes: maxBytes}
}

// Select replaces the image. Any previous result or error is discarded.
func (f *Flow) Select(img backend.Image) error {
	if len(img.Data) == 0 {
		return ErrNoImage
	}
	if f.maxBytes > 0 && len(img.Data) > f.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(img.Data), f.maxBytes)
	}
	if img.ContentType == "" || img.ContentType == "application/octet-stream" {
		img.ContentType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return fmt.Errorf("%w: %s", ErrNotImage, img.ContentType)
	}

	data := append([]byte(nil), img.Data...)
	img.Data = data

	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = &img
	f.result = nil
	f.errMsg = ""
	f.generation++
	return nil
}

// Paste selects the first clipboard item whose type is an image.
func (f *Flow) Paste(items []ClipboardItem) error {
	for _, item := range items {
		if strings.Contains(item.Type, "image") {
			return f.Select(backend.Image{Filename: item.Name, ContentType: item.Type, Data: item.Data})
		}
	}
	return ErrNotImage
}

// Reset returns the flow to empty. A running analysis finishes but its result is dropped.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = nil
	f.result = nil
	f.errMsg = ""
	f.generation++
}

// Outcome is a finished analysis and the image it was run on.
type Outcome struct {
	*backend.AnalysisResult
	Filename    string
	ContentType string
	Size        int
}

// Submit analyzes the selected image. A previous result is cleared when the
// analysis starts. On failure the image is kept so the caller can submit
// again without selecting it anew.
func (f *Flow) Submit(ctx context.Context, a Analyzer) (*Outcome, error) {
	f.mu.Lock()
	if f.image == nil {
		f.mu.Unlock()
		return nil, ErrNoImage
	}
	if f.inflight {
		f.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	img := *f.image
	gen := f.generation
	f.inflight = true
	f.inflightGen = gen
	f.result = nil
	f.errMsg = ""
	f.mu.Unlock()

	res, err := a.Analyze(ctx, img)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight = false
	if gen != f.generation {
		return nil, ErrSuperseded
	}
	if err != nil {
		f.errMsg = "Failed to analyze image: " + failureDetail(err)
		return nil, fmt.Errorf("analyze %s: %w", img.Filename, err)
	}
	f.result = res
	return &Outcome{
		AnalysisResult: res,
		Filename:       img.Filename,
		ContentType:    img.ContentType,
		Size:           len(img.Data),
	}, nil
}

// Error returns the message of the last failed analysis, if any.
func (f *Flow) Error() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg
}

// Image returns a copy of the selected image for preview.
func (f *Flow) Image() (backend.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.image == nil {
		return backend.Image{}, false
	}
	img := *f.image
	img.Data = append([]byte(nil), f.image.Data...)
	return img, true
}

// Snapshot returns the current state for rendering.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{State: f.stateLocked(), Result: f.result, Error: f.errMsg}
	if f.image != nil {
		snap.Filename = f.image.Filename
		snap.ContentType = f.image.ContentType
		snap.Size = len(f.image.Data)
	}
	return snap
}

func (f *Flow) stateLocked() State {
	switch {
	case f.image == nil:
		return StateEmpty
	case f.inflight && f.inflightGen == f.generation:
		return StateUploading
	case f.result != nil:
		return StateResultReady
	case f.errMsg != "":
		return StateFailed
	default:
		return StateSelected
	}
}

func failureDetail(err error) string {
	var se *backend.StatusError
	switch {
	case errors.As(err, &se):
		if se.Message != "" {
			return se.Message
		}
		return fmt.Sprintf("Server responded with status %d", se.Status)
	case errors.Is(err, backend.ErrMalformed):
		return "unexpected response from server"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		return "could not reach the analysis service"
	}
}
