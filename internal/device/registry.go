// Package device keeps one application context per browser device.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashureev/agro-solar-web/internal/auth"
	"github.com/ashureev/agro-solar-web/internal/backend"
	"github.com/ashureev/agro-solar-web/internal/upload"
)

const defaultBurst = 5

// Context is everything the web client holds for one device: its session,
// its credentialed backend client, and its dashboard upload state.
type Context struct {
	DeviceID string
	Gateway  *auth.Gateway
	Backend  *backend.Client
	Upload   *upload.Flow
	Limiter  *rate.Limiter

	lastSeen atomic.Int64
}

// Session returns the device's current session.
func (c *Context) Session() auth.Session {
	return c.Gateway.Session()
}

// LastSeen returns the last time the device made a request.
func (c *Context) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Context) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

// Config controls how new device contexts are built.
type Config struct {
	BackendURL        string
	Transport         http.RoundTripper
	Auth              auth.Config
	UploadMaxBytes    int
	AuthRatePerMinute int
	Logger            *slog.Logger
}

// Registry manages device contexts.
type Registry struct {
	cfg     Config
	baseCtx context.Context
	logger  *slog.Logger

	mu     sync.RWMutex
	active map[string]*Context

	boot sync.WaitGroup
	now  func() time.Time
}

// NewRegistry creates a registry. Session checks started by the registry run
// under baseCtx, so cancelling it aborts checks still in flight.
func NewRegistry(baseCtx context.Context, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:     cfg,
		baseCtx: baseCtx,
		logger:  logger,
		active:  make(map[string]*Context),
		now:     time.Now,
	}
}

// Get returns the context for deviceID, creating it on first use. A new
// context starts loading and checks its session in the background.
func (r *Registry) Get(deviceID string) (*Context, error) {
	now := r.now()

	r.mu.RLock()
	c, ok := r.active[deviceID]
	r.mu.RUnlock()
	if ok {
		c.touch(now)
		return c, nil
	}

	r.mu.Lock()
	if c, ok = r.active[deviceID]; ok {
		r.mu.Unlock()
		c.touch(now)
		return c, nil
	}
	c, err := r.newContext(deviceID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	c.touch(now)
	r.active[deviceID] = c
	r.mu.Unlock()

	r.logger.Info("Device context created", "device_id", deviceID)

	r.boot.Add(1)
	go func() {
		defer r.boot.Done()
		c.Gateway.CheckSession(r.baseCtx)
	}()
	return c, nil
}

// Lookup returns an existing context without creating one.
func (r *Registry) Lookup(deviceID string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.active[deviceID]
	return c, ok
}

// Touch marks an existing context as active without creating one. Long-lived
// connections call it so the sweeper does not evict a device still in use.
func (r *Registry) Touch(deviceID string) {
	if c, ok := r.Lookup(deviceID); ok {
		c.touch(r.now())
	}
}

// Evict drops the context for deviceID.
func (r *Registry) Evict(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[deviceID]; ok {
		delete(r.active, deviceID)
		r.logger.Info("Device context evicted", "device_id", deviceID)
	}
}

// Sweep evicts contexts idle for longer than idle and returns their device IDs.
func (r *Registry) Sweep(idle time.Duration) []string {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, c := range r.active {
		if c.LastSeen().Before(cutoff) {
			delete(r.active, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Wait blocks until all session checks started so far have finished.
func (r *Registry) Wait() {
	r.boot.Wait()
}

func (r *Registry) newContext(deviceID string) (*Context, error) {
	var opts []backend.Option
	if r.cfg.Transport != nil {
		opts = append(opts, backend.WithTransport(r.cfg.Transport))
	}
	client, err := backend.New(r.cfg.BackendURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create backend client for %s: %w", deviceID, err)
	}

	logger := r.logger.With("device_id", deviceID)
	return &Context{
		DeviceID: deviceID,
		Gateway:  auth.NewGateway(auth.NewStore(), client, r.cfg.Auth, logger),
		Backend:  client,
		Upload:   upload.NewFlow(r.cfg.UploadMaxBytes),
		Limiter:  newLimiter(r.cfg.AuthRatePerMinute),
	}, nil
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := defaultBurst
	if perMinute < burst {
		burst = perMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}
