package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/agro-solar-web/internal/backend"
	"github.com/ashureev/agro-solar-web/internal/domain"
)

const (
	msgLoginFailed       = "Login failed"
	msgSignupFailed      = "Signup failed. Please try again."
	msgLoginAfterSignup  = "Login after signup failed"
	defaultLoginPath     = "/login"
	defaultLandingPath   = "/dashboard"
	maxRememberedGHCodes = 16
)

// Backend is the subset of the REST backend the gateway drives.
type Backend interface {
	CheckAuth(ctx context.Context) (*backend.AuthStatus, error)
	Login(ctx context.Context, creds domain.Credentials) (*backend.LoginResponse, error)
	Signup(ctx context.Context, reg domain.Registration) error
	Logout(ctx context.Context) error
	GoogleLogin(ctx context.Context, credential string) (*backend.LoginResponse, error)
	GitHubLogin(ctx context.Context, code string) (*backend.LoginResponse, error)
}

var _ Backend = (*backend.Client)(nil)

// Config holds the navigation targets and OAuth settings used by the gateway.
type Config struct {
	LoginPath   string
	LandingPath string
	GitHub      GitHubConfig
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Gateway turns user intent into backend calls and applies the results to a Store.
type Gateway struct {
	store   *Store
	backend Backend
	cfg     Config
	logger  *slog.Logger

	checkOnce sync.Once

	codesMu sync.Mutex
	codes   map[string]struct{}
}

// NewGateway creates a gateway that owns the mutations of store.
func NewGateway(store *Store, b Backend, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = defaultLoginPath
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = defaultLandingPath
	}
	return &Gateway{
		store:   store,
		backend: b,
		cfg:     cfg,
		logger:  logger,
		codes:   make(map[string]struct{}),
	}
}

// Session returns the current session of the gateway's store.
func (g *Gateway) Session() Session {
	return g.store.Session()
}

// CheckSession asks the backend whether the device is already logged in.
// Only the first call does any work. Failures are logged and leave the
// device unauthenticated; loading is cleared in every case.
func (g *Gateway) CheckSession(ctx context.Context) {
	g.checkOnce.Do(func() {
		g.checkSession(ctx)
	})
}

func (g *Gateway) checkSession(ctx context.Context) {
	defer g.store.setLoading(false)

	status, err := g.backend.CheckAuth(ctx)
	if err != nil {
		g.logger.Warn("Auth check failed", "error", err)
		return
	}
	if !status.Authenticated {
		return
	}
	if !status.User.Present() {
		g.logger.Warn("Auth check reported authenticated without a user")
		return
	}
	g.store.set(status.User)
}

// Login submits credentials. The store is only changed on success.
func (g *Gateway) Login(ctx context.Context, creds domain.Credentials) LoginResult {
	resp, err := g.backend.Login(ctx, creds)
	if err != nil {
		g.logger.Info("Login rejected", "username", creds.Username, "error", err)
		return LoginResult{Error: backend.MessageOf(err, msgLoginFailed)}
	}
	if !resp.User.Present() {
		g.logger.Warn("Login response carried no user", "username", creds.Username)
		return LoginResult{Error: msgLoginFailed}
	}
	g.store.set(resp.User)
	g.logger.Info("Login succeeded", "username", creds.Username)
	return LoginResult{Success: true}
}

// Logout ends the backend session and clears the store. When the backend
// call fails the previous session is kept and the error is returned.
func (g *Gateway) Logout(ctx context.Context) error {
	if err := g.backend.Logout(ctx); err != nil {
		g.logger.Error("Logout failed", "error", err)
		return fmt.Errorf("logout: %w", err)
	}
	g.store.clear()
	return nil
}

// SignupOutcome distinguishes the two steps of signup.
type SignupOutcome int

const (
	// SignupRejected means validation or account creation failed.
	SignupRejected SignupOutcome = iota
	// SignupCreatedLoginFailed means the account exists but the follow-up login failed.
	SignupCreatedLoginFailed
	// SignupComplete means the account was created and the device is logged in.
	SignupComplete
)

func (o SignupOutcome) String() string {
	switch o {
	case SignupRejected:
		return "rejected"
	case SignupCreatedLoginFailed:
		return "created_login_failed"
	case SignupComplete:
		return "complete"
	default:
		return fmt.Sprintf("SignupOutcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome by name.
func (o SignupOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// SignupResult is the outcome of Signup.
type SignupResult struct {
	Outcome SignupOutcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// AccountCreated reports whether the backend accepted the registration.
func (r SignupResult) AccountCreated() bool {
	return r.Outcome != SignupRejected
}

// Signup validates and registers the form, then logs in with the same
// username and password. Registration alone does not authenticate.
func (g *Gateway) Signup(ctx context.Context, form domain.SignupForm) SignupResult {
	if err := form.Validate(); err != nil {
		return SignupResult{Outcome: SignupRejected, Error: err.Error()}
	}

	if err := g.backend.Signup(ctx, form.Registration()); err != nil {
		g.logger.Info("Signup rejected", "username", form.Username, "error", err)
		return SignupResult{Outcome: SignupRejected, Error: backend.MessageOf(err, msgSignupFailed)}
	}

	login := g.Login(ctx, form.Credentials())
	if !login.Success {
		msg := login.Error
		if msg == "" {
			msg = msgLoginAfterSignup
		}
		return SignupResult{Outcome: SignupCreatedLoginFailed, Error: msg}
	}
	return SignupResult{Outcome: SignupComplete}
}
