package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agro-solar-web/internal/auth"
	"github.com/ashureev/agro-solar-web/internal/domain"
	"github.com/ashureev/agro-solar-web/internal/middleware"
)

// AuthHandler exposes the device's auth gateway to the browser.
type AuthHandler struct {
	*Handler
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *Handler) *AuthHandler {
	return &AuthHandler{Handler: base}
}

// RegisterRoutes registers session and login routes. Credential submissions
// go through the device's rate limiter.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	limited := middleware.RateLimit(h.Limiter)

	r.Get("/api/session", h.GetSession)
	r.Route("/api/auth", func(r chi.Router) {
		r.With(limited).Post("/login", h.Login)
		r.With(limited).Post("/signup", h.Signup)
		r.Post("/logout", h.Logout)
		r.With(limited).Post("/oauth/google", h.GoogleLogin)
		r.Get("/oauth/github", h.GitHubStart)
	})
	r.With(limited).Get("/github/callback", h.GitHubCallback)
}

// GetSession returns the device's current session.
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, c.Session())
}

type loginResponse struct {
	auth.LoginResult
	Session  auth.Session         `json:"session"`
	Redirect string               `json:"redirect,omitempty"`
	Identity *auth.GoogleIdentity `json:"identity,omitempty"`
}

// Login authenticates with username and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	var creds domain.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := c.Gateway.Login(r.Context(), creds)
	resp := loginResponse{LoginResult: res, Session: c.Session()}
	if !res.Success {
		JSON(w, http.StatusUnauthorized, resp)
		return
	}
	resp.Redirect = h.cfg.LandingPath
	JSON(w, http.StatusOK, resp)
}

type signupResponse struct {
	auth.SignupResult
	Session  auth.Session `json:"session"`
	Redirect string       `json:"redirect,omitempty"`
}

// Signup registers an account and logs in with it.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	var form domain.SignupForm
	if err := decodeJSON(w, r, &form); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := c.Gateway.Signup(r.Context(), form)
	resp := signupResponse{SignupResult: res, Session: c.Session()}
	switch res.Outcome {
	case auth.SignupComplete:
		resp.Redirect = h.cfg.LandingPath
		JSON(w, http.StatusCreated, resp)
	case auth.SignupCreatedLoginFailed:
		resp.Redirect = h.cfg.LoginPath
		JSON(w, http.StatusCreated, resp)
	default:
		JSON(w, http.StatusBadRequest, resp)
	}
}

// Logout ends the session. On failure the session is left as it was.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	if err := c.Gateway.Logout(r.Context()); err != nil {
		Error(w, http.StatusBadGateway, "Logout failed")
		return
	}

	c.Upload.Reset()
	h.hub.CloseDevice(c.DeviceID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":  c.Session(),
		"redirect": "/",
	})
}

type googleRequest struct {
	Credential string `json:"credential"`
}

// GoogleLogin hands a Google ID token to the backend for verification.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	var req googleRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Credential == "" {
		Error(w, http.StatusBadRequest, "missing credential")
		return
	}

	resp := loginResponse{}
	if ident, err := auth.DecodeGoogleCredential(req.Credential); err == nil {
		resp.Identity = ident
	} else {
		h.logger.Debug("Google credential not decodable for display", "error", err)
	}

	resp.LoginResult = c.Gateway.GoogleLogin(r.Context(), req.Credential)
	resp.Session = c.Session()
	if !resp.Success {
		JSON(w, http.StatusUnauthorized, resp)
		return
	}
	resp.Redirect = h.cfg.LandingPath
	JSON(w, http.StatusOK, resp)
}

// GitHubStart sends the browser to GitHub's consent page.
func (h *AuthHandler) GitHubStart(w http.ResponseWriter, r *http.Request) {
	if h.cfg.OAuth.GitHubClientID == "" {
		Error(w, http.StatusServiceUnavailable, "GitHub login is not configured")
		return
	}
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, c.Gateway.GitHubAuthorizeURL(), http.StatusFound)
}

// GitHubCallback completes the GitHub redirect and forwards the browser with
// any notice attached as a query parameter.
func (h *AuthHandler) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	c, ok := h.mustDevice(w, r)
	if !ok {
		return
	}

	res := c.Gateway.CompleteGitHub(r.Context(), r.URL.Query())
	http.Redirect(w, r, withNotice(res.Redirect, res.Notice), http.StatusSeeOther)
}

func withNotice(target, notice string) string {
	if notice == "" {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("notice", notice)
	u.RawQuery = q.Encode()
	return u.String()
}
