package backend

import (
	"context"

	"github.com/ashureev/agro-solar-web/internal/domain"
)

// Backend endpoint paths.
const (
	PathAuthCheck   = "/api/auth/check"
	PathLogin       = "/api/auth/login"
	PathSignup      = "/api/auth/signup"
	PathLogout      = "/api/auth/logout"
	PathGoogleLogin = "/api/auth/oauth/google"
	PathGitHubLogin = "/github-login"
	PathAnalyze     = "/api/analyze"
	PathContact     = "/api/contact"
)

// AuthStatus is the body of the auth check endpoint.
type AuthStatus struct {
	Authenticated bool               `json:"authenticated"`
	User          domain.UserProfile `json:"user,omitempty"`
}

// LoginResponse is returned by the password, Google and GitHub login endpoints.
type LoginResponse struct {
	Message string             `json:"message,omitempty"`
	User    domain.UserProfile `json:"user,omitempty"`
}

// CheckAuth asks the backend whether the device's cookie carries a live session.
func (c *Client) CheckAuth(ctx context.Context) (*AuthStatus, error) {
	var status AuthStatus
	if err := c.get(ctx, PathAuthCheck, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Login submits credentials.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.postJSON(ctx, PathLogin, creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Signup registers a new account. It does not authenticate the device.
func (c *Client) Signup(ctx context.Context, reg domain.Registration) error {
	return c.postJSON(ctx, PathSignup, reg, nil)
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, PathLogout, struct{}{}, nil)
}

// GoogleLogin forwards a Google identity credential for verification.
func (c *Client) GoogleLogin(ctx context.Context, credential string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"credential": credential}
	if err := c.postJSON(ctx, PathGoogleLogin, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GitHubLogin exchanges a GitHub authorization code for a backend session.
func (c *Client) GitHubLogin(ctx context.Context, code string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"code": code}
	if err := c.postJSON(ctx, PathGitHubLogin, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Contact relays a contact-form message.
func (c *Client) Contact(ctx context.Context, msg domain.ContactMessage) error {
	return c.postJSON(ctx, PathContact, msg, nil)
}
