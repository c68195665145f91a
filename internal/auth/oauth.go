package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// GitHubAuthorizeURL is GitHub's OAuth authorization endpoint.
	GitHubAuthorizeURL = "https://github.com/login/oauth/authorize"

	msgGoogleFailed    = "Google login failed"
	msgGitHubCancelled = "GitHub login cancelled."
	msgGitHubNoCode    = "No authorization code returned from GitHub."
	msgGitHubFailed    = "GitHub login failed"
)

// ErrEmptyCredential is returned when no Google credential was supplied.
var ErrEmptyCredential = errors.New("empty google credential")

// GoogleIdentity is what a Google ID token says about its subject.
// It is for display only and is never trusted for authentication.
type GoogleIdentity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Issuer        string `json:"iss,omitempty"`
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// DecodeGoogleCredential reads the claims of a Google ID token without
// checking its signature. It does not touch any session.
func DecodeGoogleCredential(credential string) (*GoogleIdentity, error) {
	if credential == "" {
		return nil, ErrEmptyCredential
	}
	var claims googleClaims
	if _, _, err := jwt.NewParser().ParseUnverified(credential, &claims); err != nil {
		return nil, fmt.Errorf("decode google credential: %w", err)
	}
	return &GoogleIdentity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
		Issuer:        claims.Issuer,
	}, nil
}

// GoogleLogin forwards the credential verbatim to the backend. Only a
// successful backend verification establishes the session.
func (g *Gateway) GoogleLogin(ctx context.Context, credential string) LoginResult {
	if credential == "" {
		return LoginResult{Error: msgGoogleFailed}
	}

	resp, err := g.backend.GoogleLogin(ctx, credential)
	if err != nil {
		g.logger.Info("Google login rejected", "error", err)
		return LoginResult{Error: msgGoogleFailed}
	}

	user := resp.User
	if !user.Present() {
		// The verification endpoint may only set the cookie; read the user back.
		status, err := g.backend.CheckAuth(ctx)
		if err != nil || !status.Authenticated || !status.User.Present() {
			g.logger.Warn("Google login established no user", "error", err)
			return LoginResult{Error: msgGoogleFailed}
		}
		user = status.User
	}

	g.store.set(user)
	g.logger.Info("Google login succeeded")
	return LoginResult{Success: true}
}

// GitHubConfig identifies this application to GitHub.
type GitHubConfig struct {
	ClientID    string
	RedirectURL string
}

// AuthorizeURL returns the URL the browser is sent to for GitHub consent.
func (c GitHubConfig) AuthorizeURL() string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	if c.RedirectURL != "" {
		q.Set("redirect_uri", c.RedirectURL)
	}
	return GitHubAuthorizeURL + "?" + q.Encode()
}

// GitHubAuthorizeURL returns the consent URL for the gateway's GitHub app.
func (g *Gateway) GitHubAuthorizeURL() string {
	return g.cfg.GitHub.AuthorizeURL()
}

// BridgeResult tells the caller where to send the browser after an OAuth handoff.
type BridgeResult struct {
	Redirect      string
	Notice        string
	Authenticated bool
}

// CompleteGitHub finishes the GitHub redirect flow from the callback's query
// parameters. An error parameter or a missing code aborts without contacting
// the backend. A code is exchanged at most once per gateway.
func (g *Gateway) CompleteGitHub(ctx context.Context, query url.Values) BridgeResult {
	if providerErr := query.Get("error"); providerErr != "" {
		g.logger.Info("GitHub login aborted by provider", "error", providerErr)
		return BridgeResult{Redirect: g.cfg.LoginPath, Notice: msgGitHubCancelled}
	}

	code := query.Get("code")
	if code == "" {
		return BridgeResult{Redirect: g.cfg.LoginPath, Notice: msgGitHubNoCode}
	}

	if !g.claimCode(code) {
		if g.store.Session().IsAuthenticated {
			return BridgeResult{Redirect: g.cfg.LandingPath, Authenticated: true}
		}
		return BridgeResult{Redirect: g.cfg.LoginPath}
	}

	resp, err := g.backend.GitHubLogin(ctx, code)
	if err != nil {
		g.logger.Info("GitHub code exchange failed", "error", err)
		return BridgeResult{Redirect: g.cfg.LoginPath, Notice: msgGitHubFailed}
	}
	if !resp.User.Present() {
		g.logger.Warn("GitHub code exchange returned no user")
		return BridgeResult{Redirect: g.cfg.LoginPath, Notice: msgGitHubFailed}
	}

	g.store.set(resp.User)
	g.logger.Info("GitHub login succeeded")
	return BridgeResult{Redirect: g.cfg.LandingPath, Notice: resp.Message, Authenticated: true}
}

// claimCode records code and reports whether it had not been seen before.
func (g *Gateway) claimCode(code string) bool {
	g.codesMu.Lock()
	defer g.codesMu.Unlock()
	if _, seen := g.codes[code]; seen {
		return false
	}
	if len(g.codes) >= maxRememberedGHCodes {
		clear(g.codes)
	}
	g.codes[code] = struct{}{}
	return true
}
