package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/agro-solar-web/internal/config"
	"github.com/ashureev/agro-solar-web/internal/identity"
)

func TestSessionBootstrapAnonymous(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()

	body := decodeBody(t, b.get("/api/session"))
	assert.Equal(t, false, body["isAuthenticated"])
	assert.Equal(t, false, body["loading"])
	assert.Equal(t, 1, env.registry.Len())
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()

	resp := b.get("/api/dashboard")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = b.postJSON("/api/auth/login", map[string]string{"username": "farmer1", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Invalid credentials", body["error"])
	assert.Equal(t, false, body["success"])

	resp = b.postJSON("/api/auth/login", map[string]string{"username": "farmer1", "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "/dashboard", body["redirect"])

	resp = b.get("/api/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, map[string]interface{}{"username": "farmer1"}, body["user"])
}

func TestEvictedDeviceStartsOver(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()
	b.login()

	env.registry.Evict(deviceCookie(t, b))
	b.settle()

	body := decodeBody(t, b.get("/api/session"))
	assert.Equal(t, false, body["isAuthenticated"])
	assert.Equal(t, false, body["loading"])
}

func TestDevicesDoNotShareSessions(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	alice := env.newBrowser(t)
	alice.settle()
	alice.login()

	bob := env.newBrowser(t)
	bob.settle()

	assert.Equal(t, http.StatusOK, alice.get("/api/dashboard").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, bob.get("/api/dashboard").StatusCode)
}

func TestLogout(t *testing.T) {
	fb := newFakeBackend(t)
	env := newTestEnv(t, fb)
	b := env.newBrowser(t)
	b.settle()
	b.login()

	fb.failLogout.Store(true)
	resp := b.postJSON("/api/auth/logout", struct{}{})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, http.StatusOK, b.get("/api/dashboard").StatusCode, "failed logout keeps the session")

	fb.failLogout.Store(false)
	resp = b.postJSON("/api/auth/logout", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "/", body["redirect"])
	assert.Equal(t, http.StatusUnauthorized, b.get("/api/dashboard").StatusCode)
}

func validSignup(username string) map[string]interface{} {
	return map[string]interface{}{
		"fullName":        "Asha Patel",
		"username":        username,
		"phone":           "9876543210",
		"email":           "asha@example.com",
		"password":        "secret123",
		"confirmPassword": "secret123",
		"state":           "Gujarat",
		"district":        "Surat",
		"village":         "Village3",
		"agreeTerms":      true,
	}
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()

	invalid := validSignup("asha")
	invalid["phone"] = "123"
	resp := b.postJSON("/api/auth/signup", invalid)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Phone number must be 10 digits", decodeBody(t, resp)["error"])

	resp = b.postJSON("/api/auth/signup", validSignup("taken"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "rejected", body["outcome"])
	assert.Equal(t, "Username already exists", body["error"])

	resp = b.postJSON("/api/auth/signup", validSignup("asha"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "complete", body["outcome"])
	assert.Equal(t, "/dashboard", body["redirect"])
	assert.Equal(t, http.StatusOK, b.get("/api/dashboard").StatusCode)
}

func TestSignupCreatedButLoginFailed(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()

	// The fake backend only accepts secret123 at login.
	form := validSignup("asha")
	form["password"] = "another1"
	form["confirmPassword"] = "another1"

	resp := b.postJSON("/api/auth/signup", form)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "created_login_failed", body["outcome"])
	assert.Equal(t, "/login", body["redirect"])
	assert.Equal(t, http.StatusUnauthorized, b.get("/api/dashboard").StatusCode)
}

func TestGoogleLogin(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "1234567890",
		"email": "farmer@example.com",
		"name":  "Farmer Joe",
		"iss":   "https://accounts.google.com",
	}).SignedString([]byte("not-googles-key"))
	require.NoError(t, err)

	resp := b.postJSON("/api/auth/oauth/google", map[string]string{"credential": token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	ident, ok := body["identity"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "farmer@example.com", ident["email"])

	session := decodeBody(t, b.get("/api/session"))
	assert.Equal(t, map[string]interface{}{"username": "google-user"}, session["user"])
}

func TestGoogleLoginMissingCredential(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)
	b.settle()

	resp := b.postJSON("/api/auth/oauth/google", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGitHubStart(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t))
	b := env.newBrowser(t)

	resp := b.get("/api/auth/oauth/github")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", loc.Host)
	assert.Equal(t, "gh-client", loc.Query().Get("client_id"))
	assert.Equal(t, "http://localhost/github/callback", loc.Query().Get("redirect_uri"))
}

func TestGitHubStartUnconfigured(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t), func(c *config.Config) { c.OAuth.GitHubClientID = "" })
	b := env.newBrowser(t)

	assert.Equal(t, http.StatusServiceUnavailable, b.get("/api/auth/oauth/github").StatusCode)
}

func TestGitHubCallback(t *testing.T) {
	fb := newFakeBackend(t)
	env := newTestEnv(t, fb)
	b := env.newBrowser(t)
	b.settle()

	resp := b.get("/github/callback?error=access_denied")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?notice=GitHub+login+cancelled.", resp.Header.Get("Location"))
	assert.Equal(t, int32(0), fb.githubCalls.Load())

	resp = b.get("/github/callback")
	assert.Equal(t, "/login?notice=No+authorization+code+returned+from+GitHub.", resp.Header.Get("Location"))

	resp = b.get("/github/callback?code=bad-code")
	assert.Equal(t, "/login?notice=GitHub+login+failed", resp.Header.Get("Location"))

	resp = b.get("/github/callback?code=good-code")
	assert.Equal(t, "/dashboard?notice=Logged+in+with+GitHub", resp.Header.Get("Location"))
	assert.Equal(t, int32(2), fb.githubCalls.Load())

	// A reload of the callback page does not exchange the code again.
	resp = b.get("/github/callback?code=good-code")
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	assert.Equal(t, int32(2), fb.githubCalls.Load())
}

func TestWithNotice(t *testing.T) {
	assert.Equal(t, "/login", withNotice("/login", ""))
	assert.Equal(t, "/login?notice=a+b", withNotice("/login", "a b"))
	assert.Equal(t, "/login?next=x&notice=hi", withNotice("/login?next=x", "hi"))
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t, newFakeBackend(t), func(c *config.Config) { c.AuthRatePerMinute = 1 })
	b := env.newBrowser(t)
	b.settle()

	creds := map[string]string{"username": "farmer1", "password": "wrong"}
	assert.Equal(t, http.StatusUnauthorized, b.postJSON("/api/auth/login", creds).StatusCode)

	resp := b.postJSON("/api/auth/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func deviceCookie(t *testing.T, b *browser) string {
	t.Helper()
	u, err := url.Parse(b.env.srv.URL)
	require.NoError(t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == identity.DeviceCookieName {
			return c.Value
		}
	}
	t.Fatal("device cookie not set")
	return ""
}
