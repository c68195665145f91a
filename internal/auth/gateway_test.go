package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/agro-solar-web/internal/backend"
	"github.com/ashureev/agro-solar-web/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeBackend records calls and returns canned responses.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	check     func() (*backend.AuthStatus, error)
	login     func(domain.Credentials) (*backend.LoginResponse, error)
	signup    func(domain.Registration) error
	logout    func() error
	google    func(string) (*backend.LoginResponse, error)
	githubFor func(string) (*backend.LoginResponse, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int)}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) CheckAuth(context.Context) (*backend.AuthStatus, error) {
	f.record("check")
	if f.check == nil {
		return &backend.AuthStatus{}, nil
	}
	return f.check()
}

func (f *fakeBackend) Login(_ context.Context, creds domain.Credentials) (*backend.LoginResponse, error) {
	f.record("login")
	return f.login(creds)
}

func (f *fakeBackend) Signup(_ context.Context, reg domain.Registration) error {
	f.record("signup")
	return f.signup(reg)
}

func (f *fakeBackend) Logout(context.Context) error {
	f.record("logout")
	if f.logout == nil {
		return nil
	}
	return f.logout()
}

func (f *fakeBackend) GoogleLogin(_ context.Context, credential string) (*backend.LoginResponse, error) {
	f.record("google")
	return f.google(credential)
}

func (f *fakeBackend) GitHubLogin(_ context.Context, code string) (*backend.LoginResponse, error) {
	f.record("github")
	return f.githubFor(code)
}

func newTestGateway(b Backend) (*Gateway, *Store) {
	store := NewStore()
	return NewGateway(store, b, Config{}, testLogger), store
}

func loggedIn(user string) func(domain.Credentials) (*backend.LoginResponse, error) {
	return func(domain.Credentials) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{User: domain.UserProfile(user)}, nil
	}
}

func TestStoreStartsLoading(t *testing.T) {
	s := NewStore()
	sess := s.Session()
	assert.True(t, sess.Loading)
	assert.False(t, sess.IsAuthenticated)
	assert.False(t, sess.User.Present())
}

func TestStoreSetThenClear(t *testing.T) {
	users := []string{`{"id":1}`, `{"id":2,"name":"Farmer"}`, `"opaque"`}
	for _, u := range users {
		s := NewStore()
		s.set(domain.UserProfile(u))
		require.True(t, s.Session().IsAuthenticated)
		s.clear()
		sess := s.Session()
		assert.False(t, sess.IsAuthenticated)
		assert.False(t, sess.User.Present())
	}
}

func TestStoreSessionIsACopy(t *testing.T) {
	s := NewStore()
	s.set(domain.UserProfile(`{"id":1}`))
	sess := s.Session()
	sess.User[2] = 'X'
	assert.JSONEq(t, `{"id":1}`, string(s.Session().User))
}

func TestCheckSessionAuthenticated(t *testing.T) {
	b := newFakeBackend()
	b.check = func() (*backend.AuthStatus, error) {
		return &backend.AuthStatus{Authenticated: true, User: domain.UserProfile(`{"id":1}`)}, nil
	}
	g, store := newTestGateway(b)

	g.CheckSession(context.Background())

	sess := store.Session()
	assert.False(t, sess.Loading)
	assert.True(t, sess.IsAuthenticated)
	assert.JSONEq(t, `{"id":1}`, string(sess.User))
}

func TestCheckSessionAlwaysClearsLoading(t *testing.T) {
	tests := []struct {
		name  string
		check func() (*backend.AuthStatus, error)
	}{
		{"network", func() (*backend.AuthStatus, error) { return nil, backend.ErrNetwork }},
		{"status", func() (*backend.AuthStatus, error) { return nil, &backend.StatusError{Status: 500} }},
		{"malformed", func() (*backend.AuthStatus, error) { return nil, backend.ErrMalformed }},
		{"unauthenticated", func() (*backend.AuthStatus, error) { return &backend.AuthStatus{}, nil }},
		{"authenticated without user", func() (*backend.AuthStatus, error) {
			return &backend.AuthStatus{Authenticated: true}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.check = tt.check
			g, store := newTestGateway(b)

			g.CheckSession(context.Background())

			sess := store.Session()
			assert.False(t, sess.Loading)
			assert.False(t, sess.IsAuthenticated)
		})
	}
}

func TestCheckSessionRunsOnce(t *testing.T) {
	b := newFakeBackend()
	g, _ := newTestGateway(b)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.CheckSession(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, b.count("check"))
}

func TestLoginSuccessAgainstBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, backend.PathLogin, r.URL.Path)
		_, _ = io.WriteString(w, `{"user":{"id":1,"name":"Farmer"}}`)
	}))
	defer srv.Close()
	client, err := backend.New(srv.URL)
	require.NoError(t, err)
	g, store := newTestGateway(client)

	res := g.Login(context.Background(), domain.Credentials{Username: "farmer1", Password: "secret"})

	assert.Equal(t, LoginResult{Success: true}, res)
	sess := store.Session()
	assert.True(t, sess.IsAuthenticated)
	assert.JSONEq(t, `{"id":1,"name":"Farmer"}`, string(sess.User))
}

func TestLoginUnauthorizedLeavesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Invalid credentials"}`)
	}))
	defer srv.Close()
	client, err := backend.New(srv.URL)
	require.NoError(t, err)
	g, store := newTestGateway(client)
	before := store.Session()

	res := g.Login(context.Background(), domain.Credentials{Username: "farmer1", Password: "wrong"})

	assert.Equal(t, LoginResult{Success: false, Error: "Invalid credentials"}, res)
	assert.Equal(t, before, store.Session())
}

func TestLoginFallbackMessage(t *testing.T) {
	b := newFakeBackend()
	b.login = func(domain.Credentials) (*backend.LoginResponse, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	g, store := newTestGateway(b)

	res := g.Login(context.Background(), domain.Credentials{Username: "a", Password: "b"})

	assert.Equal(t, "Login failed", res.Error)
	assert.False(t, store.Session().IsAuthenticated)
}

func TestLoginWithoutUserIsFailure(t *testing.T) {
	b := newFakeBackend()
	b.login = loggedIn("")
	g, store := newTestGateway(b)

	res := g.Login(context.Background(), domain.Credentials{Username: "a", Password: "b"})

	assert.False(t, res.Success)
	assert.False(t, store.Session().IsAuthenticated)
}

func TestLogout(t *testing.T) {
	b := newFakeBackend()
	b.login = loggedIn(`{"id":1}`)
	g, store := newTestGateway(b)
	require.True(t, g.Login(context.Background(), domain.Credentials{}).Success)

	require.NoError(t, g.Logout(context.Background()))

	sess := store.Session()
	assert.False(t, sess.IsAuthenticated)
	assert.False(t, sess.User.Present())
}

func TestLogoutFailureKeepsSession(t *testing.T) {
	b := newFakeBackend()
	b.login = loggedIn(`{"id":1}`)
	b.logout = func() error { return backend.ErrNetwork }
	g, store := newTestGateway(b)
	require.True(t, g.Login(context.Background(), domain.Credentials{}).Success)

	err := g.Logout(context.Background())

	assert.ErrorIs(t, err, backend.ErrNetwork)
	assert.True(t, store.Session().IsAuthenticated)
}

func signupForm() domain.SignupForm {
	return domain.SignupForm{
		FullName:        "Ramesh Patel",
		Username:        "farmer1",
		Phone:           "9876543210",
		Email:           "ramesh@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		State:           "Gujarat",
		District:        "Ahmedabad",
		Village:         "Village1",
		AgreeTerms:      true,
	}
}

func TestSignupComplete(t *testing.T) {
	b := newFakeBackend()
	var registered domain.Registration
	var loginCreds domain.Credentials
	b.signup = func(reg domain.Registration) error {
		registered = reg
		return nil
	}
	b.login = func(c domain.Credentials) (*backend.LoginResponse, error) {
		loginCreds = c
		return &backend.LoginResponse{User: domain.UserProfile(`{"id":7}`)}, nil
	}
	g, store := newTestGateway(b)

	res := g.Signup(context.Background(), signupForm())

	assert.Equal(t, SignupResult{Outcome: SignupComplete}, res)
	assert.Equal(t, "farmer1", registered.Username)
	assert.Equal(t, domain.Credentials{Username: "farmer1", Password: "secret1"}, loginCreds)
	assert.True(t, store.Session().IsAuthenticated)
}

func TestSignupInvalidFormNeverCallsBackend(t *testing.T) {
	b := newFakeBackend()
	g, _ := newTestGateway(b)
	form := signupForm()
	form.Phone = "123"

	res := g.Signup(context.Background(), form)

	assert.Equal(t, SignupRejected, res.Outcome)
	assert.Equal(t, "Phone number must be 10 digits", res.Error)
	assert.Zero(t, b.count("signup"))
	assert.Zero(t, b.count("login"))
}

func TestSignupRejectedByBackend(t *testing.T) {
	b := newFakeBackend()
	b.signup = func(domain.Registration) error {
		return &backend.StatusError{Status: http.StatusConflict, Message: "Username already exists"}
	}
	g, store := newTestGateway(b)

	res := g.Signup(context.Background(), signupForm())

	assert.Equal(t, SignupResult{Outcome: SignupRejected, Error: "Username already exists"}, res)
	assert.False(t, res.AccountCreated())
	assert.Zero(t, b.count("login"))
	assert.False(t, store.Session().IsAuthenticated)
}

func TestSignupCreatedButLoginFailed(t *testing.T) {
	b := newFakeBackend()
	b.signup = func(domain.Registration) error { return nil }
	b.login = func(domain.Credentials) (*backend.LoginResponse, error) {
		return nil, &backend.StatusError{Status: http.StatusServiceUnavailable}
	}
	g, store := newTestGateway(b)

	res := g.Signup(context.Background(), signupForm())

	assert.Equal(t, SignupCreatedLoginFailed, res.Outcome)
	assert.True(t, res.AccountCreated())
	assert.Equal(t, "Login failed", res.Error)
	assert.False(t, store.Session().IsAuthenticated)
}

func TestSignupOutcomeText(t *testing.T) {
	text, err := SignupCreatedLoginFailed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "created_login_failed", string(text))
}
