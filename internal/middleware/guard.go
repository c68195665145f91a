package middleware

import (
	"net/http"

	"github.com/ashureev/agro-solar-web/internal/auth"
)

// Decision is the route guard's verdict for a session.
type Decision int

const (
	// Placeholder means the session check has not finished yet.
	Placeholder Decision = iota
	// Redirect means the device is not logged in.
	Redirect
	// Allow means the guarded route may be served.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Decide maps a session to a guard decision. No redirect is decided while loading.
func Decide(s auth.Session) Decision {
	switch {
	case s.Loading:
		return Placeholder
	case !s.IsAuthenticated:
		return Redirect
	default:
		return Allow
	}
}

// SessionSource resolves the session view for a request.
type SessionSource func(r *http.Request) (auth.View, bool)

const placeholderPage = `<!doctype html><html><head><meta charset="utf-8"><title>Loading</title></head>` +
	`<body><div style="display:flex;justify-content:center;align-items:center;height:100vh">Loading...</div></body></html>`

// RequireSession guards page routes. While the session check runs it renders
// a placeholder that reloads itself; unauthenticated devices are sent to
// loginPath with 303 so the guarded page does not stay in history.
func RequireSession(src SessionSource, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch decide(src, r) {
			case Placeholder:
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Refresh", "1")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(placeholderPage))
			case Redirect:
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireSessionAPI guards JSON endpoints: 503 with Retry-After while the
// session check runs, 401 when not logged in.
func RequireSessionAPI(src SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch decide(src, r) {
			case Placeholder:
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusServiceUnavailable, "session_loading")
			case Redirect:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func decide(src SessionSource, r *http.Request) Decision {
	view, ok := src(r)
	if !ok {
		return Redirect
	}
	return Decide(view.Session())
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}
