package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"uspguard.org/internal/audit"
	"uspguard.org/internal/auth"
	"uspguard.org/internal/compliance"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth verifies the bearer token and resolves it against the user
// store. The stored user's role, not the one stamped in the token, goes
// into the request context. It is a no-op when authentication is disabled.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || !a.authEnabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		id, status, err := a.authenticate(r)
		if err != nil {
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="uspguard", error="invalid_token"`)
			}
			writeError(w, r, status, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

// authenticate resolves the request's bearer token to a stored user. On
// failure it returns the status to answer with.
func (a *API) authenticate(r *http.Request) (auth.Identity, int, error) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return auth.Identity{}, http.StatusUnauthorized, err
	}
	if a.signer == nil {
		return auth.Identity{}, http.StatusServiceUnavailable, errors.New("authentication is not configured")
	}
	id, err := a.signer.Verify(token)
	if err != nil {
		return auth.Identity{}, http.StatusUnauthorized, errors.New("invalid token")
	}
	u, err := a.engine.GetUser(r.Context(), id.UserID)
	if errors.Is(err, compliance.ErrNotFound) {
		return auth.Identity{}, http.StatusUnauthorized, errors.New("unknown user")
	}
	if err != nil {
		return auth.Identity{}, http.StatusInternalServerError, errors.New("authentication error")
	}
	return auth.Identity{UserID: u.ID, Role: u.Role}, http.StatusOK, nil
}

// RequireRole rejects requests whose identity holds none of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.IdentityFromContext(r.Context()); !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="uspguard"`)
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if !auth.HasAnyRole(r.Context(), roles...) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="uspguard", error="insufficient_scope"`)
				_ = audit.LogEvent(r.Context(), "auth.write.denied", map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				writeError(w, r, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writer guards a mutating handler with the writer roles when auth is on.
func (a *API) writer(h http.HandlerFunc) http.Handler {
	if !a.authEnabled {
		return h
	}
	return RequireRole(auth.WriterRoles...)(h)
}

// requestActor attributes a mutation to the authenticated user. Requests without
// an identity (auth disabled) act as the system.
func requestActor(ctx context.Context) compliance.Actor {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return compliance.ActorFor(id.UserID)
	}
	return compliance.System
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
