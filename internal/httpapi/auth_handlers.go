package httpapi

import (
	"net/http"
	"strings"
	"time"

	"uspguard.org/internal/audit"
	"uspguard.org/internal/auth"
)

// bootstrapKeyHeader carries the operator key accepted by the token
// endpoint in place of an admin bearer token.
const bootstrapKeyHeader = "X-Bootstrap-Key"

type tokenRequest struct {
	Username string `json:"username"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken issues a session token for an existing user. The caller
// must present the bootstrap key or an admin token; the token carries the
// user's stored role.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if a.signer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "token issuance is not configured")
		return
	}
	r, via, ok := a.authorizeIssuer(w, r)
	if !ok {
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeError(w, r, http.StatusBadRequest, "username is required")
		return
	}

	u, err := a.engine.GetUserByUsername(r.Context(), username)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}
	if !auth.KnownRole(u.Role) {
		writeError(w, r, http.StatusUnprocessableEntity, "user has no assignable role")
		return
	}

	token, expiresAt, err := a.signer.Issue(auth.Identity{UserID: u.ID, Role: u.Role}, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"subject_id": u.ID,
		"username":   u.Username,
		"role":       u.Role,
		"via":        via,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		UserID:    u.ID,
		Role:      u.Role,
		ExpiresAt: expiresAt,
	})
}

// authorizeIssuer accepts the bootstrap key header or an admin bearer
// token. An admin caller's identity is attached to the returned request so
// the issuance is audited against them.
func (a *API) authorizeIssuer(w http.ResponseWriter, r *http.Request) (*http.Request, string, bool) {
	if key := r.Header.Get(bootstrapKeyHeader); key != "" {
		if auth.KeyMatches(a.bootstrapKey, key) {
			return r, "bootstrap_key", true
		}
		_ = audit.LogEvent(r.Context(), "auth.token.denied", map[string]any{"reason": "bad bootstrap key"})
		writeError(w, r, http.StatusUnauthorized, "invalid bootstrap key")
		return r, "", false
	}

	id, status, err := a.authenticate(r)
	if err != nil {
		if status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer realm="uspguard"`)
		}
		writeError(w, r, status, err.Error())
		return r, "", false
	}
	r = r.WithContext(auth.ContextWithIdentity(r.Context(), id))
	if id.Role != auth.RoleAdmin {
		w.Header().Set("WWW-Authenticate", `Bearer realm="uspguard", error="insufficient_scope"`)
		_ = audit.LogEvent(r.Context(), "auth.token.denied", map[string]any{"reason": "not admin"})
		writeError(w, r, http.StatusForbidden, "only admins may issue tokens")
		return r, "", false
	}
	return r, "admin", true
}
