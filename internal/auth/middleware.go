package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// HeaderUserID carries the owner id in development mode.
const HeaderUserID = "X-User-ID"

type ownerKey struct{}

// WithOwner stores ownerID in ctx.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom returns the owner id stored by the middleware.
func OwnerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerKey{}).(string)
	return id, ok && id != ""
}

// Resolver extracts the request owner. A nil Verifier means development
// mode: the owner is taken from the X-User-ID header unverified.
type Resolver struct {
	Verifier *Verifier
}

// Owner returns the owner id for r.
func (res Resolver) Owner(r *http.Request) (string, error) {
	if res.Verifier == nil {
		if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
			return id, nil
		}
		return "", ErrInvalidToken
	}

	token := bearer(r)
	if token == "" {
		// Browsers cannot set headers on websocket upgrades.
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return "", ErrInvalidToken
	}
	return res.Verifier.Verify(token)
}

// Middleware rejects requests without a resolvable owner and stores the owner
// in the request context.
func (res Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := res.Owner(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthorized",
				"message": "Please sign in to continue.",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
