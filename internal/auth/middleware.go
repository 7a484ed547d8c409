package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/eventhub-app/eventhub/internal/model"
)

type contextKey struct{}

// identityKey stores the authenticated identity on the request context.
var identityKey = contextKey{}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity set by RequireAuth.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}

// RequireAuth rejects requests without a valid bearer token and puts the
// decoded identity on the request context. Protected handlers run only
// after this succeeds, so no mutation can precede authentication.
func (a *Authenticator) RequireAuth(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("authentication failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "invalid or expired token"
	if errors.Is(err, ErrMissingToken) {
		msg = "access denied: no token provided"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: msg})
}
