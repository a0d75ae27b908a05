package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/barledger/internal/platform/httpx"
	"github.com/odyssey-erp/barledger/internal/shared"
)

type identityContextKey struct{}

// ContextWithIdentity stores the resolved identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext extracts the identity resolved by Middleware.Require.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}

// Middleware resolves the session principal into an Identity.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require rejects anonymous requests and attaches the caller identity.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, tenantID, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		id, err := m.Service.WhoAmI(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("resolve identity", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		if id.TenantID != tenantID {
			// tenant moved since login; force a new session
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}
