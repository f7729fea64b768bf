package auth

import (
	"context"
	"net/http"

	"paintball-ticketing/internal/apperr"
	"paintball-ticketing/internal/logger"
	"paintball-ticketing/internal/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware rejects requests without a valid bearer token.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteError(w, log, apperr.Unauthorized(err.Error()))
				return
			}

			id, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH", err.Error())
				utils.WriteError(w, log, apperr.Unauthorized("invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

// RequireRole must be mounted after Middleware. Admins pass every role check.
func RequireRole(log *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := Role(r.Context())
			if role == RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, want := range roles {
				if role == want {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.LogSecurity("FORBIDDEN", UserID(r.Context())+" attempted "+r.Method+" "+r.URL.Path)
			utils.WriteError(w, log, apperr.Forbidden("insufficient role for this action"))
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id.UserID
	}
	return ""
}

func Role(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id.Role
	}
	return ""
}
