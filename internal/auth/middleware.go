package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/observability"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// PrincipalFromContext names the caller for logs; it is "anonymous" on routes
// served without authentication.
func PrincipalFromContext(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok && identity.Principal != "" {
		return identity.Principal
	}
	return "anonymous"
}

// Middleware admits requests whose X-API-Key header or bearer token is known
// to validator and stores the matching Identity in the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			apiKey, source := credentialFrom(r)
			if apiKey == "" {
				reject(ctx, logger, w, r, "missing API key", source)
				return
			}

			identity, ok := validator.Validate(ctx, apiKey)
			if !ok {
				reject(ctx, logger, w, r, "invalid API key", source)
				return
			}

			logger.DebugContext(ctx, "caller authenticated",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("principal", identity.Principal),
				slog.String("credential", source),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// credentialFrom prefers X-API-Key and falls back to an Authorization bearer
// token with a case-insensitive scheme. source says which header was used.
func credentialFrom(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "x-api-key"
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "none"
	}
	return strings.TrimSpace(token), "bearer"
}

func reject(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, r *http.Request, reason, source string) {
	logger.WarnContext(ctx, "request rejected",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("route", r.Method+" "+r.URL.Path),
		slog.String("reason", reason),
		slog.String("credential", source),
	)
	w.Header().Set("WWW-Authenticate", `Bearer realm="askdb"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    reason,
		"retryable":  false,
		"context":    nil,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
