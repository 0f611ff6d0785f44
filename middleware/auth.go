package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"go.uber.org/zap"
)

type contextKey string

const ClerkIDKey contextKey = "clerkID"

// TokenVerifier returns the subject of a valid session token.
type TokenVerifier func(ctx context.Context, token string) (string, error)

// ClerkVerifier verifies tokens against the key set via clerk.SetKey.
func ClerkVerifier(ctx context.Context, token string) (string, error) {
	claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ClerkAuth rejects requests without a valid bearer token and stores the clerk user ID in the context.
func ClerkAuth(verify TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				authRejections.WithLabelValues("missing_header").Inc()
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || token == "" {
				authRejections.WithLabelValues("bad_format").Inc()
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization format. Use 'Bearer <token>'")
				return
			}

			subject, err := verify(r.Context(), token)
			if err != nil {
				authRejections.WithLabelValues("invalid_token").Inc()
				logger.Debug("token_verification_failed", zap.String("path", r.URL.Path), zap.Error(err))
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClerkIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetClerkID(ctx context.Context) (string, bool) {
	clerkID, ok := ctx.Value(ClerkIDKey).(string)
	return clerkID, ok && clerkID != ""
}

// WithClerkID is used by tests and internal callers that already know the user.
func WithClerkID(ctx context.Context, clerkID string) context.Context {
	return context.WithValue(ctx, ClerkIDKey, clerkID)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
