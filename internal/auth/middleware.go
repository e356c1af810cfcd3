package auth

import (
	"context"
	"net/http"
	"strings"

	libauth "github.com/umutdemirel/bookable/libs/auth"
)

type claimsKey struct{}

// Middleware guards the dashboard routes. Requests carry a Bearer token
// issued by the login endpoint; verified claims land in the request
// context for tenant scoping.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := libauth.ParseAndVerifyHS256(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, claims *libauth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func FromContext(ctx context.Context) (*libauth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*libauth.Claims)
	return claims, ok
}
