package handler

import (
	"context"
	"errors"
	"net/http"

	"crm-backend/internal/token"
)

type contextKey string

const claimsContextKey contextKey = "auth_claims"

// requireAccessToken gates protected routes behind a valid, unrevoked
// access token. Verified claims are stashed in the request context.
func (h *AuthHandler) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			h.respondWithError(w, http.StatusUnauthorized, errors.New("missing bearer token"), "Authentication required")
			return
		}

		claims, err := h.verifier.Verify(raw, "access")
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, err, "Invalid token")
			return
		}

		if h.revocations != nil && h.revocations.IsRevoked(r.Context(), claims.SessionID) {
			h.respondWithError(w, http.StatusUnauthorized, errors.New("session revoked"), "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the claims stored by requireAccessToken. Only valid on
// routes behind that middleware.
func claimsFrom(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*token.Claims)
	if claims == nil {
		return &token.Claims{}
	}
	return claims
}
