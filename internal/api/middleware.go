package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/models"
)

type contextKey int

const principalContextKey contextKey = iota

// authMiddleware resolves the bearer credential `Authorization: TOKEN
// <api_key>` into a principal. A malformed header is rejected
// UNAUTHENTICATED before any DB lookup (SUPPLEMENT, grounded on
// original_source/src/api/auth.py, which does the same rather than
// falling through to a failed balance lookup).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "TOKEN "
		if !strings.HasPrefix(header, prefix) {
			writeErr(w, apperr.New(apperr.KindUnauthenticated, "missing or malformed Authorization header"))
			return
		}
		apiKey, err := uuid.Parse(strings.TrimPrefix(header, prefix))
		if err != nil {
			writeErr(w, apperr.New(apperr.KindUnauthenticated, "malformed api key"))
			return
		}

		principal, err := s.principals.GetByAPIKey(r.Context(), s.db, apiKey)
		if err != nil {
			writeErr(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware requires the principal resolved by authMiddleware to
// hold the ADMIN role.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFromContext(r.Context())
		if principal.Role != models.RoleAdmin {
			writeErr(w, apperr.New(apperr.KindForbidden, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFromContext(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalContextKey).(*models.Principal)
	return p
}
