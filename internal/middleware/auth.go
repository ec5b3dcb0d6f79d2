package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
	"github.com/josh-kwaku/credit-ledger/internal/handler"
	"github.com/josh-kwaku/credit-ledger/internal/logging"
)

const serviceTokenHeader = "X-Service-Token"

// Auth admits end users carrying a valid bearer JWT.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("rejected bearer token", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithUserID(r.Context(), claims.UserID)
			ctx, _ = logging.With(ctx, "user_id", claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceToken admits collaborators and operators presenting the shared
// service token.
func ServiceToken(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.ValidServiceToken(r.Header.Get(serviceTokenHeader), expected) {
				logging.FromContext(r.Context()).Warn("rejected service call", "path", r.URL.Path)
				handler.RespondAppError(w, handler.ErrInvalidServiceAuth, nil)
				return
			}

			ctx := auth.ContextWithService(r.Context())
			if id := r.PathValue("id"); id != "" {
				ctx, _ = logging.With(ctx, "user_id", id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
