package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

type identityKey struct{}

// identityFrom владелец запроса, положенный authenticate
func identityFrom(ctx context.Context) entity.Identity {
	id, _ := ctx.Value(identityKey{}).(entity.Identity)
	return id
}

// authenticate требует заголовок Authorization: Bearer <token>
func (r *Router) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token, ok := bearerToken(req.Header.Get("Authorization"))
		if !ok {
			respondError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		who, err := r.verifier.Verify(req.Context(), token)
		switch {
		case errors.Is(err, port.ErrInvalidToken):
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		case err != nil:
			lgr.Logger.Error("token verification failed", lgr.Err(err))
			respondError(w, http.StatusInternalServerError, "Authentication failed")
			return
		}

		next(w, req.WithContext(context.WithValue(req.Context(), identityKey{}, who)))
	})
}

func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !identityFrom(req.Context()).IsAdmin() {
			respondError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, req)
	}
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
