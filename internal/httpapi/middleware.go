package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/telemetry"
	apperrors "github.com/MeGustas-5427/powermoniter/pkg/errors"
)

type contextKey string

const userIDKey contextKey = "user_id"

// requireAuth validates the bearer token and stashes the caller's user id
// in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, apperrors.Unauthorized("missing bearer token"))
			return
		}
		sub, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, apperrors.Unauthorized("invalid or expired token"))
			return
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			writeError(w, apperrors.Unauthorized("invalid token subject"))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

func observeRequest(endpoint string, status int, d time.Duration) {
	telemetry.ObserveAPI(endpoint, strconv.Itoa(status), d.Seconds())
}
