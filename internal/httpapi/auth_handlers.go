package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MeGustas-5427/powermoniter/internal/auth"
	apperrors "github.com/MeGustas-5427/powermoniter/pkg/errors"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "username and password are required"))
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		writeError(w, apperrors.New(http.StatusUnauthorized, apperrors.CodeAccountLocked, "account temporarily locked, try again later"))
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, apperrors.Unauthorized("invalid username or password"))
	case err != nil:
		writeError(w, err)
	default:
		writeData(w, http.StatusOK, map[string]any{
			"access_token": sess.Token,
			"token_type":   "Bearer",
			"expires_at":   sess.ExpiresAt.Format(time.RFC3339),
			"user": map[string]any{
				"id":            sess.User.ID,
				"username":      sess.User.Username,
				"last_login_at": sess.User.LastLoginAt,
			},
		})
	}
}
