package handler

import (
	"net/http"

	"github.com/youjaegwon/coinwatch/internal/http/middleware"
	"github.com/youjaegwon/coinwatch/internal/http/response"
	"github.com/youjaegwon/coinwatch/internal/security"
	"github.com/youjaegwon/coinwatch/internal/service"
)

type UserHandler struct {
	auth     *service.AuthService
	sessions *service.SessionService
}

func NewUserHandler(auth *service.AuthService, sessions *service.SessionService) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(w, r)
	if !ok {
		return
	}
	user, err := h.auth.GetUser(userID)
	if err != nil {
		response.AppError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, userView{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role})
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := subjectUserID(w, r)
	if !ok {
		return
	}
	views, err := h.sessions.ListActiveSessions(userID)
	if err != nil {
		response.AppError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func subjectUserID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return 0, false
	}
	userID, err := security.UserIDFromSubject(claims.Subject)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return 0, false
	}
	return userID, true
}
