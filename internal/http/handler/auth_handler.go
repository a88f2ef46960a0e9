package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/youjaegwon/coinwatch/internal/http/middleware"
	"github.com/youjaegwon/coinwatch/internal/http/response"
	"github.com/youjaegwon/coinwatch/internal/observability"
	"github.com/youjaegwon/coinwatch/internal/repository"
	"github.com/youjaegwon/coinwatch/internal/security"
	"github.com/youjaegwon/coinwatch/internal/service"
)

type AuthHandler struct {
	auth   *service.AuthService
	resets *service.PasswordResetService
}

func NewAuthHandler(auth *service.AuthService, resets *service.PasswordResetService) *AuthHandler {
	return &AuthHandler{auth: auth, resets: resets}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type userView struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", missingFields(req.Email == "", req.Password == ""))
		return
	}
	user, err := h.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			observability.RecordAuthRegister("conflict")
			response.Error(w, r, http.StatusConflict, "CONFLICT", "email already registered", nil)
			return
		}
		observability.RecordAuthRegister("error")
		response.AppError(w, r, err)
		return
	}
	observability.RecordAuthRegister("success")
	observability.Audit(r, "auth.register", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, map[string]any{"user": userView{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPairView struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", missingFields(req.Email == "", req.Password == ""))
		return
	}
	result, err := h.auth.Login(r.Context(), req.Email, req.Password, clientMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			observability.RecordAuthLogin("invalid_credentials")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
			return
		}
		observability.RecordAuthLogin("error")
		response.AppError(w, r, err)
		return
	}
	observability.RecordAuthLogin("success")
	observability.Audit(r, "auth.login", "user_id", result.User.ID)
	response.JSON(w, r, http.StatusOK, tokenPairView{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}
	if req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required", nil)
		return
	}
	result, err := h.auth.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshTokenRevoked):
			// Reuse of a rotated token: the caller must re-authenticate.
			observability.RecordAuthRefresh("revoked")
			observability.Audit(r, "auth.refresh_reuse_detected")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token revoked", nil)
		case errors.Is(err, service.ErrRefreshTokenExpired):
			observability.RecordAuthRefresh("expired")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "refresh token expired", nil)
		case errors.Is(err, service.ErrInvalidRefreshToken):
			observability.RecordAuthRefresh("invalid")
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
		default:
			observability.RecordAuthRefresh("error")
			response.AppError(w, r, err)
		}
		return
	}
	observability.RecordAuthRefresh("success")
	response.JSON(w, r, http.StatusOK, tokenPairView{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken})
}

// Logout always answers ok. Revocation is idempotent and unknown tokens are
// indistinguishable from revoked ones by design.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RefreshToken != "" {
		if err := h.auth.Logout(req.RefreshToken); err != nil {
			observability.RecordAuthLogout("error")
			response.AppError(w, r, err)
			return
		}
	}
	observability.RecordAuthLogout("success")
	response.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	userID, err := security.UserIDFromSubject(claims.Subject)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return
	}
	count, err := h.auth.LogoutAll(userID)
	if err != nil {
		observability.RecordAuthLogout("error")
		response.AppError(w, r, err)
		return
	}
	observability.RecordAuthLogout("success")
	observability.Audit(r, "auth.logout_all", "user_id", userID, "revoked", count)
	response.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

type forgotRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) PasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}
	if req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email is required", nil)
		return
	}
	if err := h.resets.Request(r.Context(), req.Email); err != nil {
		response.AppError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password_forgot")
	response.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "token and new_password are required", nil)
		return
	}
	if err := h.resets.Reset(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrResetInvalid) {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid or expired reset token", nil)
			return
		}
		response.AppError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password_reset")
	response.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func clientMeta(r *http.Request) service.TokenMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.TokenMeta{UserAgent: r.UserAgent(), IP: ip}
}

func missingFields(email, password bool) map[string]string {
	details := map[string]string{}
	if email {
		details["email"] = "required"
	}
	if password {
		details["password"] = "required"
	}
	return details
}
