package httptransport

import (
	"net/http"

	"github.com/google/uuid"

	"userapi/internal/identity"
	"userapi/pkg/apperrors"
)

type signupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	NationalCode string `json:"national_code"`
	Mobile       string `json:"mobile"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Signup(r.Context(), identity.SignupInput{
		Email:        req.Email,
		Password:     req.Password,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		NationalCode: req.NationalCode,
		Mobile:       req.Mobile,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	pair, err := h.tokens.GeneratePair(user.ID, user.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if h.loginLimiter != nil {
		h.loginLimiter.Reset(r.Context(), clientAddr(r))
	}
	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, _ *http.Request) {
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Logged out."})
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	// The body is optional; the refresh cookie alone is enough.
	_ = decodeJSON(r, &req)

	claims, err := h.refreshClaims(r, req.Refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, h.logger, apperrors.New(apperrors.CodeUnauthorized, "Invalid credentials."))
		return
	}
	user, err := h.users.Get(r.Context(), userID)
	if err != nil || !user.IsActive {
		writeError(w, h.logger, apperrors.New(apperrors.CodeUnauthorized, "Invalid credentials."))
		return
	}
	pair, err := h.tokens.GeneratePair(user.ID, user.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	// Unknown addresses get the same answer as known ones.
	writeJSON(w, http.StatusOK, map[string]string{
		"detail": "If the email exists, a reset code has been sent.",
	})
}

type passwordResetConfirmRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (h *Handler) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password has been reset."})
}

func (h *Handler) handleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, h.logger, apperrors.Validation("username", "This url param is required."))
		return
	}
	available, err := h.users.UsernameAvailable(r.Context(), username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}
