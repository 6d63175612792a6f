package httptransport

import (
	"net/http"
	"time"

	jwttoken "userapi/internal/jwt_token"
)

const (
	accessCookieName  = "access"
	refreshCookieName = "refresh"
)

func (h *Handler) setAuthCookies(w http.ResponseWriter, pair jwttoken.TokenPair) {
	http.SetCookie(w, h.authCookie(accessCookieName, pair.Access, h.cfg.JWT.AccessLifetime))
	http.SetCookie(w, h.authCookie(refreshCookieName, pair.Refresh, h.cfg.JWT.RefreshLifetime))
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.authCookie(accessCookieName, "", -time.Second))
	http.SetCookie(w, h.authCookie(refreshCookieName, "", -time.Second))
}

func (h *Handler) authCookie(name, value string, lifetime time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
