package httptransport

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwttoken "userapi/internal/jwt_token"

	"userapi/internal/identity"
	"userapi/pkg/apperrors"
)

type contextKey int

const userContextKey contextKey = iota

// currentUser returns the authenticated user placed by the authenticate
// middleware. Handlers behind the middleware can assume it is present.
func currentUser(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey).(*identity.User)
	return user
}

// authenticate resolves the access token from the auth cookie, falling back
// to an Authorization bearer header, and loads the user onto the context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, h.logger, apperrors.New(apperrors.CodeUnauthorized,
				"Authentication credentials were not provided."))
			return
		}
		userID, err := h.tokens.ExtractUserID(token)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		user, err := h.users.Get(r.Context(), userID)
		if err != nil || !user.IsActive {
			writeError(w, h.logger, apperrors.New(apperrors.CodeUnauthorized, "Invalid credentials."))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(accessCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// requireAccess guards admin endpoints behind an access-list permission.
func (h *Handler) requireAccess(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r.Context())
			if !user.IsStaff || !user.HasAccess(permission) {
				writeError(w, h.logger, apperrors.New(apperrors.CodeForbidden,
					"You do not have permission to perform this action."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAccountable guards staff verification endpoints.
func (h *Handler) requireAccountable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r.Context())
		if !user.CanBeAccountable() {
			writeError(w, h.logger, apperrors.New(apperrors.CodeForbidden,
				"You do not have permission to perform this action."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// throttle caps credential attempts per client address. RealIP middleware has
// already rewritten RemoteAddr when a proxy header is present.
func (h *Handler) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.loginLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		res := h.loginLimiter.Allow(r.Context(), clientAddr(r))
		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"detail": "Too many attempts. Try again later.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// refreshClaims validates a refresh token from the cookie or request body.
func (h *Handler) refreshClaims(r *http.Request, bodyToken string) (*jwttoken.Claims, error) {
	token := bodyToken
	if token == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "Refresh token was not provided.")
	}
	return h.tokens.ValidateToken(token, jwttoken.TokenTypeRefresh)
}
