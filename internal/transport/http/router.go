package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"userapi/internal/company"
	"userapi/internal/identity"
	jwttoken "userapi/internal/jwt_token"
	"userapi/internal/platform/config"
	"userapi/internal/ratelimit"
	"userapi/internal/storage"
	"userapi/internal/verification"
)

// Admin access-list permissions.
const (
	PermUsersView   = "users.view"
	PermUsersChange = "users.change"
)

// Handler is the HTTP layer. It delegates to the domain services and keeps
// request parsing, auth and response shaping out of them.
type Handler struct {
	users         *identity.Service
	companies     *company.Service
	verifications *verification.Service
	tokens        *jwttoken.JWTService
	files         storage.FileStore
	loginLimiter  *ratelimit.Limiter
	cfg           config.Config
	logger        *slog.Logger
}

func NewHandler(
	users *identity.Service,
	companies *company.Service,
	verifications *verification.Service,
	tokens *jwttoken.JWTService,
	files storage.FileStore,
	loginLimiter *ratelimit.Limiter,
	cfg config.Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		users:         users,
		companies:     companies,
		verifications: verifications,
		tokens:        tokens,
		files:         files,
		loginLimiter:  loginLimiter,
		cfg:           cfg,
		logger:        logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.handleSignup)
			r.Post("/logout", h.handleLogout)
			r.Post("/refresh", h.handleRefresh)
			r.Get("/username-available", h.handleUsernameAvailable)
			r.Group(func(r chi.Router) {
				r.Use(h.throttle)
				r.Post("/login", h.handleLogin)
				r.Post("/password-reset", h.handlePasswordReset)
				r.Post("/password-reset/confirm", h.handlePasswordResetConfirm)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", h.handleMe)
				r.Patch("/", h.handleUpdateMe)
				r.Get("/status", h.handleStatus)
				r.Post("/password", h.handleChangePassword)
				r.Put("/username", h.handleChangeUsername)
				r.Put("/avatar", h.handleUploadAvatar)
				r.Get("/avatar", h.handleDownloadAvatar)
				r.Delete("/avatar", h.handleDeleteAvatar)
				r.Post("/email/request", h.handleRequestEmailVerification)
				r.Post("/email/verify", h.handleVerifyEmail)
				r.Post("/mobile/request", h.handleRequestMobileVerification)
				r.Post("/mobile/verify", h.handleVerifyMobile)
				r.Put("/identity", h.handleUpdateIdentity)

				r.Route("/company", func(r chi.Router) {
					r.Get("/", h.handleMyCompany)
					r.Patch("/", h.handleUpsertCompany)
					r.Post("/ceo-mobile/request", h.handleRequestCEOMobileVerification)
					r.Post("/ceo-mobile/verify", h.handleVerifyCEOMobile)
					r.Post("/ceo-shahkar/verify", h.handleVerifyCEOShahkar)
				})
			})

			r.Route("/verifications", func(r chi.Router) {
				r.Post("/", h.handleCreateVerification)
				r.Get("/", h.handleListVerifications)
				r.Get("/documents/{id}", h.handleDownloadDocument)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetVerification)
					r.Group(func(r chi.Router) {
						r.Use(h.requireAccountable)
						r.Get("/assignables", h.handleAssignables)
						r.Post("/assign", h.handleAssign)
						r.Post("/inspect", h.handleInspect)
					})
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(h.requireAccess(PermUsersView))
					r.Get("/users", h.handleListUsers)
					r.Get("/users/{id}", h.handleGetUser)
					r.Get("/companies", h.handleListCompanies)
					r.Get("/companies/{id}", h.handleGetCompany)
				})
				r.Group(func(r chi.Router) {
					r.Use(h.requireAccess(PermUsersChange))
					r.Post("/users", h.handleCreateUser)
					r.Patch("/users/{id}", h.handleUpdateUser)
					r.Delete("/users/{id}", h.handleDeleteUser)
				})
			})
		})
	})

	return r
}
