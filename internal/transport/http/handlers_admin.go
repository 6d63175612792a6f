package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"userapi/internal/identity"
	"userapi/internal/storage"
	"userapi/pkg/apperrors"
)

func urlUserID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperrors.New(apperrors.CodeNotFound, "User not found.")
	}
	return id, nil
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	filter := identity.Filter{
		EmailContains: r.URL.Query().Get("search"),
		Limit:         queryInt(r, "limit", 50),
		Offset:        queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("is_staff"); raw != "" {
		isStaff := raw == "true"
		filter.IsStaff = &isStaff
	}
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		isActive := raw == "true"
		filter.IsActive = &isActive
	}
	users, err := h.users.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUserID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Mobile     string   `json:"mobile"`
	IsActive   bool     `json:"is_active"`
	IsStaff    bool     `json:"is_staff"`
	Roles      []string `json:"roles"`
	AccessList []string `json:"access_list"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Create(r.Context(), identity.CreateInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Mobile:     req.Mobile,
		IsActive:   req.IsActive,
		IsStaff:    req.IsStaff,
		Roles:      req.Roles,
		AccessList: req.AccessList,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	FirstName     *string  `json:"first_name"`
	LastName      *string  `json:"last_name"`
	PostalCode    *string  `json:"postal_code"`
	PostalAddress *string  `json:"postal_address"`
	IsActive      *bool    `json:"is_active"`
	IsStaff       *bool    `json:"is_staff"`
	Roles         []string `json:"roles"`
	AccessList    []string `json:"access_list"`
	Password      *string  `json:"password"`
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUserID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Update(r.Context(), id, identity.UpdateInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		PostalCode:    req.PostalCode,
		PostalAddress: req.PostalAddress,
		IsActive:      req.IsActive,
		IsStaff:       req.IsStaff,
		Roles:         req.Roles,
		AccessList:    req.AccessList,
		Password:      req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUserID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.files.RemoveAll(r.Context(), storage.UserDir(id)); err != nil {
		h.logger.Warn("failed to remove uploads for deleted user", "user_id", id, "error", err)
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companies.List(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

func (h *Handler) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.companies.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
