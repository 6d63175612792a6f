package httptransport

import (
	"io"
	"net/http"

	"userapi/internal/identity"
	"userapi/internal/storage"
	"userapi/pkg/apperrors"
)

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r.Context()))
}

type updateMeRequest struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	PostalCode    *string `json:"postal_code"`
	PostalAddress *string `json:"postal_address"`
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Update(r.Context(), currentUser(r.Context()).ID, identity.UpdateInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		PostalCode:    req.PostalCode,
		PostalAddress: req.PostalAddress,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleStatus summarizes every verification gate in one response so the
// frontend can render onboarding progress without extra round trips.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	c, err := h.companies.GetForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"email_verified":       user.EmailVerified,
		"mobile_verified":      user.MobileVerified,
		"shahkar_verified":     user.ShahkarVerified,
		"identity_verified":    user.IdentityVerified,
		"company_created":      c.ID != 0,
		"ceo_mobile_verified":  c.CEOMobileVerified,
		"ceo_shahkar_verified": c.CEOShahkarVerified,
		"company_verified":     c.Verified,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	err := h.users.ChangePassword(r.Context(), currentUser(r.Context()).ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password changed."})
}

type changeUsernameRequest struct {
	Username string `json:"username"`
}

func (h *Handler) handleChangeUsername(w http.ResponseWriter, r *http.Request) {
	var req changeUsernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.ChangeUsername(r.Context(), currentUser(r.Context()).ID, req.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	file, header, err := h.formFile(r, "avatar")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer file.Close()

	path, err := h.files.Save(r.Context(), storage.AvatarDir(user.ID), header.Filename, file)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	updated, err := h.users.UpdateAvatar(r.Context(), user.ID, path)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDownloadAvatar(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if user.AvatarPath == "" {
		writeError(w, h.logger, apperrors.New(apperrors.CodeNotFound, "Avatar not found."))
		return
	}
	h.streamFile(w, r, user.AvatarPath)
}

func (h *Handler) handleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	path := user.AvatarPath
	updated, err := h.users.DeleteAvatar(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if path != "" {
		if err := h.files.Remove(r.Context(), path); err != nil {
			h.logger.Warn("removing avatar file", "path", path, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleRequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.users.RequestEmailVerification(r.Context(), currentUser(r.Context()).ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Verification code sent."})
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.VerifyEmail(r.Context(), currentUser(r.Context()).ID, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleRequestMobileVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.users.RequestMobileVerification(r.Context(), currentUser(r.Context()).ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Verification code sent."})
}

func (h *Handler) handleVerifyMobile(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.VerifyMobile(r.Context(), currentUser(r.Context()).ID, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateIdentityRequest struct {
	NationalCode string `json:"national_code"`
	Mobile       string `json:"mobile"`
}

func (h *Handler) handleUpdateIdentity(w http.ResponseWriter, r *http.Request) {
	var req updateIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.UpdateNationalCodeAndMobile(r.Context(), currentUser(r.Context()).ID,
		req.NationalCode, req.Mobile)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// formFile pulls a bounded multipart upload out of the request.
func (h *Handler) formFile(r *http.Request, field string) (io.ReadCloser, *multipartFileHeader, error) {
	limit := int64(h.cfg.MaxDocumentMB) << 20
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, nil, apperrors.Validation(field, "A valid file upload is required.")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, apperrors.Validation(field, "A valid file upload is required.")
	}
	if header.Size > limit {
		file.Close()
		return nil, nil, apperrors.Validation(field, "The uploaded file is too large.")
	}
	return file, &multipartFileHeader{Filename: header.Filename, Size: header.Size}, nil
}

type multipartFileHeader struct {
	Filename string
	Size     int64
}

func (h *Handler) streamFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := h.files.Open(r.Context(), path)
	if err != nil {
		writeError(w, h.logger, apperrors.Wrap(err, apperrors.CodeNotFound, "File not found."))
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("streaming file", "path", path, "error", err)
	}
}
