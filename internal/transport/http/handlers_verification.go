package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"userapi/internal/identity"
	"userapi/internal/storage"
	"userapi/internal/verification"
	"userapi/pkg/apperrors"
)

func urlID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperrors.New(apperrors.CodeNotFound, "Not found.")
	}
	return id, nil
}

// handleCreateVerification accepts a multipart submission: a "subject" field
// naming user or company, an optional "user_comment", and one or more
// "documents" files with a parallel "types" value each.
func (h *Handler) handleCreateVerification(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	limit := int64(h.cfg.MaxDocumentMB) << 20
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, h.logger, apperrors.Validation("documents", "A valid multipart upload is required."))
		return
	}

	subject, err := h.resolveSubject(r, user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	files := r.MultipartForm.File["documents"]
	types := r.MultipartForm.Value["types"]
	if len(files) == 0 {
		writeError(w, h.logger, apperrors.Validation("documents", "No documents."))
		return
	}
	if len(types) != len(files) {
		writeError(w, h.logger, apperrors.Validation("types", "One document type per file is required."))
		return
	}

	docs := make([]verification.Document, 0, len(files))
	for i, fh := range files {
		if fh.Size > limit {
			writeError(w, h.logger, apperrors.Validation("documents", "The uploaded file is too large."))
			return
		}
		tp, err := strconv.Atoi(types[i])
		if err != nil || !verification.DocumentType(tp).Valid() {
			writeError(w, h.logger, apperrors.Validation("types", "Unknown document type."))
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, h.logger, apperrors.Validation("documents", "A valid file upload is required."))
			return
		}
		path, err := h.files.Save(r.Context(), storage.DocumentDir(user.ID), fh.Filename, f)
		f.Close()
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		docs = append(docs, verification.Document{
			FilePath: path,
			Type:     verification.DocumentType(tp),
		})
	}

	req, err := h.verifications.Create(r.Context(), subject, user.ID, r.FormValue("user_comment"), docs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// resolveSubject maps the submitted subject name onto a reference, enforcing
// the verification prerequisites for each subject kind.
func (h *Handler) resolveSubject(r *http.Request, user *identity.User) (verification.SubjectRef, error) {
	switch verification.SubjectKind(r.FormValue("subject")) {
	case verification.SubjectUser:
		if !user.EmailVerified || !user.MobileVerified || !user.ShahkarVerified {
			return verification.SubjectRef{}, apperrors.New(apperrors.CodeForbidden,
				"Email, mobile and identity matching must be verified first.")
		}
		return verification.UserRef(user.ID), nil
	case verification.SubjectCompany:
		c, err := h.companies.GetForUser(r.Context(), user.ID)
		if err != nil {
			return verification.SubjectRef{}, err
		}
		if c.ID == 0 {
			return verification.SubjectRef{}, apperrors.New(apperrors.CodeForbidden,
				"A company profile must be created first.")
		}
		if !c.CEOMobileVerified || !c.CEOShahkarVerified {
			return verification.SubjectRef{}, apperrors.New(apperrors.CodeForbidden,
				"CEO mobile and identity matching must be verified first.")
		}
		return verification.CompanyRef(c.ID), nil
	default:
		return verification.SubjectRef{}, apperrors.Validation("subject", "Unknown subject.")
	}
}

func (h *Handler) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	filter := verification.Filter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, apperrors.Validation("status", "Unknown status."))
			return
		}
		status := verification.Status(n)
		filter.Status = &status
	}
	// Superusers browse the full queue; accountables see their assignments,
	// everyone else their own submissions.
	switch {
	case !user.CanBeAccountable():
		filter.UserID = &user.ID
	case !user.IsSuperuser:
		filter.AccountableID = &user.ID
	case r.URL.Query().Get("mine") == "true":
		filter.AccountableID = &user.ID
	}

	requests, err := h.verifications.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// canViewRequest gates single-request reads: the submitter, the assigned
// accountable and superusers. Other accountables get a not-found, the same
// answer as for an id that does not exist.
func canViewRequest(user *identity.User, req *verification.Request) bool {
	if req.UserID == user.ID || user.IsSuperuser {
		return true
	}
	return user.CanBeAccountable() && req.AccountableID != nil && *req.AccountableID == user.ID
}

func (h *Handler) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	req, err := h.verifications.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !canViewRequest(user, req) {
		writeError(w, h.logger, apperrors.New(apperrors.CodeNotFound, "Verification request not found."))
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) handleAssignables(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	found, err := h.verifications.Assignables(r.Context(), id, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

type assignRequest struct {
	Accountable *uuid.UUID `json:"accountable"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var candidate *identity.User
	if req.Accountable != nil {
		candidate, err = h.users.Get(r.Context(), *req.Accountable)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	assigned, err := h.verifications.Assign(r.Context(), id, candidate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assigned)
}

type inspectRequest struct {
	Status             int    `json:"status"`
	AccountableComment string `json:"accountable_comment"`
}

func (h *Handler) handleInspect(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req inspectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	inspected, err := h.verifications.Inspect(r.Context(), id,
		verification.Status(req.Status), req.AccountableComment, currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inspected)
}

func (h *Handler) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	doc, err := h.verifications.Document(r.Context(), id, currentUser(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.streamFile(w, r, doc.FilePath)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
