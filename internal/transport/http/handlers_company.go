package httptransport

import (
	"net/http"

	"userapi/internal/company"
)

func (h *Handler) handleMyCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.companies.GetForUser(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type upsertCompanyRequest struct {
	Name             *string `json:"name"`
	NationalCode     *string `json:"national_code"`
	RegistryCode     *string `json:"registry_code"`
	EconomicalNumber *string `json:"economical_number"`
	Phone            *string `json:"phone"`
	PostalCode       *string `json:"postal_code"`
	PostalAddress    *string `json:"postal_address"`
	Size             *int    `json:"size"`
	ActivityField    *string `json:"activity_field"`
	CEOMobile        *string `json:"ceo_mobile"`
	CEONationalCode  *string `json:"ceo_national_code"`
}

func (h *Handler) handleUpsertCompany(w http.ResponseWriter, r *http.Request) {
	var req upsertCompanyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.companies.Upsert(r.Context(), currentUser(r.Context()).ID, company.UpsertInput{
		Name:             req.Name,
		NationalCode:     req.NationalCode,
		RegistryCode:     req.RegistryCode,
		EconomicalNumber: req.EconomicalNumber,
		Phone:            req.Phone,
		PostalCode:       req.PostalCode,
		PostalAddress:    req.PostalAddress,
		Size:             req.Size,
		ActivityField:    req.ActivityField,
		CEOMobile:        req.CEOMobile,
		CEONationalCode:  req.CEONationalCode,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleRequestCEOMobileVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.companies.RequestCEOMobileVerification(r.Context(), currentUser(r.Context()).ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Verification code sent."})
}

func (h *Handler) handleVerifyCEOMobile(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.companies.VerifyCEOMobile(r.Context(), currentUser(r.Context()).ID, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type verifyCEOShahkarRequest struct {
	NationalCode string `json:"national_code"`
	Mobile       string `json:"mobile"`
}

func (h *Handler) handleVerifyCEOShahkar(w http.ResponseWriter, r *http.Request) {
	var req verifyCEOShahkarRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.companies.VerifyCEOShahkar(r.Context(), currentUser(r.Context()).ID,
		req.NationalCode, req.Mobile)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
