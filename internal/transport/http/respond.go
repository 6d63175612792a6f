package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"userapi/pkg/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError translates application errors into the response shapes clients
// rely on: field validation errors as {"field": ["message"]}, everything else
// as {"detail": "message"}. Unclassified errors are logged and masked.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		status := apperrors.HTTPStatus(appErr.Code)
		if appErr.Code == apperrors.CodeInternal {
			logger.Error("request failed", "error", err)
		}
		if appErr.Code == apperrors.CodeValidation && appErr.Field != "" {
			writeJSON(w, status, map[string][]string{appErr.Field: {appErr.Message}})
			return
		}
		writeJSON(w, status, map[string]string{"detail": appErr.Message})
		return
	}
	logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal server error."})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.New(apperrors.CodeBadRequest, "Invalid request body.")
	}
	return nil
}
