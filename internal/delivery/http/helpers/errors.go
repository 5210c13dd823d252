package helpers

import (
	"log/slog"
	"net/http"

	"gatherplan/internal/domain"
)

// WriteServiceError maps a service error to its HTTP status. Unclassified errors are logged and
// reported as 500 without their detail.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, ErrCodeInternalError
	switch domain.CodeOf(err) {
	case domain.CodeInvalidInput:
		status, code = http.StatusBadRequest, ErrCodeBadRequest
	case domain.CodeForbidden:
		status, code = http.StatusForbidden, ErrCodeForbidden
	case domain.CodeNotFound:
		status, code = http.StatusNotFound, ErrCodeNotFound
	case domain.CodeInvalidState:
		status, code = http.StatusConflict, ErrCodeInvalidState
	case domain.CodeConflict:
		status, code = http.StatusConflict, ErrCodeConflict
	case domain.CodeNoCandidates:
		status, code = http.StatusUnprocessableEntity, ErrCodeNoCandidates
	}
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		}
		WriteJSONError(w, status, code, "internal server error")
		return
	}
	WriteJSONError(w, status, code, err.Error())
}
