package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	h "gatherplan/internal/delivery/http/helpers"
)

// Recover turns a handler panic into a 500 response and logs the stack.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.ErrorContext(r.Context(), "handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			h.WriteJSONError(w, http.StatusInternalServerError, h.ErrCodeInternalError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
