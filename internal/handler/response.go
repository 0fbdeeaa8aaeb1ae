package handler

// RESPONSE HELPERS:
// Every body the API sends carries "success". Successful responses add
// "data" (and "count" for lists); auth responses add "token" and "user";
// failures add "message":
//
//	{"success": true, "count": 2, "data": [...]}
//	{"success": false, "message": "Food not found or already claimed"}
//
// Handlers never build these maps themselves; they call writeData, writeList
// or writeError.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/shareplate/internal/apperror"
)

const internalErrorMessage = "An internal error occurred"

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body; once Encode writes, any
// header change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(items), "data": items})
}

// statusFor maps a domain error to an HTTP status.
//
// errors.Is walks the whole chain, so a service error like
//
//	fmt.Errorf("service/food: fetching x: %w", apperror.NotFound(...))
//
// still maps to 404.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError sends {success:false, message}. Anything that isn't a typed
// application error becomes an opaque 500 and is logged with the request
// path; the raw error could contain SQL or file paths.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": internalErrorMessage,
		})
		return
	}

	writeJSON(w, status, map[string]any{"success": false, "message": appErr.Message})
}
