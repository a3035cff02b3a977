package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/app/users"
	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
)

// ErrorResponse is the JSON envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestId nullable.Nullable[string]         `json:"requestId,omitempty"`
}

func apiError(ctx context.Context, code string, message string, details map[string]any) ErrorResponse {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(ctx); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	return er
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, apiError(r.Context(), code, message, details))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// appError unpacks the application-layer error types into status, code, message and details.
func appError(err error) (status int, code string, message string, details map[string]any, ok bool) {
	if ae := (*rsvps.Error)(nil); errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message, ae.Details, true
	}
	if ae := (*sessions.Error)(nil); errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message, ae.Details, true
	}
	if ae := (*users.Error)(nil); errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message, ae.Details, true
	}
	return 0, "", "", nil, false
}

// writeServiceError maps application errors to their status and everything else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if status, code, message, details, ok := appError(err); ok {
		writeError(w, r, status, code, message, details)
		return
	}
	s.log.ErrorContext(r.Context(), "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.Err(err),
	)
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
