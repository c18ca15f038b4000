package web

// errors.go provides unified error response handling for the web layer.
//
// Every handler error goes through respondError, which:
//  1. picks the HTTP status from the error kind
//  2. maps the error to a user message via core.MapError
//  3. logs the technical error with the request ID
//  4. writes JSON for API routes and an HTML error page otherwise

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvcure/internal/core"
	"github.com/JonMunkholm/csvcure/internal/logging"
	"github.com/JonMunkholm/csvcure/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Kind) and human-readable (Message,
// Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Kind    string `json:"kind"`
}

// statusFor picks the response status for err.
func statusFor(err error) int {
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, core.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyTables):
		return http.StatusConflict
	case errors.Is(err, core.ErrIngestBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrInvalidRequest),
		errors.Is(err, core.ErrEmptyTable),
		errors.Is(err, core.ErrDuplicateColumn),
		errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStructuralMismatch),
		errors.Is(err, core.ErrOutOfBounds),
		errors.Is(err, core.ErrAmbiguousRepair),
		errors.Is(err, core.ErrDelimiterNotFound),
		errors.Is(err, core.ErrIndexNotFound),
		errors.Is(err, core.ErrColumnNotFound),
		errors.Is(err, core.ErrPatternParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes a user-friendly response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	if wantsJSON(r) {
		writeJSON(w, status, ErrorResponse{
			Error:   err.Error(),
			Message: userMsg.Message,
			Action:  userMsg.Action,
			Code:    userMsg.Code,
			Kind:    core.KindName(err),
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorPage(userMsg.Message, userMsg.Action, userMsg.Code).Render(r.Context(), w); err != nil {
		logger.Error("render error page", "error", err)
	}
}

// badRequest wraps a request-decoding problem as ErrInvalidRequest.
func badRequest(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidRequest, msg)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrInvalidRequest, msg, err)
}

// wantsJSON reports whether the client should get a JSON error.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
