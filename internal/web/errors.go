package web

// errors.go provides unified error response handling for the web layer.
//
// Handlers call respondError with whatever failed; the error is mapped to
// a stable code with a user-facing message and action, logged server-side
// with the request ID, and returned as JSON. The technical detail stays
// in the log, not the response.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/datashed/csvintake/internal/intake"
	"github.com/datashed/csvintake/internal/tabular"
	"github.com/go-chi/chi/v5/middleware"
)

// UserMessage is the client-facing rendering of an internal error.
type UserMessage struct {
	Code    string
	Message string
	Action  string
}

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// MapError translates an internal error into a UserMessage with a stable
// code that clients and support can reference.
func MapError(err error) UserMessage {
	switch {
	case errors.Is(err, tabular.ErrColumnNotFound):
		return UserMessage{
			Code:    "CSV002",
			Message: "A requested column was not found in the uploaded file",
			Action:  "Check the columns parameter against the file's header row",
		}
	case errors.Is(err, tabular.ErrEmptyStream):
		return UserMessage{
			Code:    "CSV003",
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header row",
		}
	case errors.Is(err, intake.ErrTooManyParses):
		return UserMessage{
			Code:    "BUSY001",
			Message: "The service is processing too many uploads right now",
			Action:  "Retry after a short delay",
		}
	}

	var parseErr *intake.ParseError
	if errors.As(err, &parseErr) {
		return UserMessage{
			Code:    "MP001",
			Message: parseErr.Error(),
			Action:  "Verify the request is multipart/form-data and every file is valid CSV",
		}
	}

	if strings.Contains(err.Error(), "request body too large") {
		return UserMessage{
			Code:    "FILE001",
			Message: "The upload exceeds the maximum allowed size",
			Action:  "Split the file into smaller chunks",
		}
	}

	return UserMessage{
		Code:    "GEN001",
		Message: "An unexpected error occurred",
		Action:  "Try again; contact support with the error code if it persists",
	}
}

// respondError logs the technical error and writes the mapped JSON
// response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}
