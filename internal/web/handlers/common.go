package handlers

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/tracker"
	"github.com/kozaktomas/stylemate/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// ErrorResponse is the body of failed session, tracker and try-on calls.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case face.IsDetectionError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, compositor.ErrPreconditionViolation),
		errors.Is(err, session.ErrFrozen),
		errors.Is(err, session.ErrStaleResult),
		errors.Is(err, capture.ErrDeviceBusy),
		errors.Is(err, tracker.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrUnknownCategory),
		errors.Is(err, catalog.ErrUnknownTone):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidStyleKey),
		errors.Is(err, catalog.ErrUnknownLength),
		errors.Is(err, catalog.ErrUnknownModel),
		errors.Is(err, session.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrDeviceAccess),
		errors.Is(err, face.ErrLocatorFailure):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondDomainError sends err with its status code and a user hint.
func respondDomainError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), ErrorResponse{
		Error: err.Error(),
		Hint:  session.Hint(err),
	})
}

// mustSession returns the request's session or responds with an error.
func mustSession(w http.ResponseWriter, r *http.Request) *session.Session {
	s := middleware.GetSessionFromContext(r.Context())
	if s == nil {
		respondError(w, http.StatusInternalServerError, "no session bound to request")
	}
	return s
}

// readImageField decodes the named multipart file field.
func readImageField(r *http.Request, field string) (image.Image, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize))
	if err != nil {
		return nil, err
	}
	return capture.DecodeImage(data)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
