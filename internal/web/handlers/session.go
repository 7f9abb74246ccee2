package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/logging"
	"github.com/kozaktomas/stylemate/internal/session"
)

// SessionHandler handles the capture session endpoints. The session itself is
// bound to the request by middleware.
type SessionHandler struct {
	product string
	now     func() time.Time
}

// NewSessionHandler creates a new session handler
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{
		product: constants.ProductName,
		now:     time.Now,
	}
}

// SourceRequest switches the input source.
type SourceRequest struct {
	Source string `json:"source"`
}

// ModelRequest switches the analysis model.
type ModelRequest struct {
	Model string `json:"model"`
}

// CompositeRequest selects the style to render onto the captured frame.
type CompositeRequest struct {
	Style string `json:"style"`
	Tone  string `json:"tone,omitempty"`
}

// Get returns the session state.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	respondJSON(w, http.StatusOK, s.State())
}

// Source switches between webcam and image input.
func (h *SessionHandler) Source(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	src, err := session.ParseSource(req.Source)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.SwitchSource(src); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.State())
}

// Model switches the analysis model. Accepts the model name or its number.
func (h *SessionHandler) Model(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	var req ModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	m, err := catalog.ParseModel(req.Model)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.SwitchModel(m); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.State())
}

// Upload replaces the session image with the multipart "image" file and analyses it.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	img, err := readImageField(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required and must be a supported format")
		return
	}
	if err := s.Upload(img); err != nil {
		respondDomainError(w, err)
		return
	}
	h.analyze(w, r, s)
}

// Analyze runs detection and classification on the latest frame. A webcam
// client may attach the frame as the multipart "frame" file.
func (h *SessionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err == nil {
			if frame, err := readImageField(r, "frame"); err == nil {
				if err := s.Observe(frame); err != nil {
					logging.Debug(logging.Fields{"session": s.ID, "error": err}, "frame not observed")
				}
			}
		}
	}
	h.analyze(w, r, s)
}

func (h *SessionHandler) analyze(w http.ResponseWriter, r *http.Request, s *session.Session) {
	a, err := s.Analyze(r.Context())
	if err != nil {
		logging.From(r.Context()).WithField("session", s.ID).WithError(err).Debug("analysis failed")
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// Pause locks the latest camera frame for compositing.
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	if err := s.Pause(); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.State())
}

// Resume unlocks the frame and continues live analysis.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	if err := s.Resume(); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.State())
}

// Composite renders a style onto the captured frame and returns it as a PNG download.
func (h *SessionHandler) Composite(w http.ResponseWriter, r *http.Request) {
	s := mustSession(w, r)
	if s == nil {
		return
	}
	var req CompositeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Style == "" {
		respondError(w, http.StatusBadRequest, "style is required")
		return
	}

	out, err := s.Composite(req.Style, req.Tone)
	if err != nil {
		logging.Warn(logging.Fields{
			"session": s.ID,
			"style":   sanitizeForLog(req.Style),
			"error":   err,
		}, "composite failed")
		respondDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := compositor.EncodePNG(&buf, out); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode image")
		return
	}

	name := compositor.ExportFilename(h.product, req.Style, h.now())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
