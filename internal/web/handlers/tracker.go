package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/logging"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/tracker"
)

// TrackerHandler drives the live tracker on the camera attached to the server
// and streams its overlay updates over SSE.
type TrackerHandler struct {
	tracker *tracker.Tracker
	events  *EventBroadcaster
}

// NewTrackerHandler creates a tracker handler for cam.
func NewTrackerHandler(cam capture.Camera, loader tracker.LocatorLoader, placer tracker.Placer, cfg tracker.Config) *TrackerHandler {
	events := &EventBroadcaster{}
	return &TrackerHandler{
		tracker: tracker.New(cam, loader, placer, broadcastOverlay{events: events}, cfg),
		events:  events,
	}
}

// TrackerStatus is the tracker state as reported to clients.
type TrackerStatus struct {
	State  string `json:"state"`
	Frames uint64 `json:"frames"`
	Error  string `json:"error,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

func (h *TrackerHandler) status() TrackerStatus {
	st := TrackerStatus{
		State:  h.tracker.State().String(),
		Frames: h.tracker.Frames(),
	}
	if err := h.tracker.Err(); err != nil {
		st.Error = err.Error()
		st.Hint = session.Hint(err)
	}
	return st
}

// Status returns the tracker state.
func (h *TrackerHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// Start begins tracking. A stopped tracker is reset first.
func (h *TrackerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.tracker.State() == tracker.Stopped {
		if err := h.tracker.Reset(); err != nil && !errors.Is(err, tracker.ErrInvalidTransition) {
			respondDomainError(w, err)
			return
		}
	}
	if err := h.tracker.Start(r.Context()); err != nil {
		logging.Warn(logging.Fields{"error": err}, "tracker start failed")
		h.events.SendEvent(Event{Type: EventError, Message: session.Hint(err)})
		respondDomainError(w, err)
		return
	}
	h.events.SendEvent(Event{Type: EventStarted})
	respondJSON(w, http.StatusOK, h.status())
}

// Stop ends tracking and releases the camera.
func (h *TrackerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Stop(); err != nil {
		respondDomainError(w, err)
		return
	}
	h.events.SendEvent(Event{Type: EventStopped})
	respondJSON(w, http.StatusOK, h.status())
}

// Events streams overlay updates as server-sent events.
func (h *TrackerHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.events, h.status())
}

// Shutdown stops a running tracker.
func (h *TrackerHandler) Shutdown(ctx context.Context) {
	if h.tracker.State() != tracker.Tracking {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.tracker.Stop()
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
