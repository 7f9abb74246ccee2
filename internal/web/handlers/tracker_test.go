package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/tracker"
)

func newTrackerHandler(cam capture.Camera) *TrackerHandler {
	placer := compositor.New(compositor.NewFSLoader(catalog.Assets()))
	return NewTrackerHandler(cam, locatorLoader(newFakeLocator(goodDetections())), placer, testTrackerConfig())
}

func trackerCall(t *testing.T, fn http.HandlerFunc) (int, TrackerStatus) {
	t.Helper()
	recorder := httptest.NewRecorder()
	fn(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/tracker", nil))
	var st TrackerStatus
	_ = json.Unmarshal(recorder.Body.Bytes(), &st)
	return recorder.Code, st
}

func TestTrackerHandler_StartStopRestart(t *testing.T) {
	h := newTrackerHandler(&capture.PushCamera{})

	code, st := trackerCall(t, h.Start)
	if code != http.StatusOK || st.State != "tracking" {
		t.Fatalf("start: got %d %+v", code, st)
	}

	code, _ = trackerCall(t, h.Start)
	if code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", code)
	}

	code, st = trackerCall(t, h.Stop)
	if code != http.StatusOK || st.State != "stopped" {
		t.Fatalf("stop: got %d %+v", code, st)
	}

	code, _ = trackerCall(t, h.Stop)
	if code != http.StatusConflict {
		t.Errorf("second stop: expected 409, got %d", code)
	}

	code, st = trackerCall(t, h.Start)
	if code != http.StatusOK || st.State != "tracking" {
		t.Fatalf("restart: got %d %+v", code, st)
	}
	h.Shutdown(t.Context())
	if h.tracker.State() != tracker.Stopped {
		t.Errorf("expected shutdown to stop the tracker, got %s", h.tracker.State())
	}
}

func TestTrackerHandler_CameraBusy(t *testing.T) {
	cam := capture.NewExclusive(&capture.PushCamera{})
	held, err := cam.Open(t.Context())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer held.Close()

	h := newTrackerHandler(cam)
	recorder := httptest.NewRecorder()
	h.Start(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/tracker/start", nil))

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	var result ErrorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result.Hint == "" {
		t.Error("expected a hint for a busy camera")
	}
}

func TestTrackerHandler_Status(t *testing.T) {
	h := newTrackerHandler(&capture.PushCamera{})
	code, st := trackerCall(t, h.Status)
	if code != http.StatusOK || st.State != "idle" || st.Frames != 0 {
		t.Errorf("unexpected status %d %+v", code, st)
	}
}

// readSSEEvent returns the next event name from an SSE stream.
func readSSEEvent(t *testing.T, sc *bufio.Scanner) (string, string) {
	t.Helper()
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return "", ""
}

func TestTrackerHandler_EventsStreamOverlay(t *testing.T) {
	cam := &capture.PushCamera{}
	h := newTrackerHandler(cam)

	server := httptest.NewServer(http.HandlerFunc(h.Events))
	defer server.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connecting to event stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	if event, _ := readSSEEvent(t, sc); event != "status" {
		t.Fatalf("expected initial status event, got %q", event)
	}

	if code, _ := trackerCall(t, h.Start); code != http.StatusOK {
		t.Fatalf("start failed: %d", code)
	}
	defer h.Shutdown(t.Context())
	if event, _ := readSSEEvent(t, sc); event != EventStarted {
		t.Fatalf("expected started event, got %q", event)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !cam.Push(testFrame()) {
		if time.Now().After(deadline) {
			t.Fatal("frame was never accepted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	event, data := readSSEEvent(t, sc)
	if event != EventOverlay {
		t.Fatalf("expected overlay event, got %q", event)
	}
	var payload struct {
		Data tracker.Transform `json:"data"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("bad overlay payload: %v", err)
	}
	if !payload.Data.Visible || payload.Data.Width <= 0 || payload.Data.FrameWidth != 400 {
		t.Errorf("unexpected transform %+v", payload.Data)
	}
}
