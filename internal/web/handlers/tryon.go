package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/logging"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/tracker"
)

const tryOnWriteTimeout = 5 * time.Second

// Try-on commands sent by the browser as text messages.
const (
	CommandPause  = "pause"
	CommandResume = "resume"
)

// TryOnHandler runs a live tracker per websocket. The browser sends camera
// frames as binary JPEG or PNG messages and receives overlay transforms.
type TryOnHandler struct {
	catalog  *catalog.Catalog
	loader   tracker.LocatorLoader
	placer   tracker.Placer
	cfg      tracker.Config
	upgrader websocket.Upgrader
}

// NewTryOnHandler creates a try-on handler. cfg holds the default live sticker.
func NewTryOnHandler(cat *catalog.Catalog, loader tracker.LocatorLoader, placer tracker.Placer, cfg tracker.Config) *TryOnHandler {
	return &TryOnHandler{
		catalog: cat,
		loader:  loader,
		placer:  placer,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 12,
		},
	}
}

// TryOnMessage is sent to the browser.
type TryOnMessage struct {
	Type      string             `json:"type"`
	State     string             `json:"state,omitempty"`
	Transform *tracker.Transform `json:"transform,omitempty"`
	Error     string             `json:"error,omitempty"`
	Hint      string             `json:"hint,omitempty"`
}

// TryOnCommand is received from the browser.
type TryOnCommand struct {
	Command string `json:"command"`
}

// wsOverlay writes tracker updates to the socket.
type wsOverlay struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (o *wsOverlay) send(msg TryOnMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(tryOnWriteTimeout))
	if err := o.conn.WriteJSON(msg); err != nil {
		logging.Debug(logging.Fields{"error": err}, "try-on write failed")
	}
}

func (o *wsOverlay) Show(t tracker.Transform) {
	o.send(TryOnMessage{Type: EventOverlay, Transform: &t})
}

func (o *wsOverlay) Hide() {
	o.send(TryOnMessage{Type: EventHidden})
}

func (o *wsOverlay) fail(err error) {
	o.send(TryOnMessage{Type: EventError, Error: err.Error(), Hint: session.Hint(err)})
}

func (o *wsOverlay) state(t *tracker.Tracker) {
	o.send(TryOnMessage{Type: "state", State: t.State().String()})
}

// trackerConfig applies the optional style, tone and mirror query parameters.
// The chosen style only swaps the sticker image; live scale and offset stay.
func (h *TryOnHandler) trackerConfig(r *http.Request) (tracker.Config, error) {
	cfg := h.cfg
	q := r.URL.Query()
	if style := q.Get("style"); style != "" {
		spec, err := h.catalog.StyleSpec(style, q.Get("tone"))
		if err != nil {
			return cfg, err
		}
		cfg.Spec.AssetPath = spec.AssetPath
	}
	if m := q.Get("mirror"); m != "" {
		if b, err := strconv.ParseBool(m); err == nil {
			cfg.Mirror = b
		}
	}
	return cfg, nil
}

// Serve upgrades the connection and tracks until the socket closes.
func (h *TryOnHandler) Serve(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.trackerConfig(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return
	}
	defer conn.Close()

	ctx := context.WithoutCancel(r.Context())
	overlay := &wsOverlay{conn: conn}
	cam := &capture.PushCamera{Buffer: 1}
	t := tracker.New(cam, h.loader, h.placer, overlay, cfg)

	if err := t.Start(ctx); err != nil {
		overlay.fail(err)
		return
	}
	defer func() {
		if t.State() == tracker.Tracking {
			_ = t.Stop()
		}
	}()
	overlay.state(t)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug(logging.Fields{"error": err}, "try-on socket closed")
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			img, err := capture.DecodeImage(data)
			if err != nil {
				overlay.fail(err)
				continue
			}
			cam.Push(img)
		case websocket.TextMessage:
			h.command(ctx, t, overlay, data)
		}
	}
}

func (h *TryOnHandler) command(ctx context.Context, t *tracker.Tracker, overlay *wsOverlay, data []byte) {
	var cmd TryOnCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		overlay.send(TryOnMessage{Type: EventError, Error: errInvalidRequestBody})
		return
	}

	var err error
	switch cmd.Command {
	case CommandPause:
		err = t.Stop()
	case CommandResume:
		if t.State() == tracker.Stopped {
			err = t.Reset()
		}
		if err == nil {
			err = t.Start(ctx)
		}
	default:
		overlay.send(TryOnMessage{Type: EventError, Error: "unknown command " + strconv.Quote(cmd.Command)})
		return
	}
	if err != nil {
		overlay.fail(err)
		return
	}
	overlay.state(t)
}
