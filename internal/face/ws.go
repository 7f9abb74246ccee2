package face

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/geometry"
	"github.com/kozaktomas/stylemate/internal/logging"
)

// WSLocator talks to a detection server over a persistent websocket.
// Each Detect sends one binary JPEG message and reads one JSON reply.
// A broken connection is dropped and redialled on the next call.
type WSLocator struct {
	url     string
	dialer  *websocket.Dialer
	timeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSLocator creates a locator for a ws:// or wss:// URL.
func NewWSLocator(url string) *WSLocator {
	return &WSLocator{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		timeout: constants.LocatorCallTimeout,
	}
}

// score accepts either a bare number or a one-element array.
type score float64

func (s *score) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = score(f)
		return nil
	}
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) > 0 {
		*s = score(arr[0])
	}
	return nil
}

// rotation accepts {"angle": radians} or a bare number.
type rotation float64

func (r *rotation) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*r = rotation(f)
		return nil
	}
	var obj struct {
		Angle float64 `json:"angle"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = rotation(obj.Angle)
	return nil
}

type wsDetection struct {
	TopLeft     [2]float64 `json:"topLeft"`
	BottomRight [2]float64 `json:"bottomRight"`
	Probability score      `json:"probability"`
	Rotation    *rotation  `json:"rotation,omitempty"`
}

func (d wsDetection) angle() *float64 {
	if d.Rotation == nil {
		return nil
	}
	a := float64(*d.Rotation)
	return &a
}

func (l *WSLocator) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		logging.Debug(logging.Fields{"url": l.url}, "connecting to detector server")
		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: connection failed: %w", ErrLocatorFailure, err)
		}
		l.conn = conn
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(l.timeout)
	}
	_ = l.conn.SetWriteDeadline(deadline)
	_ = l.conn.SetReadDeadline(deadline)

	if err := l.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		l.dropLocked()
		return nil, fmt.Errorf("%w: write: %w", ErrLocatorFailure, err)
	}

	_, message, err := l.conn.ReadMessage()
	if err != nil {
		l.dropLocked()
		return nil, fmt.Errorf("%w: read: %w", ErrLocatorFailure, err)
	}

	var results []wsDetection
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("%w: JSON decode: %w", ErrLocatorFailure, err)
	}

	dets := make([]Detection, 0, len(results))
	for _, r := range results {
		dets = append(dets, Detection{
			Confidence:  float64(r.Probability),
			TopLeft:     geometry.Point{X: r.TopLeft[0], Y: r.TopLeft[1]},
			BottomRight: geometry.Point{X: r.BottomRight[0], Y: r.BottomRight[1]},
			Rotation:    r.angle(),
		})
	}
	return dets, nil
}

// Close shuts the connection, if any.
func (l *WSLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *WSLocator) dropLocked() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}
