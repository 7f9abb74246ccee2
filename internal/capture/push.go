package capture

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrStreamClosed is returned when pushing into a closed stream.
var ErrStreamClosed = errors.New("stream closed")

// ChanStream is a Stream fed by a caller, e.g. frames arriving over a
// websocket. Frames are dropped when the consumer falls behind.
type ChanStream struct {
	mu        sync.Mutex
	closed    bool
	frameChan chan image.Image
	errChan   chan error
}

func NewChanStream(buffer int) *ChanStream {
	return &ChanStream{
		frameChan: make(chan image.Image, buffer),
		errChan:   make(chan error, 1),
	}
}

// Push offers a frame. It reports false if the frame was dropped.
func (s *ChanStream) Push(img image.Image) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStreamClosed
	}
	select {
	case s.frameChan <- img:
		return true, nil
	default:
		return false, nil
	}
}

// Fail reports a terminal error to the consumer and closes the stream.
func (s *ChanStream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.errChan <- err
	s.closeLocked()
}

func (s *ChanStream) Frames() <-chan image.Image { return s.frameChan }
func (s *ChanStream) Errors() <-chan error       { return s.errChan }

func (s *ChanStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *ChanStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.frameChan)
	close(s.errChan)
}

// PushCamera hands out a new ChanStream on every Open and routes pushed
// frames to the most recent one.
type PushCamera struct {
	Buffer int

	mu      sync.Mutex
	current *ChanStream
}

func (c *PushCamera) Open(ctx context.Context) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buffer := c.Buffer
	if buffer <= 0 {
		buffer = 1
	}
	c.current = NewChanStream(buffer)
	return c.current, nil
}

// Push forwards a frame to the current stream. Frames are dropped while no
// stream is open.
func (c *PushCamera) Push(img image.Image) bool {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return false
	}
	ok, _ := s.Push(img)
	return ok
}
