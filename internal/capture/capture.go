// Package capture provides camera devices and frame streams.
package capture

import (
	"context"
	"errors"
	"image"
	"sync"
)

var (
	// ErrDeviceAccess means the camera could not be opened.
	ErrDeviceAccess = errors.New("camera device unavailable")
	// ErrDeviceBusy means another owner holds the camera.
	ErrDeviceBusy = errors.New("camera device busy")
)

// Stream delivers frames until it is closed or fails. Close releases the
// underlying device before returning and is safe to call more than once.
type Stream interface {
	Frames() <-chan image.Image
	Errors() <-chan error
	Close() error
}

// Camera opens a fresh Stream on every call.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Exclusive lets only one owner hold an open stream at a time.
type Exclusive struct {
	cam  Camera
	mu   sync.Mutex
	held bool
}

func NewExclusive(cam Camera) *Exclusive {
	return &Exclusive{cam: cam}
}

func (e *Exclusive) Open(ctx context.Context) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.held {
		return nil, ErrDeviceBusy
	}
	s, err := e.cam.Open(ctx)
	if err != nil {
		return nil, err
	}
	e.held = true
	return &ownedStream{Stream: s, release: e.release}, nil
}

// Held reports whether a stream is currently open.
func (e *Exclusive) Held() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held
}

func (e *Exclusive) release() {
	e.mu.Lock()
	e.held = false
	e.mu.Unlock()
}

type ownedStream struct {
	Stream
	once    sync.Once
	release func()
	err     error
}

func (s *ownedStream) Close() error {
	s.once.Do(func() {
		s.err = s.Stream.Close()
		s.release()
	})
	return s.err
}
