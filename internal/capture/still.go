package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

// StillCamera repeats one image at a fixed rate. Uploaded photos use it to
// feed the same pipeline as a live camera.
type StillCamera struct {
	Image image.Image
	FPS   int
}

func (c *StillCamera) Open(ctx context.Context) (Stream, error) {
	if c.Image == nil || c.Image.Bounds().Empty() {
		return nil, errors.New("still camera has no image")
	}
	fps := c.FPS
	if fps <= 0 {
		fps = 30
	}

	s := &tickerStream{
		frameChan: make(chan image.Image),
		errChan:   make(chan error),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run(c.Image, time.Second/time.Duration(fps))
	return s, nil
}

type tickerStream struct {
	stopOnce  sync.Once
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
	done      chan struct{}
}

func (s *tickerStream) run(img image.Image, interval time.Duration) {
	defer close(s.done)
	defer close(s.frameChan)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case s.frameChan <- img:
		}
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
		}
	}
}

func (s *tickerStream) Frames() <-chan image.Image { return s.frameChan }
func (s *tickerStream) Errors() <-chan error       { return s.errChan }

func (s *tickerStream) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
	})
	return nil
}
