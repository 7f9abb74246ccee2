package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"sync"

	"github.com/kozaktomas/stylemate/internal/logging"
)

// FFmpegCamera reads raw RGBA frames from a local camera through ffmpeg
// (v4l2 on Linux, dshow on Windows).
type FFmpegCamera struct {
	Device string
	FPS    int
	Width  int
	Height int
	// Binary defaults to "ffmpeg" on PATH.
	Binary string
}

func (c *FFmpegCamera) args() []string {
	input := []string{"-f", "v4l2", "-i", c.Device}
	if runtime.GOOS == "windows" {
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", c.Device)}
	}
	return append([]string{"-loglevel", "error"}, append(input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", c.FPS, c.Width, c.Height),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)...)
}

// Open starts ffmpeg. The context only bounds startup; use Close to stop.
func (c *FFmpegCamera) Open(ctx context.Context) (Stream, error) {
	if c.Width <= 0 || c.Height <= 0 || c.FPS <= 0 {
		return nil, fmt.Errorf("%w: invalid capture size %dx%d@%d", ErrDeviceAccess, c.Width, c.Height, c.FPS)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bin := c.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.Command(bin, c.args()...)

	s := &ffmpegStream{
		cmd:       cmd,
		width:     c.Width,
		height:    c.Height,
		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceAccess, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg start error: %w", ErrDeviceAccess, err)
	}

	logging.Debug(logging.Fields{"device": c.Device, "width": c.Width, "height": c.Height, "fps": c.FPS}, "camera opened")
	go s.readLoop(stdout)
	return s, nil
}

type ffmpegStream struct {
	stopOnce sync.Once

	cmd    *exec.Cmd
	stderr bytes.Buffer
	width  int
	height int

	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
	done      chan struct{}
}

func (s *ffmpegStream) readLoop(stdout io.ReadCloser) {
	defer close(s.done)
	defer close(s.frameChan)
	defer close(s.errChan)

	frameSize := s.width * s.height * 4
	buffer := make([]byte, frameSize)

	for {
		_, err := io.ReadFull(stdout, buffer)
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.errChan <- fmt.Errorf("%w: read error: %w", ErrDeviceAccess, err)
			}
			return
		}

		pixelData := make([]byte, len(buffer))
		copy(pixelData, buffer)

		img := &image.RGBA{
			Pix:    pixelData,
			Stride: s.width * 4,
			Rect:   image.Rect(0, 0, s.width, s.height),
		}

		select {
		case s.frameChan <- img:
		case <-s.stopChan:
			return
		}
	}
}

func (s *ffmpegStream) Frames() <-chan image.Image { return s.frameChan }
func (s *ffmpegStream) Errors() <-chan error       { return s.errChan }

// Close kills ffmpeg and waits until the device is released.
func (s *ffmpegStream) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		<-s.done
		s.cmd.Wait()
		logging.Debug(logging.Fields{"stderr": s.stderr.String()}, "camera closed")
	})
	return nil
}

// ListCameras returns the video devices ffmpeg can see.
func ListCameras() ([]string, error) {
	if runtime.GOOS != "windows" {
		return []string{"/dev/video0", "/dev/video1"}, nil
	}

	cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Run()

	re := regexp.MustCompile(`"([^"]+)"\s+\(video\)`)
	var cameras []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(stderr.String(), -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras, nil
}
