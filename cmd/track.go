package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/tracker"
	"github.com/kozaktomas/stylemate/internal/web"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track a face on the camera and print sticker transforms",
	Long: `Open a camera attached to this machine, follow the face in every frame and
print where the live sticker would be drawn.

Tracking runs until --frames updates were printed, the camera stream ends or Ctrl+C.

Examples:
  stylemate track --device /dev/video0 --frames 100
  stylemate track --style Heart_Long --json
  stylemate track --list`,
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)

	trackCmd.Flags().String("device", "", "Camera device (default: CAMERA_DEVICE)")
	trackCmd.Flags().Int("fps", 0, "Capture frame rate (default: CAMERA_FPS)")
	trackCmd.Flags().Int("width", 0, "Capture width (default: CAMERA_WIDTH)")
	trackCmd.Flags().Int("height", 0, "Capture height (default: CAMERA_HEIGHT)")
	trackCmd.Flags().Int("frames", 0, "Stop after this many overlay updates (0 = until interrupted)")
	trackCmd.Flags().Bool("no-mirror", false, "Report transforms in camera space instead of the mirrored preview")
	trackCmd.Flags().String("style", "", "Track with this style's sticker instead of LIVE_STICKER")
	trackCmd.Flags().Float64("scale", 0, "Sticker width relative to the face (default: LIVE_SCALE_FACTOR)")
	trackCmd.Flags().Float64("y-offset", 0, "Sticker offset from the top of the face, in face widths (default: LIVE_Y_OFFSET_RATIO)")
	trackCmd.Flags().Bool("list", false, "List available cameras and exit")
	trackCmd.Flags().Bool("json", false, "Print one JSON transform per line")
}

// printOverlay writes overlay updates to stdout and signals done after limit updates.
type printOverlay struct {
	json  bool
	limit int

	count int
	done  chan struct{}
	once  sync.Once
}

func newPrintOverlay(jsonOut bool, limit int) *printOverlay {
	return &printOverlay{json: jsonOut, limit: limit, done: make(chan struct{})}
}

func (p *printOverlay) Show(tr tracker.Transform) {
	if p.json {
		_ = outputJSON(tr)
	} else {
		fmt.Printf("sticker  x=%7.1f y=%7.1f  %6.1fx%-6.1f rot=%6.2f\n", tr.X, tr.Y, tr.Width, tr.Height, tr.Rotation)
	}
	p.tick()
}

func (p *printOverlay) Hide() {
	if p.json {
		_ = outputJSON(tracker.Transform{})
	} else {
		fmt.Println("sticker  hidden")
	}
	p.tick()
}

func (p *printOverlay) tick() {
	p.count++
	if p.limit > 0 && p.count >= p.limit {
		p.once.Do(func() { close(p.done) })
	}
}

func cameraFromFlags(cmd *cobra.Command, cfg *config.Config) *capture.FFmpegCamera {
	cam := &capture.FFmpegCamera{
		Device: cfg.Camera.Device,
		FPS:    cfg.Camera.FPS,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}
	if v := mustGetString(cmd, "device"); v != "" {
		cam.Device = v
	}
	if v := mustGetInt(cmd, "fps"); v > 0 {
		cam.FPS = v
	}
	if v := mustGetInt(cmd, "width"); v > 0 {
		cam.Width = v
	}
	if v := mustGetInt(cmd, "height"); v > 0 {
		cam.Height = v
	}
	return cam
}

func runTrack(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if mustGetBool(cmd, "list") {
		cameras, err := capture.ListCameras()
		if err != nil {
			return fmt.Errorf("listing cameras: %w", err)
		}
		for _, c := range cameras {
			fmt.Println(c)
		}
		return nil
	}

	svc, err := newServices(cfg, "")
	if err != nil {
		return err
	}
	defer svc.close()

	tcfg := web.LiveConfig(cfg)
	if mustGetBool(cmd, "no-mirror") {
		tcfg.Mirror = false
	}
	if style := mustGetString(cmd, "style"); style != "" {
		spec, err := svc.catalog.StyleSpec(style, "")
		if err != nil {
			return err
		}
		tcfg.Spec.AssetPath = spec.AssetPath
	}
	if v := mustGetFloat64(cmd, "scale"); v > 0 {
		tcfg.Spec.ScaleFactor = v
	}
	if cmd.Flags().Changed("y-offset") {
		tcfg.Spec.YOffsetRatio = mustGetFloat64(cmd, "y-offset")
	}

	cam := cameraFromFlags(cmd, cfg)
	overlay := newPrintOverlay(mustGetBool(cmd, "json"), mustGetInt(cmd, "frames"))
	loader := func(context.Context) (face.Locator, error) { return svc.locator, nil }
	t := tracker.New(capture.NewExclusive(cam), loader, svc.compositor, overlay, tcfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := t.Start(ctx); err != nil {
		return withHint(err)
	}

	ended := make(chan struct{})
	go func() {
		t.Wait()
		close(ended)
	}()

	select {
	case <-ctx.Done():
	case <-overlay.done:
	case <-ended:
	}

	if t.State() == tracker.Tracking {
		if err := t.Stop(); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "Processed %d frames\n", t.Frames())
	if err := t.Err(); err != nil {
		return withHint(err)
	}
	return nil
}

// withHint prefixes err with the user hint for known detection and device errors.
func withHint(err error) error {
	if hint := session.Hint(err); hint != "" {
		return fmt.Errorf("%s (%w)", hint, err)
	}
	return err
}
