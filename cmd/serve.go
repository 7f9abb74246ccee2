package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/constants"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/logging"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Stylemate web server.
The web server serves the browser client, the capture session API, the live
try-on websocket and, with --camera, a tracker on a camera attached to the host.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies")
	serveCmd.Flags().String("classifier", "", "Classifier backend: openai, gemini, ollama (default: first configured)")
	serveCmd.Flags().Bool("camera", false, "Attach the host camera (CAMERA_DEVICE) for the /tracker endpoints")
}

// resolveServeHostPort applies flag overrides to the web config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	svc, err := newServices(cfg, mustGetString(cmd, "classifier"))
	if err != nil {
		return err
	}
	defer svc.close()

	idle := constants.SessionIdleMinutes * time.Minute
	deps := web.Deps{
		Sessions:   session.NewManager(svc.sessionDeps(), idle),
		Catalog:    svc.catalog,
		Compositor: svc.compositor,
		Assets:     svc.assets,
		Locator:    func(context.Context) (face.Locator, error) { return svc.locator, nil },
		Classifier: svc.classifier,
	}
	if mustGetBool(cmd, "camera") {
		deps.Camera = capture.NewExclusive(&capture.FFmpegCamera{
			Device: cfg.Camera.Device,
			FPS:    cfg.Camera.FPS,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
		})
	}

	server := web.NewServer(cfg, deps, idle)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Error(logging.Fields{"error": err}, "error during shutdown")
		}
	}()

	logging.Info(logging.Fields{
		"classifier": svc.classifier,
		"locator":    cfg.Locator.URL,
		"camera":     deps.Camera != nil,
	}, "services ready")
	fmt.Printf("Starting Stylemate on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
