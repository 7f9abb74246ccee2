package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/stylemate/internal/capture"
	"github.com/kozaktomas/stylemate/internal/catalog"
	"github.com/kozaktomas/stylemate/internal/compositor"
	"github.com/kozaktomas/stylemate/internal/config"
	"github.com/kozaktomas/stylemate/internal/face"
	"github.com/kozaktomas/stylemate/internal/geometry"
	"github.com/kozaktomas/stylemate/internal/logging"
	"github.com/kozaktomas/stylemate/internal/session"
	"github.com/kozaktomas/stylemate/internal/tracker"
	"github.com/kozaktomas/stylemate/internal/web/handlers"
	"github.com/kozaktomas/stylemate/internal/web/middleware"
)

// Deps are the services the web server exposes.
type Deps struct {
	Sessions   *session.Manager
	Catalog    *catalog.Catalog
	Compositor *compositor.Compositor
	Assets     fs.FS
	Locator    tracker.LocatorLoader
	// Camera is the camera attached to the server. Nil disables the tracker endpoints.
	Camera     capture.Camera
	Classifier string
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	binder     *middleware.SessionBinder
	tracker    *handlers.TrackerHandler
}

// LiveConfig builds the live tracker settings from the configuration.
func LiveConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		Spec: geometry.StickerSpec{
			AssetPath:    cfg.Live.StickerAsset,
			ScaleFactor:  cfg.Live.ScaleFactor,
			YOffsetRatio: cfg.Live.YOffsetRatio,
		},
		Mirror: cfg.Live.Mirror,
		Thresholds: face.Thresholds{
			MinConfidence: cfg.Detection.MinConfidence,
			MinSize:       cfg.Detection.MinFaceSize,
		},
	}
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps, idle time.Duration) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
		binder: middleware.NewSessionBinder(cfg.Web.SessionSecret, deps.Sessions, idle),
	}
	if deps.Camera != nil {
		s.tracker = handlers.NewTrackerHandler(deps.Camera, deps.Locator, deps.Compositor, LiveConfig(cfg))
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.Trace)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE and the try-on socket are long lived
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.Info(logging.Fields{"addr": s.httpServer.Addr}, "starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(nil, "shutting down web server")

	if s.tracker != nil {
		s.tracker.Shutdown(ctx)
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
