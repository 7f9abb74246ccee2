package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/stylemate/internal/web/handlers"
	"github.com/kozaktomas/stylemate/internal/web/static"
)

const requestTimeout = 2 * time.Minute

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Classifier)
	stylesHandler := handlers.NewStylesHandler(s.deps.Catalog)
	sessionHandler := handlers.NewSessionHandler()
	tryOnHandler := handlers.NewTryOnHandler(s.deps.Catalog, s.deps.Locator, s.deps.Compositor, LiveConfig(s.config))

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Long-lived streams run without the request timeout
		r.Get("/tryon/ws", tryOnHandler.Serve)
		if s.tracker != nil {
			r.Get("/tracker/events", s.tracker.Events)
		}

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			r.Get("/config", configHandler.Get)

			// Style catalog
			r.Get("/styles", stylesHandler.List)
			r.Get("/styles/{category}", stylesHandler.Get)

			// Server camera tracker
			if s.tracker != nil {
				r.Get("/tracker", s.tracker.Status)
				r.Post("/tracker/start", s.tracker.Start)
				r.Post("/tracker/stop", s.tracker.Stop)
			}

			// Capture session, bound by cookie
			r.Group(func(r chi.Router) {
				r.Use(s.binder.Bind)

				r.Get("/session", sessionHandler.Get)
				r.Post("/session/source", sessionHandler.Source)
				r.Post("/session/model", sessionHandler.Model)
				r.Post("/session/upload", sessionHandler.Upload)
				r.Post("/session/analyze", sessionHandler.Analyze)
				r.Post("/session/pause", sessionHandler.Pause)
				r.Post("/session/resume", sessionHandler.Resume)
				r.Post("/session/composite", sessionHandler.Composite)
			})
		})
	})

	// Sticker and display images
	if s.deps.Assets != nil {
		assets := http.StripPrefix("/assets/", http.FileServer(http.FS(s.deps.Assets)))
		s.router.Get("/assets/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=86400")
			assets.ServeHTTP(w, r)
		})
	}

	s.router.Get("/*", s.serveClient)
}

// serveClient serves the embedded browser client. Unknown paths get the
// index page so client-side routes keep working.
func (s *Server) serveClient(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path != "" && !strings.HasSuffix(path, "/") {
		if f, err := static.FS().Open(path); err == nil {
			stat, err := f.Stat()
			f.Close()
			if err == nil && !stat.IsDir() {
				http.FileServerFS(static.FS()).ServeHTTP(w, r)
				return
			}
		}
	}

	page, err := static.Index()
	if err != nil {
		http.Error(w, "client not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
