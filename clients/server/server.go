// Package server exposes card compositor sessions over HTTP, with live
// previews pushed over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xob0t/GoCard/internal/config"
	"github.com/xob0t/GoCard/pkg/catalog"
	"github.com/xob0t/GoCard/pkg/compositor"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
)

// Options configures a Server.
type Options struct {
	Server      config.ServerConfig
	Compositor  config.CompositorConfig
	Catalog     *catalog.Catalog // nil = built-in profiles, no gallery
	Services    compositor.Services
	Logger      *slog.Logger
	OpenBrowser bool
}

// Server is the card editor API.
type Server struct {
	cfg     config.ServerConfig
	comp    config.CompositorConfig
	catalog *catalog.Catalog
	svc     compositor.Services
	logger  *slog.Logger
	open    bool

	sessions *sessionStore
	uploads  *uploadStore
	exports  *rateLimiter

	routerOnce sync.Once
	router     http.Handler

	mu        sync.Mutex
	boundAddr string
}

// New creates a server. Services.Renderer is required.
func New(opts Options) (*Server, error) {
	if opts.Services.Renderer == nil {
		return nil, errors.New("server requires a renderer")
	}
	if opts.Services.Exporter == nil {
		opts.Services.Exporter = compositor.NewExporter(opts.Services.Renderer, opts.Compositor.ExportPrefix)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Server.SessionTTL <= 0 {
		opts.Server.SessionTTL = config.Defaults().Server.SessionTTL
	}
	if opts.Server.ExportPerMinute <= 0 {
		opts.Server.ExportPerMinute = config.Defaults().Server.ExportPerMinute
	}
	if opts.Server.ExportBurst <= 0 {
		opts.Server.ExportBurst = config.Defaults().Server.ExportBurst
	}

	return &Server{
		cfg:      opts.Server,
		comp:     opts.Compositor,
		catalog:  opts.Catalog,
		svc:      opts.Services,
		logger:   opts.Logger,
		open:     opts.OpenBrowser,
		sessions: newSessionStore(opts.Server.SessionTTL, opts.Logger),
		uploads:  newUploadStore(),
		exports:  newRateLimiter(opts.Server.ExportPerMinute, opts.Server.ExportBurst),
	}, nil
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() { s.router = s.routes() })
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	withTimeout := middleware.Timeout(requestTimeout)

	r.Group(func(r chi.Router) {
		r.Use(withTimeout)
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/catalog", s.handleCatalog)
		r.Post("/api/fonts", s.handleUploadFont)

		r.Route("/api/uploads", func(r chi.Router) {
			r.Get("/", s.handleListUploads)
			r.Post("/", s.handleUploadTemplate)
			r.Get("/{uid}", s.handleGetUpload)
			r.Delete("/{uid}", s.handleDeleteUpload)
		})

		r.Post("/api/sessions", s.handleCreateSession)
	})

	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Use(s.sessionCtx)

		// The event stream is long-lived and stays outside the request timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(withTimeout)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/template", s.handleSelectTemplate)
			r.Patch("/style", s.handlePatchStyle)
			r.Post("/preset", s.handlePreset)
			r.Post("/reset", s.handleReset)
			r.Post("/undo", s.handleUndo)
			r.Post("/pointer", s.handlePointer)
			r.Post("/zoom", s.handleZoom)
			r.Post("/fonts/retry", s.handleRetryFonts)
			r.Delete("/warnings/{kind}", s.handleDismissWarning)
			r.Get("/preview.png", s.handlePreview)

			r.Group(func(r chi.Router) {
				r.Use(s.exports.middleware)
				r.Post("/export", s.handleExport)
				r.Post("/share", s.handleShare)
			})
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// every session.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	go s.sessions.run(ctx, sweepInterval)
	go s.exports.run(ctx)

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	url := "http://" + displayAddr(s.BoundAddr())
	s.logger.Info("card editor listening", "url", url)
	if s.open {
		go openBrowser(url)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.sessions.closeAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = httpSrv.Shutdown(shutdownCtx)
	s.sessions.closeAll()
	s.logger.Info("card editor stopped")
	return err
}

// BoundAddr returns the listening address. Only valid after Run started.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, "[::]:") {
		return "localhost" + strings.TrimPrefix(addr, "[::]")
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		return "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Start()
}
