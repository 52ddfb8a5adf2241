// Package server exposes the chat pipeline over HTTP for the browser UI:
// data upload, session settings, turns with cancellation, live progress
// over SSE and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/logging"
	"github.com/KaramelBytes/surveyloom/internal/persona"
	"github.com/KaramelBytes/surveyloom/internal/session"
)

// MaxUploadBytes caps a multipart upload.
const MaxUploadBytes = 64 << 20

const (
	workspaceTTL  = 12 * time.Hour
	sweepInterval = 10 * time.Minute
)

type Config struct {
	Addr           string
	SessionSecret  string
	AllowedOrigins []string
	Logger         *slog.Logger
	Personas       *persona.Registry
	NewController  ControllerFactory

	// Store is the initial data every new workspace starts with. Optional.
	Store *dataset.Store
	// Watch enables reloading Store via Reload when WatchFiles change.
	Watch      bool
	WatchFiles []string
	Reload     func() (*dataset.Store, error)
}

type Server struct {
	cfg          Config
	logger       *slog.Logger
	sessionStore *sessions.CookieStore
	notifier     *notifier
	personas     *persona.Registry

	mu           sync.Mutex
	workspaces   map[string]*workspace
	defaultStore *dataset.Store
}

func New(cfg Config) (*Server, error) {
	if cfg.NewController == nil {
		return nil, fmt.Errorf("server: controller factory is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("server: session secret must be at least 32 bytes")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Personas == nil {
		reg, err := persona.NewRegistry()
		if err != nil {
			return nil, err
		}
		cfg.Personas = reg
	}
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.MaxAge(86400 * 7)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		cfg:          cfg,
		logger:       cfg.Logger,
		sessionStore: store,
		notifier:     newNotifier(),
		personas:     cfg.Personas,
		workspaces:   map[string]*workspace{},
		defaultStore: cfg.Store,
	}, nil
}

func (s *Server) newController(store *dataset.Store) (*session.Controller, error) {
	return s.cfg.NewController(store)
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.requestLogger,
		middleware.Recoverer,
	)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/personas", s.handlePersonas)
		r.Get("/session", s.handleGetSession)
		r.Put("/session", s.handlePutSession)
		r.Get("/messages", s.handleMessages)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/cancel", s.handleCancel)
		r.Get("/chat/progress", s.handleProgress)
	})
	return r
}

// requestLogger logs one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Serve runs the HTTP server (plus the file watcher and workspace sweeper)
// until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", "addr", s.cfg.Addr, "watch", s.cfg.Watch)

	if s.cfg.Watch && s.cfg.Reload != nil && len(s.cfg.WatchFiles) > 0 {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	eg.Go(func() error {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-egctx.Done():
				return nil
			case now := <-t.C:
				if n := s.sweep(now, workspaceTTL); n > 0 {
					s.logger.Debug("idle workspaces dropped", "count", n)
				}
			}
		}
	})

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchFiles reloads the default data when a watched file is written.
// Directories are watched rather than files so editor rename-on-save is
// still seen.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	wanted := map[string]bool{}
	dirs := map[string]bool{}
	for _, f := range s.cfg.WatchFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		wanted[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			s.logger.Error("failed to watch directory", "dir", d, "error", err)
		}
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if !wanted[abs] {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				s.logger.Info("data file changed, reloading", "file", event.Name)
				store, err := s.cfg.Reload()
				if err != nil {
					s.logger.Error("reload failed; keeping previous data", "error", err)
					return
				}
				s.reloadDefault(store)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
