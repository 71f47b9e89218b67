// Package server provides the JSON HTTP API used by the presentation layer.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/feedkeeper/internal/database"
	"github.com/bryan-buckman/feedkeeper/internal/feeds"
	"github.com/bryan-buckman/feedkeeper/internal/rss"
)

// refreshTimeout bounds a blocking refresh-all request.
const refreshTimeout = 5 * time.Minute

// Deps are the collaborators the handlers use.
type Deps struct {
	Store       database.Store
	Registry    *feeds.Registry
	Scheduler   *feeds.Scheduler
	Manager     *feeds.Manager
	Coordinator *rss.Coordinator
	// Client fetches pages for feed discovery.
	Client *http.Client
	Logger *slog.Logger
	Clock  func() time.Time
}

// Server is the main HTTP server.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router
	srv    *http.Server
}

// New creates a new server.
func New(deps Deps) *Server {
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	s := &Server{
		deps:   deps,
		logger: deps.Logger.With("component", "server"),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", s.handleListFeeds)
			r.Post("/", s.handleAddFeed)
			r.Route("/{feedID}", func(r chi.Router) {
				r.Get("/", s.handleGetFeed)
				r.Patch("/", s.handleUpdateFeed)
				r.Delete("/", s.handleRemoveFeed)
				r.Put("/auto-update", s.handleSetAutoUpdate)
				r.Post("/refresh", s.handleRefreshFeed)
				r.Get("/messages", s.handleFeedMessages)
				r.Post("/clean", s.handleCleanFeed)
			})
		})
		r.Post("/messages/read", s.handleMarkRead)
		r.Post("/messages/delete", s.handleDeleteMessages)
		r.Get("/recycle-bin", s.handleRecycleBin)
		r.Get("/recycle-bin/counts", s.handleRecycleBinCounts)
		r.Post("/recycle-bin/restore", s.handleRestore)
		r.Post("/recycle-bin/empty", s.handleEmptyRecycleBin)
		r.Get("/folders", s.handleListFolders)
		r.Post("/folders", s.handleCreateFolder)
		r.Delete("/folders/{folderID}", s.handleDeleteFolder)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
		r.Post("/refresh", s.handleRefreshAll)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
		r.Get("/discover", s.handleDiscover)
	})

	s.router = r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("Server starting", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed", time.Since(start).Round(time.Microsecond))
	})
}
