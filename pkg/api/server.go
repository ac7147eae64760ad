// Package api exposes the read-only HTTP API over session data:
// health, session listing and detail, document/snippet/event queries,
// and research report retrieval. Front-ends consume this surface; the
// API never mutates a session.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server serves the read-only session API from a data directory.
type Server struct {
	dataDir string
	log     *slog.Logger
	http    *http.Server
}

// NewServer creates an API server over dataDir.
func NewServer(dataDir string) *Server {
	return &Server{
		dataDir: dataDir,
		log:     slog.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/api/health", s.Health)
	r.GET("/api/sessions", s.ListSessions)
	r.GET("/api/sessions/:id", s.GetSession)
	r.GET("/api/sessions/:id/documents", s.ListDocuments)
	r.GET("/api/sessions/:id/snippets", s.ListSnippets)
	r.GET("/api/sessions/:id/events", s.ListEvents)
	r.GET("/api/sessions/:id/report", s.GetReport)
	return r
}

// Start listens on addr until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
