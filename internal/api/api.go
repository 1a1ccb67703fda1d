// Package api provides the HTTP surface of PromptDeck.
//
// It exposes the in-app notice feed, pack progress operations and the live
// delivery timers as small JSON endpoints. Newly delivered notices are also
// streamed as server-sent events.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/engine"
	"github.com/BTreeMap/PromptDeck/internal/models"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Engine is the pack registry the API operates on.
type Engine interface {
	Packs() []*models.Pack
	Pack(packID string) (*models.Pack, error)
	GetNextPrompt(packID string) (*models.Prompt, error)
	MarkPromptCompleted(packID, promptID string) error
	ResetProgress(ctx context.Context, packID string) error
	ResetCycle(ctx context.Context, packID string) error
	Restart(ctx context.Context, packID string) error
	GetPackStats(packID string) (engine.PackStats, error)
	GetOverallStats() engine.OverallStats
}

// Notifier exposes delivery state and notice interaction.
type Notifier interface {
	ActiveTimers() []models.TimerInfo
	HandleNoticeClick(ctx context.Context, noticeID string) error
	Permission() models.Permission
}

// Feed is the in-app notice feed.
type Feed interface {
	List() []models.Notice
	Active(now time.Time) []models.Notice
	Dismiss(noticeID string) bool
	Subscribe() (<-chan models.Notice, func())
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
	Now  func() time.Time
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithClock injects the time source used for notice lifetimes.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Server serves the PromptDeck HTTP API.
type Server struct {
	engine   Engine
	notifier Notifier
	feed     Feed
	opts     Opts

	stopOnce    sync.Once
	stopStreams chan struct{}
}

// NewServer creates an API server.
func NewServer(e Engine, n Notifier, feed Feed, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{engine: e, notifier: n, feed: feed, opts: o, stopStreams: make(chan struct{})}
}

// closeStreams ends every open notice stream so shutdown is not held up by
// long-lived connections.
func (s *Server) closeStreams() {
	s.stopOnce.Do(func() { close(s.stopStreams) })
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /notices", s.listNoticesHandler)
	mux.HandleFunc("GET /notices/stream", s.streamNoticesHandler)
	mux.HandleFunc("POST /notices/{id}/open", s.openNoticeHandler)
	mux.HandleFunc("DELETE /notices/{id}", s.dismissNoticeHandler)
	mux.HandleFunc("GET /packs", s.listPacksHandler)
	mux.HandleFunc("GET /packs/{id}", s.getPackHandler)
	mux.HandleFunc("GET /packs/{id}/next", s.nextPromptHandler)
	mux.HandleFunc("POST /packs/{id}/complete", s.completeHandler)
	mux.HandleFunc("POST /packs/{id}/reset", s.resetHandler)
	mux.HandleFunc("POST /packs/{id}/reset-cycle", s.resetCycleHandler)
	mux.HandleFunc("POST /packs/{id}/restart", s.restartHandler)
	mux.HandleFunc("GET /packs/{id}/stats", s.packStatsHandler)
	mux.HandleFunc("GET /stats", s.overallStatsHandler)
	mux.HandleFunc("GET /timers", s.timersHandler)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeStreams)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	<-errCh
	slog.Info("Server.Run: API stopped")
	return nil
}
