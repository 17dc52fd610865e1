// Package server exposes container snapshots over HTTP as an HTML dashboard
// and a JSON listing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/zorak1103/whatsrunning/internal/engine"
	"github.com/zorak1103/whatsrunning/internal/probe"
	"github.com/zorak1103/whatsrunning/internal/templates"
	"github.com/zorak1103/whatsrunning/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Snapshotter produces container snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) engine.Snapshot
}

// Pinger checks that the container runtime is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Hostname string        // shown in the dashboard and used for port links
	Version  string        // reported on /about
	CacheTTL time.Duration // reuse a snapshot for this long, 0 disables caching
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server serves the dashboard, the JSON API and the probe short-circuit.
type Server struct {
	snapshotter Snapshotter
	pinger      Pinger
	dashboard   *template.Template
	hostname    string
	version     string
	cacheTTL    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex // serializes cache refreshes
	cached   engine.Snapshot
	cachedAt time.Time
}

type dashboardData struct {
	Hostname   string
	Version    string
	Containers engine.Snapshot
}

// New creates a Server.
func New(snapshotter Snapshotter, pinger Pinger, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	tmpl, err := template.New("dashboard").Parse(templates.DashboardHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}

	return &Server{
		snapshotter: snapshotter,
		pinger:      pinger,
		dashboard:   tmpl,
		hostname:    opts.Hostname,
		version:     opts.Version,
		cacheTTL:    opts.CacheTTL,
		logger:      opts.Logger,
		now:         opts.Now,
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/", probeShortCircuit(http.HandlerFunc(s.handleDashboard))).Methods(http.MethodGet)
	r.Handle("/api/containers", probeShortCircuit(http.HandlerFunc(s.handleContainers))).Methods(http.MethodGet)
	r.HandleFunc("/about", s.handleAbout).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shut down when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shut down HTTP server.", "err", err)
		}
	}()

	s.logger.Info("Serving HTTP.", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// probeShortCircuit answers probes from other instances without doing any work.
func probeShortCircuit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(probe.Header) != "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("Alive"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Hostname:   s.hostname,
		Version:    s.version,
		Containers: s.snapshot(r.Context()),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dashboard.Execute(w, data); err != nil {
		s.logger.Error("Failed to render dashboard.", "err", err)
	}
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error("Failed to encode snapshot.", "err", err)
	}
}

func (s *Server) handleAbout(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, version.GetAbout(s.version))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.logger.Warn("Health check failed.", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("docker unavailable"))
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// snapshot returns a fresh snapshot, or the cached one while it is younger
// than the cache TTL. Empty snapshots are never cached.
func (s *Server) snapshot(ctx context.Context) engine.Snapshot {
	if s.cacheTTL <= 0 {
		return nonNil(s.snapshotter.Snapshot(ctx))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cached) > 0 && s.now().Sub(s.cachedAt) < s.cacheTTL {
		return s.cached
	}

	snap := nonNil(s.snapshotter.Snapshot(ctx))
	if len(snap) > 0 {
		s.cached = snap
		s.cachedAt = s.now()
	}
	return snap
}

func nonNil(snap engine.Snapshot) engine.Snapshot {
	if snap == nil {
		return engine.Snapshot{}
	}
	return snap
}
