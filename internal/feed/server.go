// Package feed serves the gate camera over HTTP so an operator can look at a
// visitor the gate could not verify. The server is temporary: it stops after
// a configured duration.
package feed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/gatekeeper/internal/camera"
	"github.com/kozaktomas/gatekeeper/internal/constants"
)

//go:embed static/index.html
var indexHTML []byte

// Server represents the live feed server
type Server struct {
	source     camera.Source
	router     *chi.Mux
	httpServer *http.Server
	interval   time.Duration
	logger     *slog.Logger

	// captureMu serializes access to the camera across viewers
	captureMu sync.Mutex

	// baseCtx is cancelled before shutdown so open streams end
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a feed server listening on host:port. interval is the
// pause between frames of the MJPEG stream.
func NewServer(source camera.Source, host string, port int, interval time.Duration) *Server {
	if interval <= 0 {
		interval = constants.DefaultFeedFrameInterval
	}
	r := chi.NewRouter()
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		source:     source,
		router:     r,
		interval:   interval,
		logger:     slog.Default(),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(host, fmt.Sprint(port)),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// no WriteTimeout, the stream is long-lived
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/stream", s.handleStream)
	s.router.Get("/snapshot", s.handleSnapshot)
	s.router.Get("/healthz", handleHealth)
}

// Run serves until ctx is cancelled or duration elapses, then shuts the
// server down. A zero duration serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, duration time.Duration) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, duration)
}

// Listen binds the configured address, so a port already in use is reported
// before anything is served.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start feed server: %w", err)
	}
	return ln, nil
}

// Serve accepts connections on ln until ctx is cancelled or duration elapses.
func (s *Server) Serve(ctx context.Context, ln net.Listener, duration time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting live feed", "addr", ln.Addr().String(), "duration", duration)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("feed server failed: %w", err)
		}
		close(errCh)
	}()

	var expired <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("live feed interrupted")
	case <-expired:
		s.logger.Info("live feed duration elapsed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown ends open streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down live feed")
	s.cancelBase()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down feed server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) capture(ctx context.Context) (camera.Frame, error) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	return s.source.Capture(ctx)
}
