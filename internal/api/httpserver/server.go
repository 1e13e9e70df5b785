// Package httpserver runs the REST listener as a lifecycle-managed service.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dujyo/gasengine/internal/app/system"
	"github.com/dujyo/gasengine/pkg/logger"
)

// Options tunes the listener. Zero fields use conservative defaults.
type Options struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps http.Server so the system manager can drive it.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             *logger.Logger
}

var _ system.Service = (*Server)(nil)

// New builds a server for the given address and handler.
func New(addr string, handler http.Handler, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpserver")
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		shutdownTimeout: opts.ShutdownTimeout,
		log:             log,
	}
}

func (s *Server) Name() string { return "http-server" }

// Start begins serving in the background. Listener failures after startup
// are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server terminated")
		}
	}()
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
