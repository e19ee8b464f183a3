package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/phkit/pkg/logger"
)

// Config holds ingest server configuration
type Config struct {
	Addr            string        `env:"INGEST_ADDR" envDefault:":8010"`
	ReadTimeout     time.Duration `env:"INGEST_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"INGEST_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"INGEST_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"INGEST_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// DefaultConfig returns default ingest server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8010",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server runs a handler until its context is canceled, then shuts down
// gracefully.
type Server struct {
	cfg     Config
	handler http.Handler
	log     *slog.Logger

	mu    sync.Mutex
	srv   *http.Server
	addr  net.Addr
	ready chan struct{}
}

// NewServer returns a Server for handler. A nil log discards output.
func NewServer(cfg Config, handler http.Handler, log *slog.Logger) *Server {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log.With(logger.Component("ingest_server")),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the listening address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens and serves until ctx is done. Listen failures are wrapped with
// ErrStart, shutdown failures with ErrShutdown.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, errors.New("server already running"))
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, err)
	}
	s.srv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.addr = ln.Addr()
	srv := s.srv
	s.mu.Unlock()
	close(s.ready)

	s.log.Info("ingest server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(ErrStart, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(ErrShutdown, err)
	}
	<-errCh
	s.log.Info("ingest server stopped")
	return nil
}
