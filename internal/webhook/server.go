package webhook

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"mediabot/internal/config"
	logx "mediabot/pkg/logx"
)

// Server owns the HTTP listener.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	h    http.Handler
	srv  *http.Server
	ln   net.Listener
	addr string
}

func NewServer(h http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{h: h, log: log}
}

// Start listens on cfg.Addr and serves in the background. It fails when
// the address cannot be bound.
func (s *Server) Start(cfg config.WebhookConfig) error {
	readTimeout, err := config.ParseDurationOrDefault("webhook.read_timeout", cfg.ReadTimeout, 15*time.Second)
	if err != nil {
		return err
	}
	writeTimeout, err := config.ParseDurationOrDefault("webhook.write_timeout", cfg.WriteTimeout, 3*time.Minute)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("webhook server already running")
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	s.srv, s.ln, s.addr = srv, ln, ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("webhook server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("webhook server listening", logx.String("addr", addr))
	return nil
}

// Addr is the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Shutdown drains in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if ln != nil {
		_ = ln.Close()
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	s.log.Info("webhook server stopped", logx.String("addr", addr))
	return err
}
