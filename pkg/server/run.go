package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/goplace/pkg/protocol"
	"github.com/NicolasHaas/goplace/pkg/version"
)

// Start binds the listener and starts the hub, the websocket endpoint and
// the metrics endpoint. It returns once the server is accepting.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	if s.cfg.TLS {
		cert, err := loadOrGenerateTLS(s.cfg)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: tls: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.Handle("/", s)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.started = true
	go s.loop(s.ctx)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("websocket listener error", "err", err)
		}
	}()

	s.StartMetricsHTTP()
	if s.cfg.LogInterval > 0 {
		s.metrics.StartPeriodicLog(s.cfg.LogInterval, s.ctx.Done())
	}

	slog.Info("goplace server running",
		"addr", ln.Addr().String(),
		"tls", s.cfg.TLS,
		"accounts", s.dir.AccountCount(),
		version.LogAttr(),
	)
	return nil
}

// Addr returns the websocket listener address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown kicks every connection with reason "update", waits briefly for
// the kicks to be written and stops the server.
func (s *Server) Shutdown() {
	if s.started {
		_ = s.Do(func() {
			s.stopping = true
			for _, c := range s.conns {
				s.kick(c, protocol.KickUpdate, "")
			}
		})
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.httpSrv.Shutdown(ctx)
		cancel()
	}

	flushed := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(5 * time.Second):
		slog.Warn("shutdown: gave up waiting for connections to flush")
	}
	s.cancel()
}
