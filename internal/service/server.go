package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server owns the public listener.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// multipart uploads of a few MB over slow links
		ReadTimeout:    2 * time.Minute,
		IdleTimeout:    2 * time.Minute,
		MaxHeaderBytes: 64 << 10,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start blocks while serving. It returns nil once Stop has run.
func (s *Server) Start() error {
	s.logger.Info("Visakal-form listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires, then drops the rest.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Visakal-form shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Graceful shutdown incomplete, closing connections", zap.Error(err))
		return s.httpServer.Close()
	}
	return nil
}
