// Package server exposes the diagnosis service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hangarlabs/aw139-certainty/internal/application"
	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is what the HTTP layer needs from the application.
type Service interface {
	Diagnose(ctx context.Context, req domain.DiagnosisRequest) (domain.DiagnosisReport, error)
	Score(ctx context.Context, in certainty.Input) (domain.CertaintyResult, error)
}

// Server serves the diagnosis API.
type Server struct {
	app     *application.App
	service Service
	cfg     application.ServerConfig
	log     logger.Logger
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithService replaces the service built by the application.
func WithService(svc Service) Option {
	return func(s *Server) { s.service = svc }
}

// WithLogger sets the base request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds a server for app.
func New(app *application.App, opts ...Option) (*Server, error) {
	if app == nil || app.Config == nil {
		return nil, errors.New("server: application is not bootstrapped")
	}

	s := &Server{
		app: app,
		cfg: app.Config.Server,
		log: logger.Default(),
	}
	if app.Service != nil {
		s.service = app.Service
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.service == nil {
		return nil, errors.New("server: no diagnosis service")
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	if s.cfg.Mode != "" {
		gin.SetMode(s.cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(s.log))
	r.Use(CORSMiddleware(s.cfg.CORSOrigins))

	var metrics ports.MetricsCollector = ports.NopMetrics{}
	if s.app.Metrics != nil {
		metrics = s.app.Metrics
		r.GET("/metrics", gin.WrapH(s.app.Metrics.Handler()))
	}
	r.Use(MetricsMiddleware(metrics))

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/diagnose", s.handleDiagnose)
		v1.POST("/certainty", s.handleCertainty)
	}
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", srv.Addr, "mode", gin.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
