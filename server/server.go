// Package server hosts the HTTP surface of the dispatch core.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/dispatchcore/ai/metrics"
	"github.com/hrygo/dispatchcore/ai/observability/logging"
	"github.com/hrygo/dispatchcore/internal/profile"
	apiv1 "github.com/hrygo/dispatchcore/server/router/api/v1"
)

// Server is the echo server for the v1 API, health and metrics.
type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
}

// NewServer builds the router. exporter may be nil, in which case /metrics
// is not mounted.
func NewServer(_ context.Context, p *profile.Profile, api *apiv1.APIV1Service, exporter *metrics.PrometheusExporter) (*Server, error) {
	if api == nil {
		return nil, fmt.Errorf("server: api service is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("HTTP: request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": p.Version,
		})
	})
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	api.Register(e)

	return &Server{Profile: p, echoServer: e}, nil
}

// requestLogger stores a logger tagged with the request id in the request
// context.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		req := c.Request()
		logger := slog.Default().With("request_id", id)
		c.SetRequest(req.WithContext(logging.ToContext(req.Context(), logger)))
		return next(c)
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("Server: listening", "address", address)
	return s.echoServer.Start(address)
}

// Shutdown stops accepting requests and waits up to 10s for in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.echoServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown echo server: %w", err)
	}
	slog.Info("Server: stopped")
	return nil
}
