// Package httpapi exposes the cron trigger, health and metrics over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"PatchRadar/internal/config"
	"PatchRadar/internal/usecase"
)

const defaultCycleTimeout = 10 * time.Minute

// CycleRunner runs one scheduler cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) usecase.CycleReport
}

// Server wraps the echo router.
type Server struct {
	cfg    config.ServerConfig
	echo   *echo.Echo
	logger *slog.Logger
}

// NewServer builds the router. metrics may be nil to leave /metrics unrouted.
func NewServer(cfg config.ServerConfig, runner CycleRunner, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds()}
			if v.Error != nil {
				logger.WarnContext(c.Request().Context(), "request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.DebugContext(c.Request().Context(), "request", attrs...)
			return nil
		},
	}))

	s := &Server{cfg: cfg, echo: e, logger: logger}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	trigger := func(c echo.Context) error {
		// a dropped client must not abort the cycle midway
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.cycleTimeout())
		defer cancel()
		report := runner.RunCycle(ctx, time.Now())
		return c.JSON(http.StatusOK, report)
	}
	api := e.Group("/api", s.authorize)
	api.GET("/cron", trigger)
	api.POST("/cron", trigger)

	return s
}

func (s *Server) cycleTimeout() time.Duration {
	if s.cfg.CycleTimeout > 0 {
		return s.cfg.CycleTimeout
	}
	return defaultCycleTimeout
}

// authorize accepts the shared secret as a bearer token or the configured trusted header.
func (s *Server) authorize(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if secret := s.cfg.CronSecret; secret != "" {
			token, ok := strings.CutPrefix(req.Header.Get(echo.HeaderAuthorization), "Bearer ")
			if ok && subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1 {
				return next(c)
			}
		}
		if name, want := s.cfg.TrustedHeader, s.cfg.TrustedHeaderValue; name != "" && want != "" {
			if subtle.ConstantTimeCompare([]byte(req.Header.Get(name)), []byte(want)) == 1 {
				return next(c)
			}
		}
		s.logger.WarnContext(req.Context(), "unauthorized trigger", "remote_ip", c.RealIP())
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
