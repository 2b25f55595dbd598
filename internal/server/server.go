// Package server exposes the gateway over HTTP: the page proxy with its offline worker,
// the consent endpoints, runtime configuration and the API passthrough.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/consent"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/metrics"
	"github.com/varoOP/clubgate/internal/seo"
	"github.com/varoOP/clubgate/internal/worker"
)

// ProxyPrefix is where the API passthrough is mounted
const ProxyPrefix = "/proxy"

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators the routes call into
type Deps struct {
	Fetcher  domain.Fetcher
	Registry *worker.Registry
	Gate     *consent.Gate
	Consent  consent.Store
	SEO      seo.Service
	Metrics  *metrics.Metrics
	Proxy    http.Handler
}

type Server struct {
	log  zerolog.Logger
	cfg  *domain.Config
	deps Deps
	echo *echo.Echo
}

func New(log zerolog.Logger, cfg *domain.Config, deps Deps) *Server {
	s := &Server{
		log:  log.With().Str("module", "server").Logger(),
		cfg:  cfg,
		deps: deps,
		echo: echo.New(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET(RuntimeConfigPath, s.runtimeConfig)
	s.echo.GET("/service-worker.js", s.serviceWorker)

	s.echo.GET("/_consent", s.consentDecision)
	s.echo.POST("/_consent/accept", s.consentAccept)
	s.echo.POST("/_consent/ignore", s.consentIgnore)

	maintenance := s.echo.Group("/_sw")
	if s.cfg.Maintenance.Token == "" {
		maintenance.Any("/*", func(echo.Context) error { return echo.ErrNotFound })
	} else {
		maintenance.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup:  "header:" + echo.HeaderAuthorization,
			AuthScheme: "Bearer",
			Validator:  s.validMaintenanceToken,
		}))
		maintenance.POST("/unregister", s.workerUnregister)
		maintenance.POST("/clear", s.workerClear)
	}

	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}
	if s.deps.Proxy != nil {
		s.echo.Any(ProxyPrefix+"/*", echo.WrapHandler(s.deps.Proxy))
	}

	s.echo.Any("/*", s.gateway)
}

func (s *Server) validMaintenanceToken(key string, _ echo.Context) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Maintenance.Token)) == 1, nil
}

// Handler returns the routed handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("gateway listening")
		errCh <- s.echo.Start(s.cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "could not shut down gateway")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "gateway stopped")
	}
}
