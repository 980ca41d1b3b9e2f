// Package api assembles the HTTP surface: one echo server mounting each
// domain package's handlers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/driftwood/driftwood/internal/history"
	"github.com/driftwood/driftwood/internal/indexer"
	"github.com/driftwood/driftwood/internal/library"
	"github.com/driftwood/driftwood/internal/quality"
	"github.com/driftwood/driftwood/internal/scheduler"
	"github.com/driftwood/driftwood/internal/websocket"
)

// IndexerStatus reports upstream index connectivity.
type IndexerStatus interface {
	Status(ctx context.Context) *indexer.ConnectionStatus
}

// Deps holds the services the API serves. Hub and Indexer are optional.
type Deps struct {
	Quality   *quality.Service
	Scheduler *scheduler.Scheduler
	Library   *library.Service
	History   *history.Service
	Hub       *websocket.Hub
	Indexer   IndexerStatus
	Logger    zerolog.Logger
}

// Server handles HTTP requests for the driftwood API.
type Server struct {
	echo      *echo.Echo
	deps      Deps
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a new API server instance.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)

	quality.NewHandlers(s.deps.Quality).RegisterRoutes(api.Group("/qualityprofiles"))
	scheduler.NewHandlers(s.deps.Scheduler).RegisterRoutes(api.Group("/tasks"))
	library.NewHandlers(s.deps.Library).RegisterRoutes(api.Group("/library"))
	history.NewHandlers(s.deps.History).RegisterRoutes(api.Group("/history"))

	if s.deps.Hub != nil {
		s.echo.GET("/ws", s.deps.Hub.HandleWebSocket)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	tasks := s.deps.Scheduler.Tasks()

	running := 0
	for _, t := range tasks {
		if t.Running {
			running++
		}
	}

	body := map[string]any{
		"startTime":    s.startTime.UTC().Format(time.RFC3339),
		"taskCount":    len(tasks),
		"tasksRunning": running,
	}
	if s.deps.Indexer != nil {
		body["indexer"] = s.deps.Indexer.Status(c.Request().Context())
	}

	return c.JSON(http.StatusOK, body)
}
