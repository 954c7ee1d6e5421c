package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/health"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/progress"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/refresh"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/scheduler"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/websocket"
)

// ItemCounter reports how many items of each kind the store holds.
type ItemCounter interface {
	CountByKind(ctx context.Context) (map[library.Kind]int, error)
}

// Deps are the services exposed over HTTP. Nil entries disable their routes.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Progress  *progress.Manager
	Hub       *websocket.Hub
	Logs      LogsProvider
	Refresh   *refresh.Handlers
	Health    *health.Handlers
	Items     ItemCounter

	Version  string
	DryRun   bool
	Jellyfin string
}

// Server handles HTTP requests for the refresh service.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger zerolog.Logger
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
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

// StatusResponse summarizes the service for GET /api/v1/status.
type StatusResponse struct {
	Version    string         `json:"version"`
	DryRun     bool           `json:"dryRun"`
	Jellyfin   string         `json:"jellyfin,omitempty"`
	ItemCounts map[string]int `json:"itemCounts"`
}

func (s *Server) getStatus(c echo.Context) error {
	resp := StatusResponse{
		Version:    s.deps.Version,
		DryRun:     s.deps.DryRun,
		Jellyfin:   s.deps.Jellyfin,
		ItemCounts: map[string]int{},
	}

	if s.deps.Items != nil {
		counts, err := s.deps.Items.CountByKind(c.Request().Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to count items")
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to count items")
		}
		for kind, n := range counts {
			resp.ItemCounts[string(kind)] = n
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listActivities(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Progress.GetAllActivities())
}
