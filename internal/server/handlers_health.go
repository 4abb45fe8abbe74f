package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// handleLiveness reports process liveness. Always 200 while the process runs.
func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports readiness to accept connections. When a Redis
// event source is configured it must be reachable.
func (s *Server) handleReadiness(c echo.Context) error {
	checks := map[string]string{"hub": "ok"}

	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"checks": checks,
			})
		}
		checks["redis"] = "ok"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"checks": checks,
	})
}

// handleStats returns a snapshot of the hub's stores.
func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Stats())
}
