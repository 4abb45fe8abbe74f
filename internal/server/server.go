package server

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nabekah/farmkonnect-tracking/internal/config"
	"github.com/nabekah/farmkonnect-tracking/internal/tracking"
)

// redisHealthChecker is a minimal interface for Redis health checks.
// Nil when the service runs without a Redis event source.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	hub    *tracking.Hub
	limits *ConnectionLimits
	redis  redisHealthChecker
}

// NewServer creates the HTTP server. redis may be nil when no event source
// is configured; readiness then skips the Redis check.
func NewServer(cfg *config.Config, hub *tracking.Hub, limits *ConnectionLimits, redis redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:   e,
		config: cfg,
		hub:    hub,
		limits: limits,
		redis:  redis,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
