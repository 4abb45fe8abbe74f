package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nabekah/farmkonnect-tracking/internal/config"
	"github.com/nabekah/farmkonnect-tracking/internal/logging"
	"github.com/nabekah/farmkonnect-tracking/internal/redis"
	"github.com/nabekah/farmkonnect-tracking/internal/server"
	"github.com/nabekah/farmkonnect-tracking/internal/tracking"
)

const simulateDelay = 2 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, hub *tracking.Hub, cancelSource context.CancelFunc, redisClient *redis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelSource()
		hub.Stop()

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Tracking broadcaster starting", "env", cfg.AppEnv, "port", cfg.Port)

	hub := tracking.NewHub(clock)

	sourceCtx, cancelSource := context.WithCancel(context.Background())
	defer cancelSource()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = setupRedis(sourceCtx, cfg)
		eventSource := redis.NewEventSource(redisClient, hub, clock)
		go eventSource.Run(sourceCtx)
	} else {
		slog.Warn("REDIS_URL not set, running without the pub/sub event source")
	}

	limits := server.NewConnectionLimits(cfg.MaxConnections, cfg.MaxPerIP, cfg.ConnRate, cfg.ConnBurst)

	var srv *server.Server
	if redisClient != nil {
		srv = server.NewServer(cfg, hub, limits, redisClient.Underlying())
	} else {
		// Pass nil explicitly to avoid a typed-nil interface
		srv = server.NewServer(cfg, hub, limits, nil)
	}

	if cfg.Simulate {
		simulator := tracking.NewSimulator(hub, clock, simulateDelay)
		go func() {
			reports := simulator.SimulateSequence(sourceCtx, "demo-product", "demo-batch")
			slog.Info("Demo sequence complete", "stages", len(reports))
		}()
	}

	done := runGracefulShutdown(srv, hub, cancelSource, redisClient)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
