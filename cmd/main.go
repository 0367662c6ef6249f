package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelasqz/multichat-back/internal/api"
	"github.com/avelasqz/multichat-back/internal/auth"
	"github.com/avelasqz/multichat-back/internal/cache"
	"github.com/avelasqz/multichat-back/internal/chat"
	"github.com/avelasqz/multichat-back/internal/config"
	"github.com/avelasqz/multichat-back/internal/db"
	"github.com/avelasqz/multichat-back/internal/identity"
	"github.com/avelasqz/multichat-back/internal/observability"
	"github.com/avelasqz/multichat-back/internal/persistence"
	"github.com/avelasqz/multichat-back/internal/registry"
	"github.com/avelasqz/multichat-back/internal/utils"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize OpenTelemetry
	otelCleanup, err := observability.InitOpenTelemetry("multichat-back", "1.0.0")
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// Initialize structured logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Initialize database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize database: %v", err)
	}

	// Initialize cache (Redis)
	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize cache: %v", err)
	}

	// Identity service client behind a circuit breaker
	resolver := identity.NewResolver(cfg.UserServiceURL, logger)

	jwtMgr, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to initialize JWT manager: %v", err)
	}

	// In-memory registries for live rooms and presence
	rooms := registry.NewRooms()
	presence := registry.NewPresence()

	// Serialized message-state update pipeline
	updateQueue := persistence.NewQueue()
	applier := persistence.NewApplier(database, updateQueue, logger)

	chatSvc := chat.NewService(database, rooms, presence, applier, logger)

	// Setup HTTP router
	router := api.NewRouter(api.Deps{
		DB:       database,
		Cache:    redisCache,
		Resolver: resolver,
		JWTMgr:   jwtMgr,
		ChatSvc:  chatSvc,
		Rooms:    rooms,
		Presence: presence,
		Config:   cfg,
		Logger:   logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info(context.Background(), "Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(context.Background(), "Server error: %v", err)
		}
	}()

	// Graceful shutdown setup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received
	<-sigChan

	gracefulShutdown(context.Background(), logger, server, chatSvc, database, redisCache, otelCleanup)

	logger.Info(context.Background(), "Application stopped.")
}

// gracefulShutdown handles the graceful shutdown of all components
func gracefulShutdown(ctx context.Context, logger *utils.Logger, server *http.Server, chatSvc *chat.Service, database *db.Database, redisCache *cache.Cache, otelCleanup func(context.Context) error) {
	logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// 1. Shut down HTTP server. Closing the listener drops the sessions,
	// which tear down their rooms on the way out.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error: %v", err)
	} else {
		logger.Info(ctx, "HTTP server stopped.")
	}

	// 2. Let in-flight seen/delivered updates drain before the stores close.
	chatSvc.Wait()
	logger.Info(ctx, "Chat service drained.")

	// 3. Close Database connection
	if err := database.Close(); err != nil {
		logger.Error(ctx, "Database close error: %v", err)
	} else {
		logger.Info(ctx, "Database connection closed.")
	}

	// 4. Close Redis cache connection
	if err := redisCache.Close(); err != nil {
		logger.Error(ctx, "Redis cache close error: %v", err)
	} else {
		logger.Info(ctx, "Redis cache connection closed.")
	}

	// 5. Shutdown OpenTelemetry
	if otelCleanup != nil {
		if err := otelCleanup(shutdownCtx); err != nil {
			logger.Error(ctx, "OpenTelemetry shutdown error: %v", err)
		} else {
			logger.Info(ctx, "OpenTelemetry shut down.")
		}
	}

	logger.Info(ctx, "Graceful shutdown complete.")
}
