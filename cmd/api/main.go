package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stocktake-api/internal/bulksync"
	"stocktake-api/internal/cache"
	"stocktake-api/internal/config"
	"stocktake-api/internal/handler"
	"stocktake-api/internal/middleware"
	"stocktake-api/internal/repository"
	"stocktake-api/internal/router"
	"stocktake-api/internal/service"
	"stocktake-api/internal/stream"
	"stocktake-api/internal/workflow"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting stocktake API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize document store based on config
	var store repository.Store
	switch cfg.Store.Type {
	case "mongodb", "mongo":
		mongoStore, err := repository.NewMongoStore(cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			log.Fatalf("Failed to initialize MongoDB: %v", err)
		}
		store = mongoStore
		log.Println("MongoDB store initialized")
	case "memory":
		store = repository.NewMemoryStore()
		log.Println("Memory store initialized")
	default: // sqlite
		sqliteStore, err := repository.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		store = sqliteStore
		log.Println("SQLite store initialized")
	}
	defer store.Close()

	// Initialize Redis client (optional). When unreachable, presence,
	// events, and caching fall back to in-process equivalents.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis client initialized")
	}
	cancel()

	var bus stream.Bus
	var appCache cache.Cache
	if redisClient != nil {
		defer redisClient.Close()
		store = repository.WithPresence(store, repository.NewRedisPresence(redisClient, ""))
		bus = stream.NewRedisBus(redisClient, "")
		appCache = cache.NewRedisCache(redisClient, "")
		log.Println("Redis presence, event bus, and cache initialized")
	} else {
		bus = stream.NewMemoryBus()
		appCache = cache.NewMemoryCache()
	}
	defer bus.Close()
	defer appCache.Close()

	// Bulk sync engine
	engine := bulksync.New(bulksync.Config{
		BatchSize:  cfg.Sync.BatchSize,
		PageSize:   cfg.Sync.PageSize,
		MaxRetries: cfg.Sync.MaxRetries,
		RetryDelay: cfg.Sync.RetryDelay,
		Throttle:   cfg.Sync.Throttle,
	})

	// Initialize services
	stocktakeService := service.NewStocktakeService(store, engine, bus, appCache, service.Config{
		SessionListTTL: cfg.Cache.SessionListTTL,
		PreferenceTTL:  cfg.Cache.PreferenceTTL,
	})
	registry := workflow.NewRegistry(stocktakeService)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Version)
	sessionHandler := handler.NewSessionHandler(stocktakeService, registry)
	itemHandler := handler.NewItemHandler(stocktakeService)
	workflowHandler := handler.NewWorkflowHandler(registry)
	presenceHandler := handler.NewPresenceHandler(stocktakeService, cfg.Presence.TTL)
	eventHandler := handler.NewEventHandler(stocktakeService)
	preferenceHandler := handler.NewPreferenceHandler(stocktakeService)

	// Create router
	r := router.New(router.Config{
		HealthHandler:     healthHandler,
		SessionHandler:    sessionHandler,
		ItemHandler:       itemHandler,
		WorkflowHandler:   workflowHandler,
		PresenceHandler:   presenceHandler,
		EventHandler:      eventHandler,
		PreferenceHandler: preferenceHandler,
		AuthMiddleware:    middleware.APIKeyAuth(cfg.App.APIKeys),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
