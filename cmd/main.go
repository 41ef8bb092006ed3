// File: storefront-service/cmd/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/internal/api"
	"storefront-service/internal/config"
	"storefront-service/internal/session"
	"storefront-service/internal/store"
	"storefront-service/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultAppName = "StorefrontService" // App name for logger
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found or failed to load, relying on system environment")
	}
	logger := log.New(os.Stdout, fmt.Sprintf("[%s] ", defaultAppName), log.LstdFlags|log.Lshortfile|log.Lmicroseconds)
	logger.Println("INFO: Starting service...")

	// --- Configuration Loading ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("FATAL: Error loading configuration: %v", err)
	}
	logger.Printf("INFO: Configuration loaded for APP_ENV: %s, LogLevel: %s", cfg.AppEnv, cfg.LogLevel)

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize database connection: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Printf("WARN: Error closing database on deferred cleanup: %v", err)
		}
	}()

	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatalf("FATAL: Failed to ping database: %v", err)
	}
	logger.Println("INFO: Database connection established successfully.")

	if cfg.MigrateOnStart {
		if err := store.RunMigrations(cfg.Postgres.URL(), logger); err != nil {
			logger.Fatalf("FATAL: %v", err)
		}
	}
	dbStore := store.NewPostgresStore(db) // dbStore implements the catalog interfaces and session.Store

	// --- Sessions ---
	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	sessions := setupSessions(ctx, cfg.Session, dbStore, logger)

	// --- Initialize Handlers ---
	handlerCfg := api.HandlerConfig{
		CartKey:     cfg.Session.CartKey,
		PageSize:    cfg.Catalog.APIPageSize,
		MaxPageSize: cfg.Catalog.APIMaxPageSize,
	}
	httpAPIHandler := api.NewHTTPHandler(dbStore, dbStore, handlerCfg)
	grpcAPIHandler := api.NewGRPCHandler(dbStore, dbStore, handlerCfg)
	webHandler, err := web.NewHandler(dbStore, dbStore, web.Config{
		CartKey:  cfg.Session.CartKey,
		PageSize: cfg.Catalog.PageSize,
	}, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize web handler: %v", err)
	}

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, logger)
	registerHealthCheck(httpRouter, logger, dbStore)
	registerAdminRoutes(httpRouter, httpAPIHandler, cfg.AdminAPIEnabled, logger)
	httpRouter.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		httpAPIHandler.RegisterRoutes(r) // /api/products, /api/categories, /api/cart
		webHandler.RegisterRoutes(r)     // HTML storefront
	})
	logger.Println("INFO: HTTP routes registered.")

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		logger.Printf("INFO: HTTP server listening on port %s", cfg.HttpServer.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("FATAL: HTTP server ListenAndServe error: %v", err)
		}
		logger.Println("INFO: HTTP server has stopped.")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(logger, grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		logger.Fatalf("FATAL: Failed to listen for gRPC on port %s: %v", cfg.GrpcServer.Port, err)
	}

	go func() {
		logger.Printf("INFO: gRPC server listening on port %s", cfg.GrpcServer.Port)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Fatalf("FATAL: gRPC server Serve error: %v", err)
		}
		logger.Println("INFO: gRPC server has stopped.")
	}()

	// --- Graceful Shutdown ---
	shutdownComplete := make(chan struct{})
	go waitForShutdown(logger, httpServer, grpcServer, dbStore, stopBackground, shutdownComplete)

	<-shutdownComplete // Block until graceful shutdown is complete
	logger.Println("INFO: Service shutdown sequence finished.")
}

// setupSessions picks the session backend and starts the expired-session purge.
func setupSessions(ctx context.Context, cfg config.SessionConfig, dbStore *store.PostgresStore, logger *log.Logger) *session.Manager {
	var (
		backend session.Store
		purger  session.Purger
	)
	switch cfg.Backend {
	case config.SessionBackendMemory:
		mem := session.NewMemoryStore()
		backend, purger = mem, mem
		logger.Println("WARN: Sessions are kept in memory and will not survive a restart.")
	default:
		backend, purger = dbStore, dbStore
	}

	go session.RunCleanup(ctx, purger, cfg.CleanupEvery, logger)
	logger.Printf("INFO: Session backend %q ready, purging expired sessions every %s", cfg.Backend, cfg.CleanupEvery)

	return session.NewManager(backend, session.Options{
		CookieName: cfg.CookieName,
		TTL:        cfg.TTL,
		Secure:     cfg.CookieSecure,
	}, logger)
}

func setupBaseMiddleware(router *chi.Mux, logger *log.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger) // Chi's request logger
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second)) // Default timeout for requests
	logger.Println("INFO: Base HTTP middleware registered.")
}

func registerHealthCheck(router *chi.Mux, logger *log.Logger, dbStore *store.PostgresStore) {
	healthPath := "/api/v1/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		dbStatus := "healthy"
		if err := dbStore.Ping(ctx); err != nil {
			dbStatus = "unhealthy"
			logger.Printf("WARN: Health check DB ping failed: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK) // Always 200, but payload indicates detailed status
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"serviceName": defaultAppName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
		})
	})
	logger.Printf("INFO: HTTP health check registered at %s", healthPath)
}

// registerAdminRoutes mounts the catalog maintenance endpoints only when enabled.
func registerAdminRoutes(router chi.Router, h *api.HTTPHandler, enabled bool, logger *log.Logger) {
	if !enabled {
		logger.Println("INFO: Admin API disabled (set ADMIN_API_ENABLED=true to mount /api/admin).")
		return
	}
	h.RegisterAdminRoutes(router)
	logger.Println("WARN: Admin API enabled at /api/admin without authentication.")
}

func setupGRPCServer(logger *log.Logger, grpcAPIHandler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer()

	api.RegisterCatalogServer(s, grpcAPIHandler)
	logger.Println("INFO: Catalog gRPC service registered.")

	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	logger.Println("INFO: gRPC health check service registered.")

	// Enable gRPC server reflection (useful for tools like grpcurl).
	reflection.Register(s)
	logger.Println("INFO: gRPC reflection service registered.")

	return s
}

func waitForShutdown(
	logger *log.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	dbStore *store.PostgresStore,
	stopBackground context.CancelFunc,
	shutdownComplete chan struct{},
) {
	defer close(shutdownComplete)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	receivedSignal := <-sigChan
	logger.Printf("INFO: Received signal: %s. Starting graceful shutdown...", receivedSignal)

	stopBackground()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	logger.Println("INFO: Attempting to gracefully shut down gRPC server...")
	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	logger.Println("INFO: Attempting to gracefully shut down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("WARN: HTTP server graceful shutdown failed: %v", err)
	} else {
		logger.Println("INFO: HTTP server gracefully shut down.")
	}

	select {
	case <-stoppedGrpc:
		logger.Println("INFO: gRPC server gracefully shut down.")
	case <-shutdownCtx.Done():
		logger.Printf("WARN: gRPC server graceful shutdown timed out: %v", shutdownCtx.Err())
		grpcServer.Stop()
		logger.Println("INFO: gRPC server forced stop.")
	}

	if err := dbStore.Close(); err != nil {
		logger.Printf("WARN: Error closing database connection: %v", err)
	}

	logger.Println("INFO: Graceful shutdown sequence completed.")
}
