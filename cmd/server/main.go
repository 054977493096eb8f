package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/EgehanKilicarslan/authgate/internal/api"
	"github.com/EgehanKilicarslan/authgate/internal/config"
	"github.com/EgehanKilicarslan/authgate/internal/database"
	"github.com/EgehanKilicarslan/authgate/internal/database/repository"
	"github.com/EgehanKilicarslan/authgate/internal/database/service"
	internalgrpc "github.com/EgehanKilicarslan/authgate/internal/grpc"
	"github.com/EgehanKilicarslan/authgate/internal/handler"
	"github.com/EgehanKilicarslan/authgate/internal/logger"
	"github.com/EgehanKilicarslan/authgate/internal/middleware"
	"github.com/EgehanKilicarslan/authgate/internal/token"
	"github.com/EgehanKilicarslan/authgate/internal/worker"
)

func main() {
	// 1. Config
	cfg := config.LoadConfig()

	// 2. Logger
	appLogger := logger.New(cfg)

	if err := cfg.Validate(); err != nil {
		appLogger.Error("❌ Invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger.Info("🚀 [Go] Starting authgate...",
		"environment", cfg.AppEnv,
		"store_backend", cfg.StoreBackend,
		"database_driver", cfg.DatabaseDriver,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. Connect to Database
	db, err := database.ConnectDatabase(cfg, appLogger)
	if err != nil {
		appLogger.Error("❌ Failed to connect to database", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Repositories
	userRepo := repository.NewUserRepository(db)

	// 5. Token store
	store, err := database.NewStore(cfg, db, appLogger)
	if err != nil {
		appLogger.Error("❌ Failed to initialize token store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 6. Background workers
	pool := worker.NewPool(appLogger)
	if sweeper, ok := store.(database.Sweeper); ok {
		err := pool.SubmitPeriodic("store-sweep", cfg.SweepInterval(), func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		})
		if err != nil {
			appLogger.Error("❌ Failed to schedule store sweep", "error", err)
			os.Exit(1)
		}
	}

	// 7. Initialize Login Limiter
	var loginLimiter service.LoginLimiter
	if redisStore, ok := store.(*database.RedisClient); ok {
		loginLimiter = middleware.NewLoginLimiterWithClient(redisStore.GetClient(), cfg, appLogger)
	} else if limiter, err := middleware.NewLoginLimiter(cfg, appLogger); err == nil {
		loginLimiter = limiter
		defer limiter.Close()
	} else {
		appLogger.Warn("⚠️ Failed to connect to Redis, using no-op login limiter", "error", err)
		loginLimiter = middleware.NewNoOpLoginLimiter(appLogger)
	}

	// 8. Initialize Services
	tokenService, err := token.NewService(store, service.NewUserDirectory(userRepo), token.OptionsFromConfig(cfg), appLogger)
	if err != nil {
		appLogger.Error("❌ Failed to initialize token service", "error", err)
		os.Exit(1)
	}
	authService := service.NewAuthService(userRepo, tokenService, loginLimiter, appLogger)
	userService := service.NewUserService(userRepo, appLogger)

	if cfg.SeedUsers {
		if err := userService.SeedDefaultUsers(context.Background()); err != nil {
			appLogger.Error("❌ Failed to seed users", "error", err)
			os.Exit(1)
		}
	}

	// 9. Initialize Handlers & Middleware
	authHandler := handler.NewAuthHandler(authService, appLogger)
	userHandler := handler.NewUserHandler(userService, appLogger)
	adminHandler := handler.NewAdminHandler(authService, userService, appLogger)
	healthHandler := api.NewHealthHandler(db, cfg.StoreBackend)
	authMiddleware := middleware.NewAuthMiddleware(authService, appLogger)

	// 10. Start gRPC Server (token introspection)
	grpcServer, healthServer := internalgrpc.NewServer(tokenService, appLogger)

	grpcAddr := fmt.Sprintf(":%s", cfg.ApiGrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		appLogger.Error("❌ Failed to listen for gRPC", "error", err)
		os.Exit(1)
	}

	go func() {
		appLogger.Info("🔌 [Go] gRPC Server running...", "port", cfg.ApiGrpcPort)
		if err := grpcServer.Serve(grpcListener); err != nil {
			appLogger.Error("❌ gRPC Server failed", "error", err)
		}
	}()

	// 11. Start HTTP Server
	r := api.SetupRouter(cfg.CORSAllowedOrigins, healthHandler, authHandler, userHandler, adminHandler, authMiddleware)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ApiServicePort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		appLogger.Info("🌍 [Go] HTTP Server running on port...", "port", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("❌ HTTP Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 12. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdown(appLogger, srv, grpcServer.GracefulStop, healthServer.Shutdown, pool)
}

func shutdown(appLogger *slog.Logger, srv *http.Server, stopGRPC, stopHealth func(), pool *worker.Pool) {
	appLogger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Warn("⚠️ HTTP Server forced to shutdown", "error", err)
	}

	stopHealth()
	stopGRPC()
	pool.Shutdown(5 * time.Second)

	appLogger.Info("✅ Server exited gracefully")
}
