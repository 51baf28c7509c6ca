package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidding-core/internal/api/handlers"
	"bidding-core/internal/config"
	"bidding-core/internal/infrastructure/leader"
	"bidding-core/internal/infrastructure/mysql"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/internal/metrics"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	log := logger.New()
	log.Info("Starting Auction Manager Service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log = logger.NewWithLevel(cfg.Log.Level)

	// The admin API runs beside the bidding service, so both must see the
	// same ledger.
	if cfg.Ledger.Backend != config.LedgerBackendRedis {
		log.Error("Auction service requires the redis ledger backend", "backend", cfg.Ledger.Backend)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := utils.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	db, err := utils.OpenMySQL(ctx, cfg.MySQL)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}()
	log.Info("Connected to MySQL")

	if err := mysql.RunMigrations(cfg.MySQL.DSN); err != nil {
		log.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	auctionRepo := mysql.NewMySQLAuctionRepository(db)
	schedulerRepo := mysql.NewMySQLSchedulerRepository(db)

	ledger := redis.NewRedisBidLedger(rdb, cfg.Ledger.Retention)
	eventPublisher := redis.NewRedisChangePublisher(rdb)
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL)

	auctionManager := services.NewAuctionManager(auctionRepo, ledger, eventPublisher, nil, log)

	// Jobs land in the shared table; whichever instance holds the leader key
	// runs them. The suffix keeps a bidding service started from the same
	// config from sharing our identity.
	instanceID := cfg.Instance.ID + "-manager"
	scheduler := services.NewCronAuctionScheduler(schedulerRepo, leaderElection, instanceID, cfg.Scheduler.Spec, log)
	scheduler.SetRunner(auctionManager)
	auctionManager.SetScheduler(scheduler)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Info("Request handled",
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"remote_addr", c.RealIP(),
				"latency", time.Since(start))
			return err
		}
	})

	auctionHandler := handlers.NewAuctionHandler(auctionManager, log)
	auctionHandler.Register(e.Group("/api/v1"))

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-manager",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := scheduler.Start(runCtx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting auction manager server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction manager service...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	stop()

	log.Info("Auction manager service stopped")
}
