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
	"bidding-core/internal/infrastructure/mysql"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

func main() {
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log = logger.NewWithLevel(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := utils.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	db, err := utils.OpenMySQL(ctx, cfg.MySQL)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := mysql.RunMigrations(cfg.MySQL.DSN); err != nil {
		log.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize services
	eventSubscriber := redis.NewRedisChangeSubscriber(rdb, log)
	bidRepo := mysql.NewMySQLBidRepository(db)
	recorder := services.NewBidHistoryRecorder(bidRepo, log)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		if err := recorder.Start(runCtx, eventSubscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Analytics service failed", "error", err)
			os.Exit(1)
		}
	}()

	router := handlers.Router{
		History: handlers.NewHistoryHandler(bidRepo, log),
		Log:     log,
	}.Build()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting analytics service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down analytics service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stop()

	log.Info("Analytics service stopped")
}
