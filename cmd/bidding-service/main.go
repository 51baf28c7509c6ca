package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidding-core/internal/api/handlers"
	"bidding-core/internal/config"
	"bidding-core/internal/domain"
	"bidding-core/internal/infrastructure/leader"
	"bidding-core/internal/infrastructure/memory"
	"bidding-core/internal/infrastructure/mysql"
	"bidding-core/internal/infrastructure/redis"
	"bidding-core/internal/infrastructure/websocket"
	"bidding-core/internal/metrics"
	"bidding-core/internal/services"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ledgerStack is the backend-specific half of the bid path.
type ledgerStack struct {
	ledger     domain.BidLedger
	publisher  domain.ChangePublisher
	subscriber domain.ChangeSubscriber
	election   domain.LeaderElection
	closer     io.Closer
}

func buildLedgerStack(ctx context.Context, cfg *config.Config, log logger.Logger) (*ledgerStack, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendMemory:
		// Single process only: no leader election, no cross-instance fan-out.
		bus := memory.NewChangeBus()
		return &ledgerStack{
			ledger:     memory.NewBidLedger(),
			publisher:  bus,
			subscriber: bus,
		}, nil
	default:
		rdb, err := utils.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("Connected to Redis", "address", cfg.Redis.Address)
		return &ledgerStack{
			ledger:     redis.NewRedisBidLedger(rdb, cfg.Ledger.Retention),
			publisher:  redis.NewRedisChangePublisher(rdb),
			subscriber: redis.NewRedisChangeSubscriber(rdb, log),
			election:   leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL),
			closer:     rdb,
		}, nil
	}
}

func main() {
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log = logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting bidding service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

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

	stack, err := buildLedgerStack(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize bid ledger", "backend", cfg.Ledger.Backend, "error", err)
		os.Exit(1)
	}
	if stack.closer != nil {
		defer stack.closer.Close()
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// Initialize repositories
	auctionRepo := mysql.NewMySQLAuctionRepository(db)
	schedulerRepo := mysql.NewMySQLSchedulerRepository(db)

	durabilitySync := services.NewDurabilitySync(auctionRepo, services.SyncOptions{
		Workers:   cfg.Sync.Workers,
		QueueSize: cfg.Sync.QueueSize,
		Timeout:   cfg.Sync.Timeout,
	}, collector, log)
	durabilitySync.Start()

	bidService := services.NewBidService(stack.ledger, stack.publisher, durabilitySync, collector, log)

	hub := websocket.NewHub(websocket.Options{
		SendBuffer:     cfg.Session.SendBuffer,
		WriteTimeout:   cfg.Session.WriteTimeout,
		PongTimeout:    cfg.Session.PongTimeout,
		PingInterval:   cfg.Session.PingInterval,
		MaxMessageSize: cfg.Session.MaxMessageSize,
		MessageRate:    cfg.Session.MessageRate,
		MessageBurst:   cfg.Session.MessageBurst,
	}, collector, log)
	eventListener := services.NewEventListener(hub, log)

	auctionManager := services.NewAuctionManager(auctionRepo, stack.ledger, stack.publisher, nil, log)
	scheduler := services.NewCronAuctionScheduler(schedulerRepo, stack.election, cfg.Instance.ID, cfg.Scheduler.Spec, log)
	scheduler.SetRunner(auctionManager)
	auctionManager.SetScheduler(scheduler)

	if _, err := auctionManager.RestoreActiveAuctions(ctx); err != nil {
		log.Error("Failed to restore active auctions", "error", err)
		os.Exit(1)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Start background services
	go func() {
		if err := eventListener.Start(runCtx, stack.subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	if err := scheduler.Start(runCtx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	router := handlers.Router{
		Bids:      handlers.NewBidHandler(bidService, log),
		WebSocket: websocket.NewWebSocketHandler(hub, log).HandleConnection,
		Metrics:   metrics.Handler(reg),
		Log:       log,
	}.Build()

	// Start HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting bidding service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	stop()

	// Accepted bids still queued are written before the pool goes away.
	durabilitySync.Stop()

	log.Info("Bidding service stopped")
}
