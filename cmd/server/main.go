package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/snapfulfil/order-router/internal/adapter/dispatch"
	"github.com/snapfulfil/order-router/internal/adapter/handler"
	"github.com/snapfulfil/order-router/internal/adapter/storage"
	"github.com/snapfulfil/order-router/internal/config"
	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/core/service"
	"github.com/snapfulfil/order-router/internal/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize adapters
	counterStore := storage.NewRedisCounterStore(rdb, cfg.Queue.CounterTimeout)
	jobStore := storage.NewMemoryJobStore()
	dispatcher := dispatch.NewHTTPDispatcher(cfg.Queue.DispatchTimeout, logger)

	// Initialize services
	registry := metrics.NewRegistry()
	routingService := service.NewRoutingService(
		cfg.Routing.USSKUs,
		cfg.Routing.RefillSKUs,
		cfg.Caps(),
		counterStore,
		logger,
	)
	processor := service.NewQueueProcessor(
		routingService,
		jobStore,
		dispatcher,
		cfg.Endpoints(),
		registry,
		logger,
		service.ProcessorConfig{
			Workers:         cfg.Queue.Workers,
			BufferSize:      cfg.Queue.BufferSize,
			MaxAttempts:     cfg.Queue.MaxAttempts,
			BackoffBase:     cfg.Queue.BackoffBase,
			DispatchTimeout: cfg.Queue.DispatchTimeout,
		},
	)
	processor.Start()

	// Initialize HTTP server
	partners := make([]domain.Partner, 0, len(cfg.Partners))
	for _, p := range cfg.Partners {
		partners = append(partners, domain.Partner(p.ID))
	}
	httpHandler := handler.NewHTTPHandler(processor, routingService, partners,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() }, logger)

	mux := http.NewServeMux()
	httpHandler.Register(mux)
	mux.Handle("GET /metrics", registry.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	processor.Close()

	rdb.Close()
	logger.Info("connections closed")
}
