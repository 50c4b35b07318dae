package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"listing-service/internal/api"
	"listing-service/internal/aspects"
	"listing-service/internal/config"
	"listing-service/internal/correlation"
	"listing-service/internal/inference"
	"listing-service/internal/jobs"
	"listing-service/internal/learning"
	"listing-service/internal/listing"
	"listing-service/internal/logging"
	"listing-service/internal/marketplace"
	"listing-service/internal/provider"
	"listing-service/internal/staticdata"
	"listing-service/internal/store"
	"listing-service/internal/taxonomy"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found or failed to load, relying on system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Error loading configuration")
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		logrus.WithError(err).Fatal("Error configuring logger")
	}
	logger.WithFields(logrus.Fields{"app_env": cfg.AppEnv, "log_level": cfg.LogLevel}).Info("Starting service")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Service stopped with error")
	}
	logger.Info("Service shutdown sequence finished")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Static Data ---
	tables, err := staticdata.Load(cfg.StaticData)
	if err != nil {
		return err
	}

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	dbStore := store.NewPostgresStore(db, logger)
	defer dbStore.Close()
	logger.Info("Database connection established")

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()
	queue, err := jobs.NewQueue(rdb, jobs.QueueConfig{
		Stream:    cfg.Redis.Stream,
		Group:     cfg.Redis.Group,
		Consumer:  cfg.Redis.Consumer,
		ClaimIdle: cfg.Redis.ClaimIdle,
	}, logger)
	if err != nil {
		return err
	}
	if err := queue.EnsureGroup(ctx); err != nil {
		return err
	}

	// --- Clients ---
	products := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	market := marketplace.NewClient(marketplace.Options{
		BaseURL:             cfg.Marketplace.BaseURL,
		MarketplaceID:       cfg.Marketplace.MarketplaceID,
		CategoryTreeID:      cfg.Marketplace.CategoryTreeID,
		Currency:            cfg.Marketplace.Currency,
		FulfillmentPolicyID: cfg.Marketplace.FulfillmentPolicyID,
		PaymentPolicyID:     cfg.Marketplace.PaymentPolicyID,
		ReturnPolicyID:      cfg.Marketplace.ReturnPolicyID,
		MerchantLocationKey: cfg.Marketplace.MerchantLocationKey,
		Timeout:             cfg.Marketplace.Timeout,
	}, marketplace.StaticTokenSource(cfg.Marketplace.AccessToken))
	generator, err := inference.NewGenerator(inference.Options{
		Provider: cfg.Inference.Provider,
		BaseURL:  cfg.Inference.BaseURL,
		APIKey:   cfg.Inference.APIKey,
		Model:    cfg.Inference.Model,
		Timeout:  cfg.Inference.Timeout,
	})
	if err != nil {
		return err
	}

	// --- Pipeline ---
	lister := listing.NewService(
		products,
		taxonomy.NewResolver(market, tables.FallbackCategory, logger),
		aspects.NewResolver(dbStore, market, tables, logger),
		listing.NewBuilder(market, tables, cfg.Marketplace.SKUPrefix, logger),
		tables,
		logger,
	)
	manager := jobs.NewManager(dbStore, queue, logger)
	loop := learning.NewLoop(dbStore, inference.NewAspectInferrer(generator), cfg.Learning.MaxAttempts, logger)

	// --- HTTP Server ---
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	api.RegisterHealthCheck(router, logger, map[string]api.HealthCheck{
		"database": dbStore.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	router.Handle("/metrics", promhttp.Handler())
	api.NewHTTPHandler(lister, manager, loop, logger).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      router,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	// --- gRPC Server ---
	grpcServer, healthServer := api.NewGRPCServer(logger)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on port %s: %w", cfg.GrpcServer.Port, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.HttpServer.Port).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("port", cfg.GrpcServer.Port).Info("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// --- Background Work ---
	if cfg.Jobs.WorkerEnabled {
		worker := jobs.NewWorker(dbStore, products, correlation.NewScorer(cfg.Jobs.MinScore), cfg.Jobs.MaxCandidates, logger)
		g.Go(func() error { return queue.Consume(gctx, cfg.Jobs.WorkerConcurrency, worker.Handle) })
		logger.WithField("concurrency", cfg.Jobs.WorkerConcurrency).Info("Correlation workers started")
	}
	g.Go(func() error {
		return jobs.NewMonitor(dbStore, cfg.Jobs.StuckAfter, cfg.Jobs.MonitorInterval, logger).Run(gctx)
	})
	if cfg.Learning.Enabled {
		g.Go(func() error {
			return learning.NewScheduler(loop, cfg.Learning.Schedule, cfg.Learning.BatchSize, logger).Run(gctx)
		})
	}

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("HTTP server graceful shutdown failed")
		}
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			logger.Warn("gRPC server graceful shutdown timed out, forcing stop")
			grpcServer.Stop()
		}
		return nil
	})

	return g.Wait()
}
