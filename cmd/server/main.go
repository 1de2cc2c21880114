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

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"order-reconciler/config"
	"order-reconciler/internal/api"
	"order-reconciler/internal/broker"
	"order-reconciler/internal/redisclient"
	"order-reconciler/internal/service"
	"order-reconciler/internal/store"
	"order-reconciler/internal/util"
	"order-reconciler/internal/webhook"
	"order-reconciler/internal/worker"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order reconciler")

	tp, err := util.InitTracer("order-reconciler", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected, migrations applied")

	redisClient := redisclient.Get(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if redisClient == nil {
		log.Println("Redis not configured, webhook rate limiting disabled")
	}
	defer redisClient.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	publisher := broker.NewEventPublisher(producer)

	workerID := fmt.Sprintf("%s-%s", hostname(), uuid.New().String()[:8])

	attempts := service.NewAttemptTracker(db, cfg.Payments.MaxAttempts)
	checkout := service.NewCheckoutService(db, attempts, publisher)
	reconciler := service.NewReconciler(db, publisher, cfg.Webhooks.MonobankMode, cfg.Admin.RefundEnabled)
	ingestor := service.NewIngestor(db, cfg.Webhooks.MonobankMode)
	sweeper := service.NewSweeper(db, reconciler, workerID, service.SweepParams{
		OlderThanMinutes: cfg.Janitor.OlderThanMinutes,
		BatchSize:        cfg.Janitor.BatchSize,
		ClaimTTLMinutes:  cfg.Janitor.ClaimTTLMinutes,
	})

	stripeSig := webhook.NewStripeVerifier(cfg.Webhooks.StripeSecret,
		time.Duration(cfg.Webhooks.SignatureToleranceS)*time.Second)
	monobankSig, err := webhook.NewMonobankVerifier(cfg.Webhooks.MonobankPublicKey)
	if err != nil {
		log.Fatalf("Failed to load monobank public key: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	eventWorker := worker.NewEventWorker(db, reconciler, workerID,
		time.Duration(cfg.Webhooks.ClaimTTLSeconds)*time.Second,
		time.Duration(cfg.Webhooks.WorkerPollMS)*time.Millisecond)
	go func() {
		if err := eventWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Event worker error: %v", err)
		}
	}()

	var csrf api.CSRFVerifier
	if cfg.Admin.CSRFToken != "" {
		csrf = api.TokenCSRF(cfg.Admin.CSRFToken)
	} else if cfg.Admin.Token != "" {
		logger.Warn("ADMIN_CSRF_TOKEN not set: admin API runs without CSRF verification")
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.HandlerConfig{
		Checkout:      checkout,
		Reconciler:    reconciler,
		Sweeper:       sweeper,
		Ingestor:      ingestor,
		StripeSig:     stripeSig,
		MonobankSig:   monobankSig,
		Limiter:       redisClient,
		LimitPerMin:   cfg.Webhooks.RateLimitPerMinute,
		JanitorSecret: cfg.Janitor.Secret,
		AdminToken:    cfg.Admin.Token,
		CSRF:          csrf,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	eventWorker.Wait()

	log.Println("Server exited")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return h
}
