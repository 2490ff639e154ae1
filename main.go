package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"camera-alert-service/internal/api"
	"camera-alert-service/internal/auth"
	"camera-alert-service/internal/config"
	"camera-alert-service/internal/db"
	"camera-alert-service/internal/hub"
	"camera-alert-service/internal/logging"
	"camera-alert-service/internal/notifier"
	"camera-alert-service/internal/queue"
	"camera-alert-service/internal/worker"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	verifier := auth.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	alertHub := hub.New(logger)

	// Work queue producers: one for the task topic, one for dead letters
	producer, err := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TaskTopic)
	if err != nil {
		logger.Errorf("Failed to create task producer: %v", err)
		log.Fatalf("Kafka producer failed: %v", err)
	}
	defer producer.Close()

	deadLetter, err := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic)
	if err != nil {
		logger.Errorf("Failed to create dead-letter producer: %v", err)
		log.Fatalf("Kafka dead-letter producer failed: %v", err)
	}
	defer deadLetter.Close()

	// Optional Telegram side-channel for critical alerts
	var critical worker.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Errorf("Failed to init Telegram notifier: %v", err)
			log.Fatalf("Telegram notifier failed: %v", err)
		}
		critical = tg
		logger.Infof("Telegram notifier enabled for chat %d", cfg.Telegram.ChatID)
	}

	classifier := worker.NewThresholdClassifier(cfg.Classifier.CriticalThreshold, cfg.Classifier.CriticalTypes)
	svc := worker.New(dbConn, dbConn, alertHub, classifier, deadLetter, critical, logger, cfg.Worker.MaxAttempts, cfg.Worker.RetryDelay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the worker pool: one consumer per worker, sharing a group so each
	// task lands on exactly one of them.
	var wg sync.WaitGroup
	consumers := make([]*queue.Consumer, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		consumer, err := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TaskTopic, cfg.Kafka.GroupID)
		if err != nil {
			logger.Errorf("Failed to create consumer %d: %v", i, err)
			log.Fatalf("Kafka consumer failed: %v", err)
		}
		consumers = append(consumers, consumer)
		wg.Add(1)
		go svc.Run(ctx, i, consumer, &wg)
	}

	// Start API server
	handler := api.NewHandler(dbConn, dbConn, producer, verifier, alertHub, logger, cfg.Ingest.EnqueueTimeout)
	router := api.NewRouter(handler, verifier, logger)
	srv := &http.Server{Addr: cfg.API.Port, Handler: router}
	go func() {
		logger.Infof("API server started on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Infof("Shutting down...")

	cancel()
	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Consumer close failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}

	wg.Wait()
	logger.Infof("Service stopped")
}
