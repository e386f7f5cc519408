package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commentary/worker/internal/config"
	"commentary/worker/internal/database"
	"commentary/worker/internal/minio"
	"commentary/worker/internal/queue"
	"commentary/worker/internal/storage"
	"commentary/worker/internal/worker"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Worker service...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	minioClient, err := minio.New(cfg.MinIO)
	if err != nil {
		logger.Fatal("Failed to initialize MinIO client", zap.Error(err))
	}

	logger.Info("MinIO client initialized successfully")

	storageService := storage.New(minioClient, storage.WithHostOverride(cfg.MinIO.PublicEndpoint))

	queueConn, err := queue.NewConnection(cfg.RabbitMQ)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer queueConn.Close()

	logger.Info("RabbitMQ connected successfully")

	publisher := queue.NewPublisher(queueConn)

	w, err := worker.New(db, storageService, publisher, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize worker", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.StartAllConsumers(ctx)

	logger.Info("All workers started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	cancel()

	// Give workers time to finish
	time.Sleep(5 * time.Second)
	logger.Info("Worker service exited")
}
