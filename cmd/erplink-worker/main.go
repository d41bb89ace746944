package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avandenbergh/erplink/internal/config"
	"github.com/avandenbergh/erplink/internal/database"
	"github.com/avandenbergh/erplink/internal/erp"
	"github.com/avandenbergh/erplink/internal/notify"
	"github.com/avandenbergh/erplink/internal/repository"
	"github.com/avandenbergh/erplink/internal/service"
	"github.com/avandenbergh/erplink/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	log.Println("Database connected successfully")

	// Run migrations
	log.Println("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Println("Migrations completed successfully")

	// Initialize repositories
	queueRepo := repository.NewQueueRepository(db)
	mappingRepo := repository.NewEntityMapRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	// Initialize ERP transport
	client, err := erp.NewClient(cfg.ERPProtocol, erp.Options{
		URL:      cfg.ERPURL,
		Database: cfg.ERPDatabase,
		Username: cfg.ERPUsername,
		Password: cfg.ERPPassword,
		Timeout:  time.Duration(cfg.CallTimeout) * time.Second,
	})
	if err != nil {
		return err
	}

	// Initialize failure notifier
	sinks := []notify.Sink{notify.LogSink{}}
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.NotifyWebhookURL))
	}
	notifier := notify.New(notify.DefaultWindow, notify.DefaultThreshold, sinks...)

	// Module handlers register here; the registry is the only dispatch
	// mechanism between the core and module business logic.
	registry := service.NewRegistry()

	// Initialize sync engine
	engine := service.NewEngine(queueRepo, mappingRepo, client, registry, notifier, service.EngineOptions{
		Tenant:         cfg.TenantID,
		Policy:         service.ConflictPolicy(cfg.ConflictPolicy),
		BatchSize:      cfg.BatchSize,
		MaxItemsPerRun: cfg.MaxItemsPerRun,
	})

	// Initialize watcher
	w := watcher.New(cfg, scheduleRepo, queueRepo, engine)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watcher in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutdown signal received")
		cancel()

		// Wait for graceful shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		select {
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded")
		case err := <-errChan:
			if err != nil && err != context.Canceled {
				log.Printf("Watcher error: %v", err)
			}
		}

		log.Println("Application stopped")
		return nil

	case err := <-errChan:
		return err
	}
}
