// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/merchstore-backend/internal/config"
	"github.com/your-org/merchstore-backend/internal/domain/audit"
	"github.com/your-org/merchstore-backend/internal/domain/coupon"
	"github.com/your-org/merchstore-backend/internal/domain/payment"
	"github.com/your-org/merchstore-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/merchstore-backend/internal/infrastructure/database/redis"
	httpserver "github.com/your-org/merchstore-backend/internal/interfaces/http"
	"github.com/your-org/merchstore-backend/internal/interfaces/http/middleware"
	"github.com/your-org/merchstore-backend/internal/pkg/notify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := middleware.NewLogrus(cfg.Logging.Format, cfg.Logging.Level)
	logger.Infof("Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	// Connect to database
	db, err := postgres.NewConnection(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), logger)
	if err := migration.RunAutoMigrations(); err != nil {
		logger.Fatalf("Database migration failed: %v", err)
	}
	if err := migration.CreateIndexes(); err != nil {
		logger.Warnf("Index creation failed: %v", err)
	}

	// Payment provider client
	provider := payment.NewClient(cfg, logger)

	// Notification publisher
	var publisher notify.Publisher = notify.NoopPublisher{}
	if cfg.Notify.Enabled {
		amqpPublisher, err := notify.NewAMQPPublisher(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to message broker: %v", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	// Create and start HTTP server
	server := httpserver.NewServer(cfg, db.GetDB(), redisClient.GetClient(), provider, publisher, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Periodic reconciliation sweep for coupon batches whose webhook never
	// arrived.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	if cfg.Reconcile.Enabled {
		auditLog := audit.NewLogger(db.GetDB(), logger)
		couponService := coupon.NewService(db.GetDB(), provider, auditLog, publisher, cfg, logger)
		go runReconcileSweep(sweepCtx, couponService, cfg.Reconcile.Interval, logger)
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}

// runReconcileSweep re-checks pending coupon batches against the provider on
// a fixed interval until the context is canceled.
func runReconcileSweep(ctx context.Context, couponService *coupon.Service, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := couponService.ReconcilePendingDistributions(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Reconciliation sweep failed")
			}
		}
	}
}
