package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jordanlanch/territoryengine/config"
	"github.com/jordanlanch/territoryengine/pkg/api"
	"github.com/jordanlanch/territoryengine/pkg/container"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.Environment)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	c, err := container.New(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("❌ Failed to initialize: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	c.Start(ctx)
	log.Printf("✅ Event bus and cron jobs started")

	if cfg.CacheEnabled() {
		log.Printf("✅ Analytics cache enabled (ttl: %s)", cfg.AnalyticsCacheTTL)
	} else {
		log.Printf("ℹ️  Analytics cache disabled (no REDIS_URL configured)")
	}
	if cfg.KafkaEnabled() {
		log.Printf("✅ Forwarding events to Kafka topic %s", cfg.KafkaTopic)
	} else {
		log.Printf("ℹ️  Kafka forwarding disabled (no KAFKA_BROKERS configured)")
	}

	if cfg.AdminToken == "" {
		log.Printf("⚠️  ADMIN_API_TOKEN not set, admin endpoints are disabled")
	}

	e := api.NewServer(c)

	go func() {
		log.Printf("🚀 Territory engine starting on %s", cfg.HTTPAddr)
		log.Printf("⏰ Cron jobs: ownership sync %q, analytics warm %q", cfg.OwnershipSyncSchedule, cfg.AnalyticsWarmSchedule)
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	if err := c.Close(); err != nil {
		log.Printf("⚠️  Failed to release resources: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
