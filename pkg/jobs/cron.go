package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jordanlanch/territoryengine/pkg/metrics"
	"github.com/jordanlanch/territoryengine/pkg/ownership"
	"github.com/robfig/cron/v3"
)

// OwnershipSyncer finds and repairs territories whose entities have drifted
// from the territory owner.
type OwnershipSyncer interface {
	GetTerritoriesWithOwnershipMismatches(ctx context.Context) ([]ownership.OwnershipMismatch, error)
	SyncTerritoryOwnership(ctx context.Context, territoryID string) (*ownership.TransferResult, error)
}

// AnalyticsWarmer refreshes cached territory analytics.
type AnalyticsWarmer interface {
	WarmCache(ctx context.Context) (int, error)
}

// Schedules configures when each job runs (standard 5-field cron syntax).
type Schedules struct {
	OwnershipSync string
	AnalyticsWarm string
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron      *cron.Cron
	syncer    OwnershipSyncer
	warmer    AnalyticsWarmer
	schedules Schedules
	metrics   *metrics.Metrics
	logger    *log.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(syncer OwnershipSyncer, warmer AnalyticsWarmer, schedules Schedules, m *metrics.Metrics, logger *log.Logger) *CronManager {
	if logger == nil {
		logger = log.Default()
	}

	return &CronManager{
		cron:      cron.New(),
		syncer:    syncer,
		warmer:    warmer,
		schedules: schedules,
		metrics:   m,
		logger:    logger,
	}
}

// SetupJobs configures all scheduled jobs. An empty schedule disables its job.
func (cm *CronManager) SetupJobs() error {
	cm.logger.Println("Setting up cron jobs...")

	if cm.schedules.OwnershipSync != "" {
		_, err := cm.cron.AddFunc(cm.schedules.OwnershipSync, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			_, _ = cm.RunOwnershipSync(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid ownership sync schedule %q: %w", cm.schedules.OwnershipSync, err)
		}
		cm.logger.Printf("  - %s: Sync territory ownership", cm.schedules.OwnershipSync)
	}

	if cm.schedules.AnalyticsWarm != "" && cm.warmer != nil {
		_, err := cm.cron.AddFunc(cm.schedules.AnalyticsWarm, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			_, _ = cm.RunAnalyticsWarm(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid analytics warm schedule %q: %w", cm.schedules.AnalyticsWarm, err)
		}
		cm.logger.Printf("  - %s: Warm analytics cache", cm.schedules.AnalyticsWarm)
	}

	cm.logger.Println("✅ Cron jobs configured successfully")
	return nil
}

// RunOwnershipSync syncs every territory with ownership mismatches and
// returns the number of entities updated. A failing territory does not stop
// the others.
func (cm *CronManager) RunOwnershipSync(ctx context.Context) (int, error) {
	cm.logger.Println("🕐 Running ownership sync job...")

	mismatches, err := cm.syncer.GetTerritoriesWithOwnershipMismatches(ctx)
	if err != nil {
		cm.logger.Printf("❌ Failed to detect ownership mismatches: %v", err)
		sentry.CaptureException(err)
		cm.metrics.RecordJobRun("ownership_sync", err)
		return 0, err
	}

	if len(mismatches) == 0 {
		cm.logger.Println("✅ No ownership mismatches found")
		cm.metrics.RecordJobRun("ownership_sync", nil)
		return 0, nil
	}

	cm.logger.Printf("Found %d territories with ownership mismatches", len(mismatches))

	updated, failed := 0, 0
	for _, mm := range mismatches {
		res, err := cm.syncer.SyncTerritoryOwnership(ctx, mm.Territory.ID)
		if err != nil {
			failed++
			cm.logger.Printf("⚠️ Failed to sync territory %s: %v", mm.Territory.ID, err)
			sentry.CaptureException(fmt.Errorf("sync territory %s: %w", mm.Territory.ID, err))
			continue
		}
		updated += res.UpdatedCount
	}

	var runErr error
	if failed > 0 {
		runErr = fmt.Errorf("%d of %d territories failed to sync", failed, len(mismatches))
	}
	cm.metrics.RecordJobRun("ownership_sync", runErr)
	cm.logger.Printf("✅ Ownership sync job completed: %d entities updated", updated)
	return updated, runErr
}

// RunAnalyticsWarm refreshes the analytics cache.
func (cm *CronManager) RunAnalyticsWarm(ctx context.Context) (int, error) {
	cm.logger.Println("🕐 Warming analytics cache...")

	n, err := cm.warmer.WarmCache(ctx)
	cm.metrics.RecordJobRun("analytics_warm", err)
	if err != nil {
		cm.logger.Printf("❌ Failed to warm analytics cache: %v", err)
		sentry.CaptureException(err)
		return 0, err
	}

	cm.logger.Printf("✅ Cached analytics for %d territories", n)
	return n, nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Println("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (cm *CronManager) Stop() {
	cm.logger.Println("🛑 Stopping cron scheduler...")
	<-cm.cron.Stop().Done()
}

// Entries returns the number of scheduled jobs.
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}
