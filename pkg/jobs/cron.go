package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gearline/crm/pkg/bulkdispatch"
	"github.com/gearline/crm/pkg/cache"
	"github.com/gearline/crm/pkg/snapshot"
	"github.com/gearline/crm/pkg/templatecache"
)

// Stale-running threshold for the recovery sweep. A healthy job touches
// its row on every committed recipient.
const staleJobThreshold = 5 * time.Minute

// CronManager schedules the recurring background work: the daily followup
// snapshot, the nightly template sync, and the bulk job recovery sweep.
type CronManager struct {
	cron         *cron.Cron
	snapshots    *snapshot.Service
	templates    *templatecache.Service
	dispatcher   *bulkdispatch.Engine
	locks        *cache.Cache
	snapshotHour int
	logger       *log.Logger
}

func NewCronManager(
	snapshots *snapshot.Service,
	templates *templatecache.Service,
	dispatcher *bulkdispatch.Engine,
	locks *cache.Cache,
	loc *time.Location,
	snapshotHour int,
	logger *log.Logger,
) *CronManager {
	return &CronManager{
		cron:         cron.New(cron.WithLocation(loc)),
		snapshots:    snapshots,
		templates:    templates,
		dispatcher:   dispatcher,
		locks:        locks,
		snapshotHour: snapshotHour,
		logger:       logger,
	}
}

// Start registers and starts all scheduled jobs.
func (cm *CronManager) Start() error {
	// Daily followup snapshot, once per business day.
	spec := fmt.Sprintf("0 %d * * *", cm.snapshotHour)
	if _, err := cm.cron.AddFunc(spec, cm.runSnapshot); err != nil {
		return fmt.Errorf("failed to schedule snapshot job: %w", err)
	}

	// Nightly template catalog sync.
	if _, err := cm.cron.AddFunc("30 2 * * *", cm.runTemplateSync); err != nil {
		return fmt.Errorf("failed to schedule template sync: %w", err)
	}

	// Bulk job recovery sweep.
	if _, err := cm.cron.AddFunc("*/10 * * * *", cm.runRecovery); err != nil {
		return fmt.Errorf("failed to schedule recovery sweep: %w", err)
	}

	cm.cron.Start()
	cm.logger.Printf("⏰ Cron jobs scheduled (snapshot at %02d:00)", cm.snapshotHour)
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (cm *CronManager) Stop() {
	ctx := cm.cron.Stop()
	<-ctx.Done()
	cm.logger.Println("🛑 Cron jobs stopped")
}

// withLock runs fn only when this instance wins the distributed lock, so
// multiple API replicas do not duplicate scheduled work.
func (cm *CronManager) withLock(name string, ttl time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), ttl)
	defer cancel()

	if cm.locks != nil {
		ok, err := cm.locks.AcquireLock(ctx, name, ttl)
		if err != nil {
			cm.logger.Printf("⚠️ Lock %s unavailable, running anyway: %v", name, err)
		} else if !ok {
			cm.logger.Printf("⏭️ Skipping %s, another instance holds the lock", name)
			return
		}
	}

	fn(ctx)
}

func (cm *CronManager) runSnapshot() {
	cm.withLock("daily-snapshot", 10*time.Minute, func(ctx context.Context) {
		cm.logger.Println("🔄 Starting daily followup snapshot...")
		if _, err := cm.snapshots.Run(ctx); err != nil {
			cm.logger.Printf("❌ Daily snapshot failed: %v", err)
		}
	})
}

func (cm *CronManager) runTemplateSync() {
	cm.withLock("template-sync", 5*time.Minute, func(ctx context.Context) {
		cm.logger.Println("🔄 Starting template catalog sync...")
		n, err := cm.templates.Sync(ctx)
		if err != nil {
			cm.logger.Printf("❌ Template sync failed: %v", err)
			return
		}
		cm.logger.Printf("✅ Template sync finished: %d templates", n)
	})
}

func (cm *CronManager) runRecovery() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := cm.dispatcher.RecoverStale(ctx, staleJobThreshold); err != nil {
		cm.logger.Printf("❌ Bulk job recovery sweep failed: %v", err)
	}
}
