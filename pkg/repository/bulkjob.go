package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
)

// BulkJobRepository implements domain.BulkJobStore on GORM.
type BulkJobRepository struct {
	db *gorm.DB
}

func NewBulkJobRepository(db *gorm.DB) *BulkJobRepository {
	return &BulkJobRepository{db: db}
}

func (r *BulkJobRepository) CreateJob(ctx context.Context, job *models.WhatsAppBulkJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create bulk job: %w", err)
	}
	return nil
}

func (r *BulkJobRepository) GetJob(ctx context.Context, id uint) (*models.WhatsAppBulkJob, error) {
	var job models.WhatsAppBulkJob
	err := r.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("bulk job")
		}
		return nil, fmt.Errorf("failed to load bulk job: %w", err)
	}
	return &job, nil
}

func (r *BulkJobRepository) ListJobs(ctx context.Context, limit int) ([]*models.WhatsAppBulkJob, error) {
	var jobs []*models.WhatsAppBulkJob
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list bulk jobs: %w", err)
	}
	return jobs, nil
}

func (r *BulkJobRepository) MarkRunning(ctx context.Context, id uint) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.WhatsAppBulkJob{}).
		Where("id = ? AND status IN ?", id, []string{models.JobStatusQueued, models.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark job running: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewConflictError("job is not runnable")
	}
	// StartedAt is stamped only on the first transition.
	err := r.db.WithContext(ctx).
		Model(&models.WhatsAppBulkJob{}).
		Where("id = ? AND started_at IS NULL", id).
		Update("started_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to stamp job start: %w", err)
	}
	return nil
}

// RecordOutcome is the durability point of the dispatch loop. The guard on
// processed_count rejects out-of-order and duplicate commits, so the cursor
// can only ever advance one recipient at a time, in recipient order.
func (r *BulkJobRepository) RecordOutcome(ctx context.Context, jobID uint, send *models.WhatsAppSend) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		send.JobID = jobID
		if err := tx.Create(send).Error; err != nil {
			return fmt.Errorf("failed to record send outcome: %w", err)
		}

		updates := map[string]interface{}{
			"processed_count": gorm.Expr("processed_count + 1"),
			"updated_at":      time.Now(),
		}
		switch send.Status {
		case models.SendStatusSent:
			updates["sent_count"] = gorm.Expr("sent_count + 1")
		case models.SendStatusFailed:
			updates["failed_count"] = gorm.Expr("failed_count + 1")
		default:
			return fmt.Errorf("unknown send status %q", send.Status)
		}

		res := tx.Model(&models.WhatsAppBulkJob{}).
			Where("id = ? AND processed_count = ?", jobID, send.RecipientIndex).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to advance job cursor: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.NewConflictError("send outcome does not match the job cursor")
		}
		return nil
	})
}

func (r *BulkJobRepository) Finish(ctx context.Context, id uint, status string, errMsg string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
		"updated_at":   now,
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	err := r.db.WithContext(ctx).
		Model(&models.WhatsAppBulkJob{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

func (r *BulkJobRepository) RequestCancel(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WhatsAppBulkJob{}).
		Where("id = ? AND status IN ?", id, []string{models.JobStatusQueued, models.JobStatusRunning}).
		Update("cancel_requested", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to request cancel: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *BulkJobRepository) CancelRequested(ctx context.Context, id uint) (bool, error) {
	var job models.WhatsAppBulkJob
	err := r.db.WithContext(ctx).Select("cancel_requested").First(&job, id).Error
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return job.CancelRequested, nil
}

func (r *BulkJobRepository) ResumableJobs(ctx context.Context, cutoff time.Time) ([]*models.WhatsAppBulkJob, error) {
	var jobs []*models.WhatsAppBulkJob
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND updated_at < ?)", models.JobStatusQueued, models.JobStatusRunning, cutoff).
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}

func (r *BulkJobRepository) SentToday(ctx context.Context, dayStart time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WhatsAppSend{}).
		Where("sent_at >= ?", dayStart).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count today's sends: %w", err)
	}
	return count, nil
}

func (r *BulkJobRepository) ListSends(ctx context.Context, jobID uint) ([]*models.WhatsAppSend, error) {
	var sends []*models.WhatsAppSend
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("recipient_index ASC").
		Find(&sends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sends: %w", err)
	}
	return sends, nil
}
