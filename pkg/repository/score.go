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

// ScoreRepository implements domain.ScoreStore on GORM.
type ScoreRepository struct {
	db *gorm.DB
}

func NewScoreRepository(db *gorm.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

func (r *ScoreRepository) SaveScore(ctx context.Context, score *models.LeadScore) error {
	if err := r.db.WithContext(ctx).Create(score).Error; err != nil {
		return fmt.Errorf("failed to save lead score: %w", err)
	}
	return nil
}

func (r *ScoreRepository) LatestScore(ctx context.Context, leadID uint) (*models.LeadScore, error) {
	var score models.LeadScore
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("computed_at DESC").
		First(&score).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("lead score")
		}
		return nil, fmt.Errorf("failed to load lead score: %w", err)
	}
	return &score, nil
}

func (r *ScoreRepository) WorkedLeadCount(ctx context.Context, leadID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkedLead{}).
		Where("lead_id = ?", leadID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count worked-lead events: %w", err)
	}
	return count, nil
}

func (r *ScoreRepository) UnreachedCallCount(ctx context.Context, leadID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CallLog{}).
		Where("lead_id = ? AND called_at >= ?", leadID, since).
		Where("call_status IN ?", []string{
			models.CallStatusNoAnswer,
			models.CallStatusBusy,
			models.CallStatusSwitchedOff,
		}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unreached calls: %w", err)
	}
	return count, nil
}
