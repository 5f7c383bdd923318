package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gearline/crm/pkg/models"
)

// SnapshotRepository implements domain.SnapshotStore on GORM.
type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) AgentOpenLeadStats(ctx context.Context, date time.Time) ([]*models.AgentDayStats, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var stats []*models.AgentDayStats
	err := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select(
			"assigned_user_id AS user_id, "+
				"SUM(CASE WHEN followup_date >= ? AND followup_date < ? THEN 1 ELSE 0 END) AS due_count, "+
				"SUM(CASE WHEN followup_date < ? THEN 1 ELSE 0 END) AS overdue_count, "+
				"COUNT(*) AS open_count",
			dayStart, dayEnd, dayStart,
		).
		Where("assigned_user_id IS NOT NULL AND status NOT IN ?", []string{models.LeadStatusCompleted, models.LeadStatusFeedback}).
		Group("assigned_user_id").
		Order("assigned_user_id ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute agent day stats: %w", err)
	}
	return stats, nil
}

func (r *SnapshotRepository) CreateDailyCountIfAbsent(ctx context.Context, count *models.DailyFollowupCount) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(count)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create daily followup count: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
