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

// IntakeRepository implements domain.IntakeStore on GORM.
type IntakeRepository struct {
	db *gorm.DB
}

func NewIntakeRepository(db *gorm.DB) *IntakeRepository {
	return &IntakeRepository{db: db}
}

func (r *IntakeRepository) CreateUnassigned(ctx context.Context, ul *models.UnassignedLead) error {
	if err := r.db.WithContext(ctx).Create(ul).Error; err != nil {
		return fmt.Errorf("failed to create unassigned lead: %w", err)
	}
	return nil
}

// NextCustomerName bumps the shared counter and formats the placeholder name.
// The single-statement increment keeps concurrent callers from reusing a value.
func (r *IntakeRepository) NextCustomerName(ctx context.Context) (string, error) {
	var issued int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CustomerNameCounter{}).
			Where("id = ?", 1).
			Update("last_value", gorm.Expr("last_value + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to bump name counter: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("name counter row is missing")
		}
		var counter models.CustomerNameCounter
		if err := tx.First(&counter, 1).Error; err != nil {
			return fmt.Errorf("failed to read name counter: %w", err)
		}
		issued = counter.LastValue
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Customer %d", issued), nil
}

// AppendCallLog writes one call-history row for an existing lead.
func (r *IntakeRepository) AppendCallLog(ctx context.Context, entry *models.CallLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lead models.Lead
		if err := tx.Select("id").First(&lead, entry.LeadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("lead")
			}
			return fmt.Errorf("failed to load lead: %w", err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to record call: %w", err)
		}
		return nil
	})
}

func (r *IntakeRepository) ListCallLogs(ctx context.Context, leadID uint, limit int) ([]*models.CallLog, error) {
	var logs []*models.CallLog
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("called_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	return logs, nil
}

func (r *IntakeRepository) UpdateLeadFollowup(ctx context.Context, leadID, userID uint, followup time.Time) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lead, leadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("lead")
			}
			return fmt.Errorf("failed to load lead: %w", err)
		}
		if err := tx.Model(&lead).Update("followup_date", followup).Error; err != nil {
			return fmt.Errorf("failed to update followup date: %w", err)
		}
		wl := &models.WorkedLead{LeadID: leadID, UserID: userID}
		if err := tx.Create(wl).Error; err != nil {
			return fmt.Errorf("failed to record worked lead: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &lead, nil
}
