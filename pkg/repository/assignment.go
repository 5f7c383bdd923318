package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
)

// AssignmentRepository implements domain.AssignmentStore on GORM.
type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) ListUnassigned(ctx context.Context, limit int) ([]*models.UnassignedLead, error) {
	var leads []*models.UnassignedLead
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("failed to list unassigned leads: %w", err)
	}
	return leads, nil
}

func (r *AssignmentRepository) ListAgents(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND role = ?", true, "agent").
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return users, nil
}

func (r *AssignmentRepository) OpenLeadCounts(ctx context.Context) (map[uint]int, error) {
	type row struct {
		UserID uint
		N      int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Lead{}).
		Select("assigned_user_id AS user_id, COUNT(*) AS n").
		Where("assigned_user_id IS NOT NULL AND status NOT IN ?", []string{models.LeadStatusCompleted, models.LeadStatusFeedback}).
		Group("assigned_user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count open leads: %w", err)
	}
	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.UserID] = r.N
	}
	return counts, nil
}

func (r *AssignmentRepository) Promote(ctx context.Context, ul *models.UnassignedLead, agentID uint, score *models.LeadScore) (*models.Lead, error) {
	lead := &models.Lead{
		CustomerName:   ul.CustomerName,
		Mobile:         ul.Mobile,
		City:           ul.City,
		Source:         ul.Source,
		Remarks:        ul.Remarks,
		Status:         ul.Status,
		FollowupDate:   ul.FollowupDate,
		AssignedUserID: &agentID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(lead).Error; err != nil {
			return fmt.Errorf("failed to create lead: %w", err)
		}
		assignment := &models.TeamAssignment{
			LeadID:         lead.ID,
			UserID:         agentID,
			AssignmentType: "auto",
			IsActive:       true,
		}
		if err := tx.Create(assignment).Error; err != nil {
			return fmt.Errorf("failed to create assignment: %w", err)
		}
		if score != nil {
			score.LeadID = lead.ID
			if err := tx.Create(score).Error; err != nil {
				return fmt.Errorf("failed to persist score: %w", err)
			}
		}
		res := tx.Delete(&models.UnassignedLead{}, ul.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to remove unassigned lead: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another batch already promoted this lead.
			return domain.NewConflictError("unassigned lead already promoted")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (r *AssignmentRepository) Reassign(ctx context.Context, leadID, toAgentID uint, reason string) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lead, leadID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("lead")
			}
			return fmt.Errorf("failed to load lead: %w", err)
		}
		if lead.AssignedUserID != nil && *lead.AssignedUserID == toAgentID {
			return domain.NewConflictError("lead is already assigned to this agent")
		}

		err := tx.Model(&models.TeamAssignment{}).
			Where("lead_id = ? AND is_active = ?", leadID, true).
			Update("is_active", false).Error
		if err != nil {
			return fmt.Errorf("failed to deactivate previous assignment: %w", err)
		}

		assignment := &models.TeamAssignment{
			LeadID:         leadID,
			UserID:         toAgentID,
			AssignmentType: "manual",
			Reason:         reason,
			IsActive:       true,
		}
		if err := tx.Create(assignment).Error; err != nil {
			return fmt.Errorf("failed to create assignment: %w", err)
		}

		if err := tx.Model(&lead).Update("assigned_user_id", toAgentID).Error; err != nil {
			return fmt.Errorf("failed to update lead owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *AssignmentRepository) GetLead(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	err := r.db.WithContext(ctx).Preload("AssignedUser").First(&lead, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("lead")
		}
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	return &lead, nil
}
