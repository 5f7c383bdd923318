package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
)

// TemplateRepository implements domain.TemplateStore on GORM.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]*models.TeleobiTemplateCache, error) {
	var templates []*models.TeleobiTemplateCache
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, templateID string) (*models.TeleobiTemplateCache, error) {
	var tpl models.TeleobiTemplateCache
	err := r.db.WithContext(ctx).Where("template_id = ?", templateID).First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("template")
		}
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return &tpl, nil
}

func (r *TemplateRepository) ReplaceTemplates(ctx context.Context, templates []*models.TeleobiTemplateCache) error {
	if len(templates) == 0 {
		return nil
	}
	now := time.Now()
	for _, t := range templates {
		t.SyncedAt = now
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "template_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "slug", "language", "category", "status", "body", "variable_count", "raw", "synced_at",
			}),
		}).
		Create(&templates).Error
	if err != nil {
		return fmt.Errorf("failed to upsert templates: %w", err)
	}
	return nil
}

func (r *TemplateRepository) LastSyncedAt(ctx context.Context) (time.Time, error) {
	var tpl models.TeleobiTemplateCache
	err := r.db.WithContext(ctx).Order("synced_at DESC").First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read template sync time: %w", err)
	}
	return tpl.SyncedAt, nil
}
