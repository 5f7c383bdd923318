package templatecache

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gearline/crm/pkg/cache"
	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/metrics"
	"github.com/gearline/crm/pkg/models"
	"github.com/gearline/crm/pkg/teleobi"
)

const hotCacheKey = "templates:catalog"

// Fetcher pulls the template catalog from the messaging provider.
type Fetcher interface {
	FetchTemplates(ctx context.Context) ([]teleobi.Template, error)
}

// Service serves the provider template catalog through a TTL-guarded cache.
// Concurrent refreshes of a stale catalog collapse into one provider call.
type Service struct {
	store   domain.TemplateStore
	fetcher Fetcher
	hot     *cache.Cache
	ttl     time.Duration
	logger  *log.Logger

	group singleflight.Group
	now   func() time.Time
}

func NewService(store domain.TemplateStore, fetcher Fetcher, hot *cache.Cache, ttl time.Duration, logger *log.Logger) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		hot:     hot,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// List returns the catalog, refreshing it first when it is older than the TTL.
func (s *Service) List(ctx context.Context) ([]*models.TeleobiTemplateCache, error) {
	if s.hot != nil {
		var cached []*models.TeleobiTemplateCache
		if hit, err := s.hot.GetJSON(ctx, hotCacheKey, &cached); err == nil && hit {
			metrics.TemplateCacheHits.Inc()
			return cached, nil
		}
	}
	metrics.TemplateCacheMisses.Inc()

	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}

	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}

	if s.hot != nil && len(templates) > 0 {
		if err := s.hot.SetJSON(ctx, hotCacheKey, templates, s.ttl); err != nil {
			s.logger.Printf("⚠️ Failed to populate hot template cache: %v", err)
		}
	}
	return templates, nil
}

// Get returns one template by its provider id, refreshing a stale catalog first.
func (s *Service) Get(ctx context.Context, templateID string) (*models.TeleobiTemplateCache, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	return s.store.GetTemplate(ctx, templateID)
}

// Stale reports whether the catalog is older than the TTL. It does not
// trigger a refresh; after a Get or List it means the last refresh failed
// and stale rows were served.
func (s *Service) Stale(ctx context.Context) (bool, error) {
	syncedAt, err := s.store.LastSyncedAt(ctx)
	if err != nil {
		return false, err
	}
	return syncedAt.IsZero() || s.now().Sub(syncedAt) >= s.ttl, nil
}

// Sync forces a catalog refresh regardless of age.
func (s *Service) Sync(ctx context.Context) (int, error) {
	n, err, _ := s.group.Do(hotCacheKey, func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}

// ensureFresh refreshes the catalog when the last sync is older than the TTL.
// A refresh failure over a non-empty catalog degrades to serving stale rows.
func (s *Service) ensureFresh(ctx context.Context) error {
	syncedAt, err := s.store.LastSyncedAt(ctx)
	if err != nil {
		return err
	}
	if !syncedAt.IsZero() && s.now().Sub(syncedAt) < s.ttl {
		return nil
	}

	_, err, _ = s.group.Do(hotCacheKey, func() (interface{}, error) {
		// Re-check inside the flight: a concurrent caller may have
		// refreshed while this one was waiting.
		synced, err := s.store.LastSyncedAt(ctx)
		if err != nil {
			return 0, err
		}
		if !synced.IsZero() && s.now().Sub(synced) < s.ttl {
			return 0, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		if !syncedAt.IsZero() {
			s.logger.Printf("⚠️ Template refresh failed, serving stale catalog: %v", err)
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) refresh(ctx context.Context) (int, error) {
	fetched, err := s.fetcher.FetchTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch template catalog: %w", err)
	}

	templates := make([]*models.TeleobiTemplateCache, 0, len(fetched))
	for _, t := range fetched {
		templates = append(templates, &models.TeleobiTemplateCache{
			TemplateID:    t.ID,
			Name:          t.Name,
			Slug:          t.Slug,
			Language:      t.Language,
			Category:      t.Category,
			Status:        t.Status,
			Body:          t.Body,
			VariableCount: t.VariableCount(),
		})
	}
	if err := s.store.ReplaceTemplates(ctx, templates); err != nil {
		return 0, err
	}

	if s.hot != nil {
		if err := s.hot.Delete(ctx, hotCacheKey); err != nil {
			s.logger.Printf("⚠️ Failed to invalidate hot template cache: %v", err)
		}
	}

	metrics.TemplateRefreshes.Inc()
	s.logger.Printf("🔄 Template catalog refreshed: %d templates", len(templates))
	return len(templates), nil
}
