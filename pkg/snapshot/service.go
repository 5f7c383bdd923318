package snapshot

import (
	"context"
	"log"
	"time"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/metrics"
	"github.com/gearline/crm/pkg/models"
)

// Summary reports one snapshot run.
type Summary struct {
	Date    time.Time `json:"date"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
}

// Service materializes one DailyFollowupCount row per agent per calendar day.
type Service struct {
	store  domain.SnapshotStore
	loc    *time.Location
	logger *log.Logger
	now    func() time.Time
}

func NewService(store domain.SnapshotStore, loc *time.Location, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Run snapshots today in the configured business timezone.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	now := s.now().In(s.loc)
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return s.RunForDate(ctx, date)
}

// RunForDate snapshots a specific day. Each agent's row is written
// independently: a failure for one agent does not touch the others, and a
// re-run only fills in rows that are still missing.
func (s *Service) RunForDate(ctx context.Context, date time.Time) (*Summary, error) {
	stats, err := s.store.AgentOpenLeadStats(ctx, date)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Date: date}
	for _, st := range stats {
		created, err := s.store.CreateDailyCountIfAbsent(ctx, &models.DailyFollowupCount{
			UserID:       st.UserID,
			Date:         date,
			DueCount:     st.DueCount,
			OverdueCount: st.OverdueCount,
			OpenCount:    st.OpenCount,
		})
		if err != nil {
			s.logger.Printf("❌ Snapshot failed for agent %d: %v", st.UserID, err)
			summary.Failed++
			metrics.SnapshotRowsTotal.WithLabelValues("failed").Inc()
			continue
		}
		if created {
			summary.Created++
			metrics.SnapshotRowsTotal.WithLabelValues("created").Inc()
		} else {
			summary.Skipped++
			metrics.SnapshotRowsTotal.WithLabelValues("skipped").Inc()
		}
	}

	s.logger.Printf("📅 Snapshot %s: %d created, %d existing, %d failed",
		date.Format("2006-01-02"), summary.Created, summary.Skipped, summary.Failed)
	return summary, nil
}
