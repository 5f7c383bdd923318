package leadscoring

import (
	"context"
	"log"
	"time"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
)

// MaxScore caps the total a lead can reach.
const MaxScore = 150

// UnreachedCallWindow bounds how far back unreached calls count as a
// scoring signal.
const UnreachedCallWindow = 7 * 24 * time.Hour

// Input is everything a strategy may look at when scoring a lead.
type Input struct {
	Status         string
	FollowupDate   *time.Time
	Remarks        string
	ModifiedAt     time.Time
	WorkedCount    int64
	UnreachedCalls int64
}

// Breakdown is a scored result with its per-signal contributions.
type Breakdown struct {
	Overdue    float64
	Status     float64
	Engagement float64
	Recency    float64
	FirstTime  float64
	Unreached  float64
	Total      float64
	Priority   string
}

// Strategy computes a score breakdown for a lead at a point in time.
type Strategy interface {
	Score(in Input, now time.Time) Breakdown
}

// DefaultStrategy is the production scoring formula.
type DefaultStrategy struct{}

var statusWeights = map[string]float64{
	models.LeadStatusConfirmed:     40,
	models.LeadStatusNeedsFollowup: 30,
	models.LeadStatusOpen:          25,
	models.LeadStatusNewLead:       20,
	models.LeadStatusDidNotPickUp:  15,
	models.LeadStatusCompleted:     5,
	models.LeadStatusFeedback:      5,
}

func (DefaultStrategy) Score(in Input, now time.Time) Breakdown {
	var b Breakdown

	// Overdue followups dominate: 10 points per overdue day, capped at 50.
	if in.FollowupDate != nil && in.FollowupDate.Before(now) {
		daysOverdue := now.Sub(*in.FollowupDate).Hours() / 24
		b.Overdue = 10 * float64(int(daysOverdue))
		if b.Overdue > 50 {
			b.Overdue = 50
		}
		if b.Overdue < 0 {
			b.Overdue = 0
		}
	}

	b.Status = statusWeights[in.Status]

	if len(in.Remarks) > 50 {
		b.Engagement = 20
	}

	if !in.ModifiedAt.IsZero() {
		age := now.Sub(in.ModifiedAt)
		switch {
		case age < 24*time.Hour:
			b.Recency = 15
		case age < 72*time.Hour:
			b.Recency = 10
		}
	}

	if in.WorkedCount == 0 {
		b.FirstTime = 10
	}

	// Leads that keep not picking up need another try soon: 5 points per
	// recent unreached call, capped at 15.
	b.Unreached = 5 * float64(in.UnreachedCalls)
	if b.Unreached > 15 {
		b.Unreached = 15
	}

	b.Total = b.Overdue + b.Status + b.Engagement + b.Recency + b.FirstTime + b.Unreached
	if b.Total > MaxScore {
		b.Total = MaxScore
	}
	b.Priority = PriorityFor(b.Total)
	return b
}

// PriorityFor maps a total score onto its priority band.
func PriorityFor(score float64) string {
	switch {
	case score >= 60:
		return models.PriorityHigh
	case score >= 30:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Service scores leads and persists the results.
type Service struct {
	store    domain.ScoreStore
	strategy Strategy
	logger   *log.Logger
	now      func() time.Time
}

func NewService(store domain.ScoreStore, strategy Strategy, logger *log.Logger) *Service {
	if strategy == nil {
		strategy = DefaultStrategy{}
	}
	return &Service{
		store:    store,
		strategy: strategy,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate computes a score row without persisting it. Used for leads that
// do not exist yet, like intake-pool entries ranked by an assignment batch.
func (s *Service) Evaluate(in Input) *models.LeadScore {
	b := s.strategy.Score(in, s.now())
	return &models.LeadScore{
		Score:            b.Total,
		Priority:         b.Priority,
		OverduePoints:    b.Overdue,
		StatusPoints:     b.Status,
		EngagementPoints: b.Engagement,
		RecencyPoints:    b.Recency,
		FirstTimePoints:  b.FirstTime,
		UnreachedPoints:  b.Unreached,
	}
}

// ScoreLead scores an existing lead, including its worked-lead history,
// and persists the result.
func (s *Service) ScoreLead(ctx context.Context, lead *models.Lead) (*models.LeadScore, error) {
	worked, err := s.store.WorkedLeadCount(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	unreached, err := s.store.UnreachedCallCount(ctx, lead.ID, s.now().Add(-UnreachedCallWindow))
	if err != nil {
		return nil, err
	}

	score := s.Evaluate(Input{
		Status:         lead.Status,
		FollowupDate:   lead.FollowupDate,
		Remarks:        lead.Remarks,
		ModifiedAt:     lead.UpdatedAt,
		WorkedCount:    worked,
		UnreachedCalls: unreached,
	})
	score.LeadID = lead.ID

	if err := s.store.SaveScore(ctx, score); err != nil {
		return nil, err
	}
	s.logger.Printf("📊 Lead %d scored %.0f (%s)", lead.ID, score.Score, score.Priority)
	return score, nil
}
