package leadassignment

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/leadscoring"
	"github.com/gearline/crm/pkg/metrics"
	"github.com/gearline/crm/pkg/models"
)

// Notifier tells an agent they received a lead. Implementations must not
// block the assignment path.
type Notifier interface {
	NotifyAssignment(ctx context.Context, userID uint, lead *models.Lead)
}

// Assigned is one successful routing decision of a batch.
type Assigned struct {
	LeadID   uint    `json:"lead_id"`
	AgentID  uint    `json:"agent_id"`
	Score    float64 `json:"score"`
	Priority string  `json:"priority"`
}

// Skipped is a lead a batch could not place.
type Skipped struct {
	UnassignedLeadID uint   `json:"unassigned_lead_id"`
	Reason           string `json:"reason"`
}

// BatchResult summarizes one assignment run.
type BatchResult struct {
	Assigned []Assigned `json:"assigned"`
	Skipped  []Skipped  `json:"skipped"`
}

// Service routes unassigned leads to the least-loaded eligible agents.
type Service struct {
	store    domain.AssignmentStore
	scoring  *leadscoring.Service
	notifier Notifier
	capacity int
	logger   *log.Logger

	// One batch at a time; concurrent batches would double-count capacity.
	mu sync.Mutex
}

func NewService(store domain.AssignmentStore, scoring *leadscoring.Service, notifier Notifier, capacity int, logger *log.Logger) *Service {
	return &Service{
		store:    store,
		scoring:  scoring,
		notifier: notifier,
		capacity: capacity,
		logger:   logger,
	}
}

// AssignBatch drains up to limit leads from the intake pool. Leads are
// ranked by score descending and each goes to the agent with the fewest
// open leads, lowest agent id on ties. Leads that cannot be placed are
// reported, not dropped; they stay in the pool for the next batch.
func (s *Service) AssignBatch(ctx context.Context, limit int) (*BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, err := s.store.ListUnassigned(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Assigned: []Assigned{}, Skipped: []Skipped{}}
	if len(pool) == 0 {
		return result, nil
	}

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, domain.NewValidationError("no active agents to assign to")
	}

	loads, err := s.store.OpenLeadCounts(ctx)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		lead  *models.UnassignedLead
		score *models.LeadScore
	}
	rankedPool := make([]ranked, 0, len(pool))
	for _, ul := range pool {
		score := s.scoring.Evaluate(leadscoring.Input{
			Status:       ul.Status,
			FollowupDate: ul.FollowupDate,
			Remarks:      ul.Remarks,
			ModifiedAt:   ul.UpdatedAt,
		})
		rankedPool = append(rankedPool, ranked{lead: ul, score: score})
	}
	sort.SliceStable(rankedPool, func(i, j int) bool {
		if rankedPool[i].score.Score != rankedPool[j].score.Score {
			return rankedPool[i].score.Score > rankedPool[j].score.Score
		}
		return rankedPool[i].lead.ID < rankedPool[j].lead.ID
	})

	for _, r := range rankedPool {
		agentID, ok := s.pickAgent(agents, loads)
		if !ok {
			result.Skipped = append(result.Skipped, Skipped{
				UnassignedLeadID: r.lead.ID,
				Reason:           domain.ErrCodeCapacityExceeded,
			})
			metrics.AssignmentSkipsTotal.WithLabelValues("capacity").Inc()
			continue
		}

		lead, err := s.store.Promote(ctx, r.lead, agentID, r.score)
		if err != nil {
			if domain.IsConflict(err) {
				// Lost a race with another process, nothing to undo.
				result.Skipped = append(result.Skipped, Skipped{
					UnassignedLeadID: r.lead.ID,
					Reason:           domain.ErrCodeConflict,
				})
				metrics.AssignmentSkipsTotal.WithLabelValues("conflict").Inc()
				continue
			}
			return nil, err
		}

		loads[agentID]++
		result.Assigned = append(result.Assigned, Assigned{
			LeadID:   lead.ID,
			AgentID:  agentID,
			Score:    r.score.Score,
			Priority: r.score.Priority,
		})
		metrics.AssignmentsTotal.Inc()

		if s.notifier != nil {
			s.notifier.NotifyAssignment(ctx, agentID, lead)
		}
	}

	s.logger.Printf("✅ Assignment batch: %d assigned, %d skipped", len(result.Assigned), len(result.Skipped))
	return result, nil
}

// pickAgent returns the least-loaded agent under capacity, lowest id on ties.
// ListAgents orders by id, so the first minimum wins the tie.
func (s *Service) pickAgent(agents []*models.User, loads map[uint]int) (uint, bool) {
	var (
		bestID   uint
		bestLoad int
		found    bool
	)
	for _, a := range agents {
		load := loads[a.ID]
		if load >= s.capacity {
			continue
		}
		if !found || load < bestLoad {
			bestID, bestLoad, found = a.ID, load, true
		}
	}
	return bestID, found
}

// Reassign hands a lead to another agent, keeping the full ownership history.
func (s *Service) Reassign(ctx context.Context, leadID, toAgentID uint, reason string) (*models.Lead, error) {
	lead, err := s.store.Reassign(ctx, leadID, toAgentID, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("🔁 Lead %d reassigned to agent %d", leadID, toAgentID)
	if s.notifier != nil {
		s.notifier.NotifyAssignment(ctx, toAgentID, lead)
	}
	return lead, nil
}
