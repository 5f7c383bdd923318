package leadintake

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
	"github.com/gearline/crm/pkg/phone"
)

// CreateRequest is a raw intake submission.
type CreateRequest struct {
	CustomerName string     `json:"customer_name"`
	Mobile       string     `json:"mobile" validate:"required"`
	City         string     `json:"city"`
	Source       string     `json:"source"`
	Remarks      string     `json:"remarks"`
	FollowupDate *time.Time `json:"followup_date,omitempty"`
}

// Service takes raw leads into the unassigned pool.
type Service struct {
	store  domain.IntakeStore
	logger *log.Logger
}

func NewService(store domain.IntakeStore, logger *log.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create normalizes the mobile number and stores the lead in the intake
// pool. A missing customer name gets the next placeholder from the shared
// counter, so imports without names stay distinguishable.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.UnassignedLead, error) {
	mobile, err := phone.Normalize(req.Mobile)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name, err = s.store.NextCustomerName(ctx)
		if err != nil {
			return nil, err
		}
	}

	ul := &models.UnassignedLead{
		CustomerName: name,
		Mobile:       mobile,
		City:         strings.TrimSpace(req.City),
		Source:       strings.TrimSpace(req.Source),
		Remarks:      req.Remarks,
		FollowupDate: req.FollowupDate,
		Status:       models.LeadStatusNewLead,
	}
	if err := s.store.CreateUnassigned(ctx, ul); err != nil {
		return nil, err
	}
	s.logger.Printf("📥 Lead received: %s (%s)", ul.CustomerName, ul.Mobile)
	return ul, nil
}

// LogCallRequest is one call outcome reported by an agent.
type LogCallRequest struct {
	UserID          uint   `json:"user_id" validate:"required"`
	CallType        string `json:"call_type"`
	CallStatus      string `json:"call_status" validate:"required"`
	DurationSeconds int    `json:"duration_seconds"`
	Remarks         string `json:"remarks"`
}

var validCallStatuses = map[string]struct{}{
	models.CallStatusConnected:   {},
	models.CallStatusNoAnswer:    {},
	models.CallStatusBusy:        {},
	models.CallStatusSwitchedOff: {},
	models.CallStatusWrongNumber: {},
}

// LogCall appends a call outcome to a lead's history.
func (s *Service) LogCall(ctx context.Context, leadID uint, req LogCallRequest) (*models.CallLog, error) {
	if _, ok := validCallStatuses[req.CallStatus]; !ok {
		return nil, domain.NewValidationError("unknown call status " + req.CallStatus)
	}
	callType := req.CallType
	switch callType {
	case "":
		callType = models.CallTypeOutgoing
	case models.CallTypeOutgoing, models.CallTypeIncoming:
	default:
		return nil, domain.NewValidationError("unknown call type " + req.CallType)
	}

	entry := &models.CallLog{
		LeadID:          leadID,
		UserID:          req.UserID,
		CallType:        callType,
		CallStatus:      req.CallStatus,
		DurationSeconds: req.DurationSeconds,
		Remarks:         req.Remarks,
	}
	if err := s.store.AppendCallLog(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Printf("📞 Lead %d call logged: %s by agent %d", leadID, entry.CallStatus, req.UserID)
	return entry, nil
}

// CallHistory returns a lead's recorded calls, most recent first.
func (s *Service) CallHistory(ctx context.Context, leadID uint, limit int) ([]*models.CallLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListCallLogs(ctx, leadID, limit)
}

// UpdateFollowup moves a lead's followup date and records the touch as a
// worked-lead event.
func (s *Service) UpdateFollowup(ctx context.Context, leadID, userID uint, followup time.Time) (*models.Lead, error) {
	lead, err := s.store.UpdateLeadFollowup(ctx, leadID, userID, followup)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("📆 Lead %d followup moved to %s by agent %d", leadID, followup.Format("2006-01-02"), userID)
	return lead, nil
}
